package model

// Profile 用户资料表，对应 profiles
type Profile struct {
	UserID   string `gorm:"type:uuid;primaryKey"  json:"user_id"`
	Email    string `gorm:"type:varchar(255)"     json:"email,omitempty"`
	FullName string `gorm:"type:varchar(200)"     json:"full_name,omitempty"`
	Phone    string `gorm:"type:varchar(50)"      json:"phone,omitempty"`
	BaseModel
}

// TableName 指定表名
func (Profile) TableName() string { return "profiles" }

// GroupMember 群组成员表，对应 group_members
type GroupMember struct {
	GroupID string `gorm:"type:uuid;primaryKey"              json:"group_id"`
	UserID  string `gorm:"type:uuid;primaryKey"              json:"user_id"`
	Role    string `gorm:"type:varchar(20);not null;default:'member'" json:"role"` // owner | admin | member
	BaseModel
}

// TableName 指定表名
func (GroupMember) TableName() string { return "group_members" }

// GroupRoleOwner 群组所有者
const GroupRoleOwner = "owner"
