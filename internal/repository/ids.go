package repository

import "github.com/google/uuid"

// isUUID 主键均为 uuid 列，非法 ID 直接按记录不存在处理，避免数据库返回 22P02
func isUUID(id string) bool {
	return uuid.Validate(id) == nil
}

// filterUUIDs 去掉非法 ID
func filterUUIDs(ids []string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if isUUID(id) {
			out = append(out, id)
		}
	}
	return out
}
