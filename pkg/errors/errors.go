package errors

import "errors"

// ErrOptimisticLock 班次分配的 version 已变化：并发的确认、取消或改签先一步提交
var ErrOptimisticLock = errors.New("班次分配已被其他操作修改，请刷新后重试")

// ErrDirtySchema 上一次迁移中途失败，需要人工修复迁移版本表后才能启动
var ErrDirtySchema = errors.New("志愿者数据库迁移处于 dirty 状态")
