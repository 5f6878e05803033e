package store

import "errors"

// 存储层通用错误，调用方用 errors.Is 区分校验失败和底层 I/O 故障。
var (
	ErrValidation = errors.New("invalid message")
	ErrStorage    = errors.New("storage failure")
	ErrNotFound   = errors.New("message not found")
)
