package apperr

import "errors"

// 错误分类，具体业务错误通过 %w 包装到其中之一，调用方使用 errors.Is 判断。
// 缓存未命中不是错误，不在此列。
var (
	// ErrValidation 输入不合法，未产生任何副作用
	ErrValidation = errors.New("validation failure")
	// ErrNotFound 所有数据源均未找到
	ErrNotFound = errors.New("not found")
	// ErrUpstream 远程依赖失败（含凭证过期、超时），不重试
	ErrUpstream = errors.New("upstream failure")
	// ErrPersistence 影响行数不符或存储异常，事务已回滚
	ErrPersistence = errors.New("persistence failure")
)

// Category 返回错误所属分类，无法归类时返回 nil
func Category(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation):
		return ErrValidation
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrUpstream):
		return ErrUpstream
	case errors.Is(err, ErrPersistence):
		return ErrPersistence
	default:
		return nil
	}
}
