package service

import (
	"fmt"

	"github.com/couponhub/internal/apperr"
)

// 业务错误，均归属 apperr 中的某一分类
var (
	ErrCouponInvalid            = fmt.Errorf("%w: coupon input invalid", apperr.ErrValidation)
	ErrCouponStatusTransition   = fmt.Errorf("%w: coupon status transition not allowed", apperr.ErrValidation)
	ErrTargetProxyUnsupported   = fmt.Errorf("%w: target proxy unsupported", apperr.ErrValidation)
	ErrBackupRangeInvalid       = fmt.Errorf("%w: backup time range invalid", apperr.ErrValidation)
	ErrCouponNotFound           = fmt.Errorf("%w: coupon not found", apperr.ErrNotFound)
	ErrExternalOrderNotFound    = fmt.Errorf("%w: external order not found", apperr.ErrNotFound)
	ErrProxyOrderNotFound       = fmt.Errorf("%w: proxy order not found", apperr.ErrNotFound)
	ErrExternalOrderFetchFailed = fmt.Errorf("%w: external order query failed", apperr.ErrUpstream)
	ErrProxyOrderFetchFailed    = fmt.Errorf("%w: proxy order query failed", apperr.ErrUpstream)
	ErrCredentialExpired        = fmt.Errorf("%w: credential expired", apperr.ErrUpstream)
)
