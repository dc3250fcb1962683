package repository

import (
	"time"

	"github.com/couponhub/internal/constants"
)

// CouponListFilter 查询优惠券列表的过滤条件
type CouponListFilter struct {
	Page         int
	PageSize     int
	Status       string
	FromPlatform string
	ProxyOpenID  string
	TargetProxy  constants.TargetProxy
	Keyword      string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
}

// BackupFilter 代理订单回填的查询条件
type BackupFilter struct {
	TargetProxy constants.TargetProxy
	From        time.Time
	To          time.Time
}
