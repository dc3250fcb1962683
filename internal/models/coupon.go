package models

import (
	"time"
)

// Coupon 由外部订单生成的兑换券
type Coupon struct {
	ID               uint      `gorm:"primarykey" json:"id"`                                           // 主键
	Code             string    `gorm:"type:varchar(64);index;not null" json:"coupon"`                  // 券码
	FromPlatform     string    `gorm:"type:varchar(32);not null" json:"external_order_from_platform"`  // 外部订单平台
	Tid              string    `gorm:"type:varchar(64);index;not null" json:"external_order_tid"`      // 外部订单号
	Payment          Money     `gorm:"type:decimal(20,2);not null;default:0" json:"payment"`           // 实付金额
	AvailableBalance Money     `gorm:"type:decimal(20,2);not null;default:0" json:"available_balance"` // 可用余额
	Status           string    `gorm:"type:varchar(32);index;not null" json:"status"`                  // 状态
	ErrorCode        int       `gorm:"not null;default:0" json:"error_code"`                           // 最近一次下单错误码
	ProxyOpenID      string    `gorm:"type:varchar(128);index" json:"proxy_open_id"`                   // 代下单账号
	ProxyOrderID     string    `gorm:"type:varchar(128);index" json:"proxy_order_id"`                  // 代下单订单号
	CreatedAt        time.Time `gorm:"index" json:"create_time"`                                       // 创建时间
	UpdatedAt        time.Time `json:"update_time"`                                                    // 更新时间
	IsDeleted        bool      `gorm:"not null;default:false;index" json:"is_deleted"`                 // 软删除标记
}

// TableName 指定表名
func (Coupon) TableName() string {
	return "coupons"
}

// Age 距创建时间的时长
func (c *Coupon) Age(now time.Time) time.Duration {
	if c == nil || c.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(c.CreatedAt)
}
