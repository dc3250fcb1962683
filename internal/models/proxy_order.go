package models

import (
	"time"
)

// ProxyOrder 代下单订单（各平台共用的字段）
type ProxyOrder struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	TargetProxy  string    `gorm:"type:varchar(32);not null" json:"target_proxy"`
	ProxyOrderID string    `gorm:"type:varchar(128);not null" json:"proxy_order_id"`
	Coupon       string    `gorm:"type:varchar(64);index;not null" json:"coupon"`
	FromPlatform string    `gorm:"type:varchar(32)" json:"external_order_from_platform"`
	Tid          string    `gorm:"type:varchar(64)" json:"external_order_tid"`
	ProxyOpenID  string    `gorm:"type:varchar(128)" json:"proxy_open_id"`
	Order        string    `gorm:"column:raw_order;type:text" json:"order"`    // 平台返回的原始订单 JSON
	OrderStatus  string    `gorm:"type:varchar(64);index" json:"order_status"` // 从原始订单解析出的状态
	CreatedAt    time.Time `json:"create_time"`
	UpdatedAt    time.Time `json:"update_time"`
	IsDeleted    bool      `gorm:"not null;default:false;index" json:"is_deleted"`
}

// SexyteaOrder sexytea 平台代下单订单表
type SexyteaOrder struct {
	ProxyOrder
}

// TableName 指定表名
func (SexyteaOrder) TableName() string {
	return "sexytea_order"
}
