package models

import "time"

// ExternalOrder 外部订单只读映射
// 归属外部订单服务，这里只用于代理订单回填时的关联查询
type ExternalOrder struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	FromPlatform string    `gorm:"type:varchar(32);uniqueIndex:uk_external_order_platform_tid;not null" json:"from_platform"`
	Tid          string    `gorm:"type:varchar(64);uniqueIndex:uk_external_order_platform_tid;not null" json:"tid"`
	TargetProxy  string    `gorm:"type:varchar(32);index;not null" json:"target_proxy"`
	PayAmount    Money     `gorm:"type:decimal(20,2);not null;default:0" json:"pay_amount"`
	Status       string    `gorm:"type:varchar(32)" json:"status"`
	CreatedAt    time.Time `json:"create_time"`
	UpdatedAt    time.Time `json:"update_time"`
}

// TableName 指定表名
func (ExternalOrder) TableName() string {
	return "external_order"
}
