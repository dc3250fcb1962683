package models

import (
	"strings"

	"github.com/couponhub/internal/logger"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedExternalOrders 写入开发环境的外部订单，已存在的 (平台, 订单号) 跳过
func SeedExternalOrders(db *gorm.DB, orders []ExternalOrder) (int64, error) {
	if db == nil {
		db = DB
	}
	valid := make([]ExternalOrder, 0, len(orders))
	for _, order := range orders {
		if strings.TrimSpace(order.FromPlatform) == "" || strings.TrimSpace(order.Tid) == "" {
			logger.Warnw("seed_external_order_skip_invalid", "from_platform", order.FromPlatform, "tid", order.Tid)
			continue
		}
		valid = append(valid, order)
	}
	if len(valid) == 0 {
		return 0, nil
	}
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&valid)
	if result.Error != nil {
		return 0, result.Error
	}
	logger.Infow("seed_external_orders_done", "requested", len(orders), "inserted", result.RowsAffected)
	return result.RowsAffected, nil
}
