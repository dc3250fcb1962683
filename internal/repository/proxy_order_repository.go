package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couponhub/internal/constants"
	"github.com/couponhub/internal/models"
	"github.com/couponhub/internal/store"

	"gorm.io/gorm"
)

// ProxyOrderKey 代理订单业务键，ProxyOrderID 优先，否则按券码
type ProxyOrderKey struct {
	TargetProxy  constants.TargetProxy
	ProxyOrderID string
	Coupon       string
}

// ProxyOrderRepository 单个代下单平台的订单存储
type ProxyOrderRepository interface {
	store.Backend[models.ProxyOrder, ProxyOrderKey]
	TargetProxy() constants.TargetProxy
}

// ProxyOrderRepositories 按代下单平台选择仓库
type ProxyOrderRepositories map[constants.TargetProxy]ProxyOrderRepository

// NewProxyOrderRepositories 注册全部已支持平台
func NewProxyOrderRepositories(db *gorm.DB) ProxyOrderRepositories {
	return ProxyOrderRepositories{
		constants.TargetProxySexytea: NewSexyteaOrderRepository(db),
	}
}

// For 获取平台对应的仓库
func (r ProxyOrderRepositories) For(targetProxy constants.TargetProxy) (ProxyOrderRepository, bool) {
	if r == nil {
		return nil, false
	}
	repo, ok := r[targetProxy]
	if !ok || repo == nil {
		return nil, false
	}
	return repo, true
}

// proxyOrderCacheKey proxyorder.<targetProxy>.<proxyOrderId> 或 proxyorder.<code>
func proxyOrderCacheKey(key ProxyOrderKey) string {
	if key.ProxyOrderID != "" {
		return fmt.Sprintf("%s.%s.%s", constants.CacheKeyProxyOrderPrefix, key.TargetProxy, key.ProxyOrderID)
	}
	return fmt.Sprintf("%s.%s", constants.CacheKeyProxyOrderPrefix, key.Coupon)
}

func proxyOrderKeysOf(targetProxy constants.TargetProxy, order *models.ProxyOrder) []string {
	if order == nil {
		return nil
	}
	keys := make([]string, 0, 2)
	if order.ProxyOrderID != "" {
		keys = append(keys, proxyOrderCacheKey(ProxyOrderKey{TargetProxy: targetProxy, ProxyOrderID: order.ProxyOrderID}))
	}
	if order.Coupon != "" {
		keys = append(keys, proxyOrderCacheKey(ProxyOrderKey{Coupon: order.Coupon}))
	}
	return keys
}

// GormSexyteaOrderRepository sexytea 订单表 GORM 实现
type GormSexyteaOrderRepository struct {
	db *gorm.DB
}

// NewSexyteaOrderRepository 创建 sexytea 订单仓库
func NewSexyteaOrderRepository(db *gorm.DB) *GormSexyteaOrderRepository {
	return &GormSexyteaOrderRepository{db: db}
}

// TargetProxy 所属平台
func (r *GormSexyteaOrderRepository) TargetProxy() constants.TargetProxy {
	return constants.TargetProxySexytea
}

// WithTx 绑定事务
func (r *GormSexyteaOrderRepository) WithTx(tx *gorm.DB) store.Backend[models.ProxyOrder, ProxyOrderKey] {
	if tx == nil {
		return r
	}
	return &GormSexyteaOrderRepository{db: tx}
}

// FindAlive 按代理订单号或券码查询未删除的订单
func (r *GormSexyteaOrderRepository) FindAlive(ctx context.Context, key ProxyOrderKey) (*models.ProxyOrder, error) {
	query := r.db.WithContext(ctx).Where("target_proxy = ? AND is_deleted = ?", r.TargetProxy().String(), false)
	switch {
	case strings.TrimSpace(key.ProxyOrderID) != "":
		query = query.Where("proxy_order_id = ?", strings.TrimSpace(key.ProxyOrderID))
	case strings.TrimSpace(key.Coupon) != "":
		query = query.Where("coupon = ?", strings.TrimSpace(key.Coupon))
	default:
		return nil, nil
	}
	var row models.SexyteaOrder
	if err := query.Order("id desc").First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	order := row.ProxyOrder
	return &order, nil
}

// Insert 插入订单
func (r *GormSexyteaOrderRepository) Insert(ctx context.Context, order *models.ProxyOrder) (int64, error) {
	order.TargetProxy = r.TargetProxy().String()
	row := models.SexyteaOrder{ProxyOrder: *order}
	result := r.db.WithContext(ctx).Create(&row)
	if result.Error != nil {
		return 0, result.Error
	}
	*order = row.ProxyOrder
	return result.RowsAffected, nil
}

// UpdateAlive 按代理订单号更新未删除的订单
func (r *GormSexyteaOrderRepository) UpdateAlive(ctx context.Context, order *models.ProxyOrder) (int64, error) {
	order.UpdatedAt = time.Now()
	result := r.db.WithContext(ctx).Model(&models.SexyteaOrder{}).
		Where("target_proxy = ? AND proxy_order_id = ? AND is_deleted = ?", r.TargetProxy().String(), order.ProxyOrderID, false).
		Updates(map[string]interface{}{
			"coupon":        order.Coupon,
			"from_platform": order.FromPlatform,
			"tid":           order.Tid,
			"proxy_open_id": order.ProxyOpenID,
			"raw_order":     order.Order,
			"order_status":  order.OrderStatus,
			"updated_at":    order.UpdatedAt,
		})
	return result.RowsAffected, result.Error
}

// SoftDelete 软删除订单
func (r *GormSexyteaOrderRepository) SoftDelete(ctx context.Context, order *models.ProxyOrder) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.SexyteaOrder{}).
		Where("id = ? AND is_deleted = ?", order.ID, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// KeyOf 按代理订单号定位，与 UpdateAlive 的条件一致
func (r *GormSexyteaOrderRepository) KeyOf(order *models.ProxyOrder) ProxyOrderKey {
	return ProxyOrderKey{TargetProxy: r.TargetProxy(), ProxyOrderID: order.ProxyOrderID}
}

// KeysOf 订单关联的缓存 key
func (r *GormSexyteaOrderRepository) KeysOf(order *models.ProxyOrder) []string {
	return proxyOrderKeysOf(r.TargetProxy(), order)
}

// CacheKey 读路径缓存 key
func (r *GormSexyteaOrderRepository) CacheKey(key ProxyOrderKey) string {
	key.TargetProxy = r.TargetProxy()
	return proxyOrderCacheKey(key)
}
