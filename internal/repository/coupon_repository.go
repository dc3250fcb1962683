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

// CouponKey 优惠券业务键，Code 优先，否则按 (平台, 订单号)
type CouponKey struct {
	Code     string
	Platform string
	Tid      string
}

// CouponCodeKey 按券码构造业务键
func CouponCodeKey(code string) CouponKey {
	return CouponKey{Code: strings.TrimSpace(code)}
}

// CouponTidKey 按外部订单构造业务键
func CouponTidKey(platform, tid string) CouponKey {
	return CouponKey{Platform: strings.TrimSpace(platform), Tid: strings.TrimSpace(tid)}
}

// CouponRepository 优惠券数据访问接口
type CouponRepository interface {
	GetAliveByCode(ctx context.Context, code string) (*models.Coupon, error)
	GetAliveByTid(ctx context.Context, platform, tid string) (*models.Coupon, error)
	Create(ctx context.Context, coupon *models.Coupon) (int64, error)
	UpdateAlive(ctx context.Context, coupon *models.Coupon) (int64, error)
	SoftDelete(ctx context.Context, coupon *models.Coupon) (int64, error)
	List(ctx context.Context, filter CouponListFilter) ([]models.Coupon, int64, error)
	ListForBackup(ctx context.Context, filter BackupFilter) ([]models.Coupon, error)
	WithTx(tx *gorm.DB) *GormCouponRepository
}

// GormCouponRepository GORM 实现
type GormCouponRepository struct {
	db *gorm.DB
}

// NewCouponRepository 创建优惠券仓库
func NewCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCouponRepository) WithTx(tx *gorm.DB) *GormCouponRepository {
	if tx == nil {
		return r
	}
	return &GormCouponRepository{db: tx}
}

// GetAliveByCode 根据券码获取未删除的优惠券
func (r *GormCouponRepository) GetAliveByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).
		Where("code = ? AND is_deleted = ?", code, false).
		First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &coupon, nil
}

// GetAliveByTid 根据外部订单获取未删除的优惠券
func (r *GormCouponRepository) GetAliveByTid(ctx context.Context, platform, tid string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).
		Where("from_platform = ? AND tid = ? AND is_deleted = ?", platform, tid, false).
		First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &coupon, nil
}

// Create 创建优惠券
func (r *GormCouponRepository) Create(ctx context.Context, coupon *models.Coupon) (int64, error) {
	result := r.db.WithContext(ctx).Create(coupon)
	return result.RowsAffected, result.Error
}

// UpdateAlive 按券码更新未删除的优惠券
func (r *GormCouponRepository) UpdateAlive(ctx context.Context, coupon *models.Coupon) (int64, error) {
	coupon.UpdatedAt = time.Now()
	result := r.db.WithContext(ctx).Model(&models.Coupon{}).
		Where("code = ? AND is_deleted = ?", coupon.Code, false).
		Updates(map[string]interface{}{
			"payment":           coupon.Payment,
			"available_balance": coupon.AvailableBalance,
			"status":            coupon.Status,
			"error_code":        coupon.ErrorCode,
			"proxy_open_id":     coupon.ProxyOpenID,
			"proxy_order_id":    coupon.ProxyOrderID,
			"updated_at":        coupon.UpdatedAt,
		})
	return result.RowsAffected, result.Error
}

// SoftDelete 软删除优惠券
func (r *GormCouponRepository) SoftDelete(ctx context.Context, coupon *models.Coupon) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Coupon{}).
		Where("code = ? AND is_deleted = ?", coupon.Code, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// List 分页获取优惠券列表
func (r *GormCouponRepository) List(ctx context.Context, filter CouponListFilter) ([]models.Coupon, int64, error) {
	var coupons []models.Coupon
	query := r.db.WithContext(ctx).Model(&models.Coupon{}).Where("is_deleted = ?", false)

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.FromPlatform != "" {
		query = query.Where("from_platform = ?", filter.FromPlatform)
	}
	if filter.ProxyOpenID != "" {
		query = query.Where("proxy_open_id = ?", filter.ProxyOpenID)
	}
	if filter.TargetProxy != "" {
		query = query.Where(
			"EXISTS (SELECT 1 FROM external_order WHERE external_order.from_platform = coupons.from_platform AND external_order.tid = coupons.tid AND external_order.target_proxy = ?)",
			filter.TargetProxy.String(),
		)
	}
	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		like := "%" + escapeLike(keyword) + "%"
		condition, argCount := buildLikeCondition(r.db, []string{"code", "tid"})
		query = query.Where(condition, repeatLikeArgs(like, argCount)...)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	if err := query.Order("id desc").Find(&coupons).Error; err != nil {
		return nil, 0, err
	}
	return coupons, total, nil
}

// ListForBackup 查询时间范围内已下单且外部订单属于指定代下单平台的优惠券
func (r *GormCouponRepository) ListForBackup(ctx context.Context, filter BackupFilter) ([]models.Coupon, error) {
	if filter.TargetProxy == "" {
		return nil, fmt.Errorf("target proxy is required")
	}
	var coupons []models.Coupon
	err := r.db.WithContext(ctx).Model(&models.Coupon{}).
		Select("coupons.*").
		Joins("JOIN external_order ON external_order.from_platform = coupons.from_platform AND external_order.tid = coupons.tid").
		Where("coupons.is_deleted = ?", false).
		Where("coupons.created_at > ? AND coupons.created_at < ?", filter.From, filter.To).
		Where("external_order.target_proxy = ?", filter.TargetProxy.String()).
		Where(fmt.Sprintf("%s >= ?", charLengthExpr(r.db, "coupons.proxy_order_id")), constants.MinProxyOrderIDLength).
		Order("coupons.id asc").
		Find(&coupons).Error
	if err != nil {
		return nil, err
	}
	return coupons, nil
}

// CouponBackend 优惠券的旁路缓存后端
type CouponBackend struct {
	repo *GormCouponRepository
}

// NewCouponBackend 创建优惠券缓存后端
func NewCouponBackend(repo *GormCouponRepository) *CouponBackend {
	return &CouponBackend{repo: repo}
}

// FindAlive 按券码或外部订单查询
func (b *CouponBackend) FindAlive(ctx context.Context, key CouponKey) (*models.Coupon, error) {
	if key.Code != "" {
		return b.repo.GetAliveByCode(ctx, key.Code)
	}
	if key.Platform == "" || key.Tid == "" {
		return nil, nil
	}
	return b.repo.GetAliveByTid(ctx, key.Platform, key.Tid)
}

// UpdateAlive 条件更新
func (b *CouponBackend) UpdateAlive(ctx context.Context, coupon *models.Coupon) (int64, error) {
	return b.repo.UpdateAlive(ctx, coupon)
}

// SoftDelete 软删除
func (b *CouponBackend) SoftDelete(ctx context.Context, coupon *models.Coupon) (int64, error) {
	return b.repo.SoftDelete(ctx, coupon)
}

// Insert 插入
func (b *CouponBackend) Insert(ctx context.Context, coupon *models.Coupon) (int64, error) {
	return b.repo.Create(ctx, coupon)
}

// KeysOf 券码与外部订单两个缓存 key
func (b *CouponBackend) KeysOf(coupon *models.Coupon) []string {
	if coupon == nil {
		return nil
	}
	keys := make([]string, 0, 2)
	if coupon.Code != "" {
		keys = append(keys, b.CacheKey(CouponCodeKey(coupon.Code)))
	}
	if coupon.FromPlatform != "" && coupon.Tid != "" {
		keys = append(keys, b.CacheKey(CouponTidKey(coupon.FromPlatform, coupon.Tid)))
	}
	return keys
}

// KeyOf 写路径按券码定位
func (b *CouponBackend) KeyOf(coupon *models.Coupon) CouponKey {
	return CouponCodeKey(coupon.Code)
}

// CacheKey coupon.<code> 或 coupon.<platform>.<tid>
func (b *CouponBackend) CacheKey(key CouponKey) string {
	if key.Code != "" {
		return fmt.Sprintf("%s.%s", constants.CacheKeyCouponPrefix, key.Code)
	}
	return fmt.Sprintf("%s.%s.%s", constants.CacheKeyCouponPrefix, key.Platform, key.Tid)
}

// WithTx 绑定事务
func (b *CouponBackend) WithTx(tx *gorm.DB) store.Backend[models.Coupon, CouponKey] {
	return &CouponBackend{repo: b.repo.WithTx(tx)}
}
