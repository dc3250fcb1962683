package api

import (
	"strconv"
	"strings"

	"github.com/couponhub/internal/constants"
	handlershared "github.com/couponhub/internal/http/handlers/shared"
	"github.com/couponhub/internal/http/response"
	"github.com/couponhub/internal/models"
	"github.com/couponhub/internal/service"

	"github.com/gin-gonic/gin"
)

// couponView 优惠券查询结果
type couponView struct {
	Origin string         `json:"origin"`
	Coupon *models.Coupon `json:"coupon"`
}

// GetCoupon 按券码查询
func (h *Handler) GetCoupon(c *gin.Context) {
	res, err := h.CouponService.Get(c.Request.Context(), c.Query("coupon"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, couponView{Origin: res.Origin, Coupon: res.Value})
}

// GetCouponByTid 按外部订单查询
func (h *Handler) GetCouponByTid(c *gin.Context) {
	res, err := h.CouponService.GetByTid(c.Request.Context(), c.Query("from_platform"), c.Query("tid"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, couponView{Origin: res.Origin, Coupon: res.Value})
}

// ValidateCouponsRequest 批量校验请求
type ValidateCouponsRequest struct {
	Coupons []string `json:"coupons" binding:"required"`
	Status  string   `json:"status"`
}

// ValidateCoupons 批量校验券码，仅返回存在且状态匹配的券
func (h *Handler) ValidateCoupons(c *gin.Context) {
	var req ValidateCouponsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	coupons, err := h.CouponService.BatchGet(c.Request.Context(), req.Coupons, req.Status)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, coupons)
}

// PageCoupons 分页查询
func (h *Handler) PageCoupons(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)

	from, err := handlershared.ParseTimeNullable(c.Query("from"))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid from", err)
		return
	}
	to, err := handlershared.ParseTimeNullable(c.Query("to"))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid to", err)
		return
	}

	coupons, total, err := h.CouponService.Page(c.Request.Context(), service.PageInput{
		Page:     page,
		PageSize: pageSize,
		Status:   c.Query("status"),
		From:     from,
		To:       to,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, coupons, response.NewPagination(page, pageSize, total))
}

// PersonalCoupons 同一代下单账号下的优惠券
func (h *Handler) PersonalCoupons(c *gin.Context) {
	from, err := handlershared.ParseTimeNullable(c.Query("from"))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid from", err)
		return
	}
	to, err := handlershared.ParseTimeNullable(c.Query("to"))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid to", err)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	coupons, err := h.CouponService.PersonalCoupons(c.Request.Context(), service.PersonalCouponsInput{
		Code:        c.Query("coupon"),
		TargetProxy: constants.TargetProxy(strings.TrimSpace(c.Query("target_proxy"))),
		From:        from,
		To:          to,
		Limit:       limit,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, coupons)
}

// GenerateCouponRequest 按外部订单生成请求
type GenerateCouponRequest struct {
	FromPlatform string `json:"from_platform" binding:"required"`
	Tid          string `json:"tid" binding:"required"`
}

// GenerateCoupon 查询外部订单并生成优惠券
func (h *Handler) GenerateCoupon(c *gin.Context) {
	var req GenerateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	ctx := c.Request.Context()
	order, err := h.ExternalOrderClient.Query(ctx, req.FromPlatform, req.Tid)
	if err != nil {
		respondError(c, response.CodeUpstream, service.ErrExternalOrderFetchFailed.Error(), err)
		return
	}
	if order == nil {
		respondServiceError(c, service.ErrExternalOrderNotFound)
		return
	}
	coupon, err := h.CouponGenerationService.Generate(ctx, order)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, coupon)
}

// GenerateManualCouponRequest 手工补发请求
type GenerateManualCouponRequest struct {
	FromPlatform string `json:"from_platform" binding:"required"`
	Tid          string `json:"tid" binding:"required"`
	Payment      string `json:"payment" binding:"required"`
}

// GenerateManualCoupon 手工补发优惠券
func (h *Handler) GenerateManualCoupon(c *gin.Context) {
	var req GenerateManualCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	amount, err := models.ParseMoney(req.Payment)
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid payment", err)
		return
	}
	coupon, err := h.CouponGenerationService.GenerateManual(c.Request.Context(), req.FromPlatform, req.Tid, amount)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, coupon)
}

// UpdateCouponRequest 更新请求，未传字段保持不变
type UpdateCouponRequest struct {
	Coupon           string  `json:"coupon" binding:"required"`
	AvailableBalance *string `json:"available_balance"`
	ProxyOpenID      *string `json:"proxy_open_id"`
	ProxyOrderID     *string `json:"proxy_order_id"`
	Event            string  `json:"event"`
}

// UpdateCoupon 更新优惠券
func (h *Handler) UpdateCoupon(c *gin.Context) {
	var req UpdateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	input := service.UpdateCouponInput{
		Code:         req.Coupon,
		ProxyOpenID:  req.ProxyOpenID,
		ProxyOrderID: req.ProxyOrderID,
		Event:        strings.TrimSpace(req.Event),
	}
	if req.AvailableBalance != nil {
		balance, err := models.ParseMoney(*req.AvailableBalance)
		if err != nil {
			respondError(c, response.CodeBadRequest, "invalid available_balance", err)
			return
		}
		input.AvailableBalance = &balance
	}
	coupon, err := h.CouponService.Update(c.Request.Context(), input)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, coupon)
}

// UpdateCouponErrorRequest 记录错误码请求
type UpdateCouponErrorRequest struct {
	Coupon    string `json:"coupon" binding:"required"`
	ErrorCode int    `json:"error_code"`
}

// UpdateCouponError 记录下单错误码
func (h *Handler) UpdateCouponError(c *gin.Context) {
	var req UpdateCouponErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	coupon, err := h.CouponService.UpdateErrorCode(c.Request.Context(), req.Coupon, req.ErrorCode)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, coupon)
}

// CouponCodeRequest 仅携带券码的请求
type CouponCodeRequest struct {
	Coupon string `json:"coupon" binding:"required"`
}

// InvalidateCoupon 人工作废
func (h *Handler) InvalidateCoupon(c *gin.Context) {
	var req CouponCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	coupon, err := h.CouponService.Invalidate(c.Request.Context(), req.Coupon)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, coupon)
}

// DeleteCoupon 软删除
func (h *Handler) DeleteCoupon(c *gin.Context) {
	var req CouponCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	if err := h.CouponService.Delete(c.Request.Context(), req.Coupon); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, nil)
}
