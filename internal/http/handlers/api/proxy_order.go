package api

import (
	"strings"
	"time"

	"github.com/couponhub/internal/constants"
	handlershared "github.com/couponhub/internal/http/handlers/shared"
	"github.com/couponhub/internal/http/response"
	"github.com/couponhub/internal/models"

	"github.com/gin-gonic/gin"
)

// proxyOrderView 代理订单查询结果
type proxyOrderView struct {
	Origin string             `json:"origin"`
	Order  *models.ProxyOrder `json:"proxy_order"`
}

// GetProxyOrder 按券码解析代理订单
func (h *Handler) GetProxyOrder(c *gin.Context) {
	res, err := h.ProxyOrderService.Get(c.Request.Context(), c.Query("coupon"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, proxyOrderView{Origin: res.Origin, Order: res.Value})
}

// QueryProxyOrdersRequest 批量解析请求
type QueryProxyOrdersRequest struct {
	TargetProxy string   `json:"target_proxy" binding:"required"`
	Coupons     []string `json:"coupons" binding:"required"`
	Status      string   `json:"status"`
}

// QueryProxyOrders 批量解析代理订单，单个失败不影响其余结果
func (h *Handler) QueryProxyOrders(c *gin.Context) {
	var req QueryProxyOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	results, err := h.ProxyOrderService.BatchGet(c.Request.Context(), constants.TargetProxy(strings.TrimSpace(req.TargetProxy)), req.Coupons, req.Status)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	views := make([]proxyOrderView, 0, len(results))
	for _, res := range results {
		views = append(views, proxyOrderView{Origin: res.Origin, Order: res.Value})
	}
	response.Success(c, views)
}

// InsertProxyOrder 写入代理订单
func (h *Handler) InsertProxyOrder(c *gin.Context) {
	var order models.ProxyOrder
	if err := c.ShouldBindJSON(&order); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	order.ID = 0
	order.IsDeleted = false
	if err := h.ProxyOrderService.Insert(c.Request.Context(), &order); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, order)
}

// UpdateProxyOrder 更新代理订单
func (h *Handler) UpdateProxyOrder(c *gin.Context) {
	var order models.ProxyOrder
	if err := c.ShouldBindJSON(&order); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	if err := h.ProxyOrderService.Update(c.Request.Context(), &order); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, order)
}

// DeleteProxyOrderRequest 删除请求
type DeleteProxyOrderRequest struct {
	TargetProxy  string `json:"target_proxy" binding:"required"`
	ProxyOrderID string `json:"proxy_order_id" binding:"required"`
}

// DeleteProxyOrder 软删除代理订单
func (h *Handler) DeleteProxyOrder(c *gin.Context) {
	var req DeleteProxyOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	if err := h.ProxyOrderService.Delete(c.Request.Context(), constants.TargetProxy(strings.TrimSpace(req.TargetProxy)), req.ProxyOrderID); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, nil)
}

// BackupProxyOrdersRequest 回填请求，时间为空时默认最近 48 小时
type BackupProxyOrdersRequest struct {
	TargetProxy string `json:"target_proxy" binding:"required"`
	From        string `json:"from"`
	To          string `json:"to"`
}

// BackupProxyOrders 将时间范围内仅存在于平台的代理订单回填到本地
func (h *Handler) BackupProxyOrders(c *gin.Context) {
	var req BackupProxyOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	from, err := handlershared.ParseTimeNullable(req.From)
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid from", err)
		return
	}
	to, err := handlershared.ParseTimeNullable(req.To)
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid to", err)
		return
	}
	end := time.Now()
	if to != nil {
		end = *to
	}
	start := end.Add(-48 * time.Hour)
	if from != nil {
		start = *from
	}

	inserted, err := h.ProxyOrderService.Backup(c.Request.Context(), constants.TargetProxy(strings.TrimSpace(req.TargetProxy)), start, end)
	if err != nil {
		handlershared.RequestLog(c).Warnw("proxy_order_backup_partial", "inserted", inserted, "error", err)
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"inserted": inserted})
}
