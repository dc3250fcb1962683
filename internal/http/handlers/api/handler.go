package api

import (
	handlershared "github.com/couponhub/internal/http/handlers/shared"
	"github.com/couponhub/internal/provider"

	"github.com/gin-gonic/gin"
)

// Handler 优惠券与代理订单接口处理器入口
type Handler struct {
	*provider.Container
}

// New 创建处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func respondServiceError(c *gin.Context, err error) {
	handlershared.RespondServiceError(c, err)
}
