package queue

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/couponhub/internal/constants"
	"github.com/couponhub/internal/models"

	"github.com/hibiken/asynq"
)

const (
	// TaskOrderInserted 外部订单入库事件
	TaskOrderInserted = constants.TaskOrderInserted
	// TaskCouponGenerated 优惠券已生成事件
	TaskCouponGenerated = constants.TaskCouponGenerated
)

// ErrPayloadInvalid 任务载荷不合法
var ErrPayloadInvalid = errors.New("task payload invalid")

// OrderInsertedPayload 外部订单入库事件载荷，只作为定位信息，业务数据需重新查询
type OrderInsertedPayload struct {
	FromPlatform string `json:"fromPlatform"`
	Tid          string `json:"tid"`
}

// Validate 校验载荷
func (p OrderInsertedPayload) Validate() error {
	if strings.TrimSpace(p.FromPlatform) == "" || strings.TrimSpace(p.Tid) == "" {
		return ErrPayloadInvalid
	}
	return nil
}

// ParseOrderInsertedPayload 解析订单事件载荷
func ParseOrderInsertedPayload(body []byte) (OrderInsertedPayload, error) {
	var payload OrderInsertedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, errors.Join(ErrPayloadInvalid, err)
	}
	payload.FromPlatform = strings.TrimSpace(payload.FromPlatform)
	payload.Tid = strings.TrimSpace(payload.Tid)
	return payload, payload.Validate()
}

// NewOrderInsertedTask 创建订单事件任务
func NewOrderInsertedTask(payload OrderInsertedPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderInserted, body), nil
}

// NewCouponGeneratedTask 创建优惠券生成事件任务，载荷为完整优惠券
func NewCouponGeneratedTask(coupon *models.Coupon) (*asynq.Task, error) {
	if coupon == nil {
		return nil, ErrPayloadInvalid
	}
	body, err := json.Marshal(coupon)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCouponGenerated, body), nil
}
