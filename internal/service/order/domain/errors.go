// internal/service/order/domain/errors.go
package domain

import "errors"

var (
	// ErrOrderNotFound 订单不存在
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderStateInvalid 当前状态下不允许该操作
	ErrOrderStateInvalid = errors.New("operation not allowed in current order state")

	// ErrDuplicateDealOrder 同一用户对同一活动已有未取消的订单
	ErrDuplicateDealOrder = errors.New("an active order for this deal already exists")

	// ErrOutOfStock 库存不足，扣减失败
	ErrOutOfStock = errors.New("insufficient stock")

	// ErrPaymentExpired 超出支付窗口
	ErrPaymentExpired = errors.New("payment window has expired")

	// ErrProductNotFound 商品不存在或已下架
	ErrProductNotFound = errors.New("product not found or inactive")

	// ErrEmptyOrder 订单没有任何条目
	ErrEmptyOrder = errors.New("order must contain at least one item")

	// ErrForbidden 非订单归属方
	ErrForbidden = errors.New("operation not allowed for this account")
)
