// internal/service/order/port/finalizer.go
package port

import "context"

// DealFinalizer 是团购终态化原语的入站引用。
// 订单路径观察到过期活动时借它做惰性收口，不自己重复实现。
type DealFinalizer interface {
	FinalizeDeal(ctx context.Context, dealID int64) (bool, error)
}

// RefundGateway 是支付网关退款的出站端口。
// 真正的打款是异步的：这里只负责把退款请求排进网关，
// 失败由对账任务兜底，不阻塞订单状态机。
type RefundGateway interface {
	EnqueueRefund(ctx context.Context, paymentNo string, amount int64) error
}
