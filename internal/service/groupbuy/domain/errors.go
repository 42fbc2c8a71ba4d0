// internal/service/groupbuy/domain/errors.go
package domain

import "errors"

// 团购核心的领域错误。接口层用 errors.Is 匹配并翻译成 HTTP 状态码。
var (
	// ErrValidation 输入不合法，具体原因通过 %w 包装附带
	ErrValidation = errors.New("validation failed")

	// ErrDealNotFound 活动不存在
	ErrDealNotFound = errors.New("deal not found")

	// ErrProductNotFound 商品不存在或不属于该商家
	ErrProductNotFound = errors.New("product not found for merchant")

	// ErrDuplicateActiveDeal 同一商品已有进行中的活动
	ErrDuplicateActiveDeal = errors.New("product already has an active deal")

	// ErrStateTerminal 活动已终态，拒绝一切变更
	ErrStateTerminal = errors.New("deal is in a terminal state")

	// ErrDealNotJoinable 活动不在可加入状态（未开始/已过期/已终态）
	ErrDealNotJoinable = errors.New("deal is not joinable")

	// ErrDealFull 活动人数已满
	ErrDealFull = errors.New("deal is full")

	// ErrAlreadyJoined 已有未取消的参团记录
	ErrAlreadyJoined = errors.New("already joined this deal")

	// ErrNotJoined 没有可取消的参团记录
	ErrNotJoined = errors.New("not joined this deal")

	// ErrCannotCancelPaid 已支付的席位只能走订单退款释放
	ErrCannotCancelPaid = errors.New("cannot cancel a paid participation, refund the order instead")

	// ErrForbidden 非资源所有者
	ErrForbidden = errors.New("operation not allowed for this account")

	// ErrBusy 行锁等待超时或死锁重试耗尽，客户端可重试
	ErrBusy = errors.New("resource busy, retry later")
)
