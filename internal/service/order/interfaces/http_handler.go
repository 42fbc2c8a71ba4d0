// internal/service/order/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"tuanbuy/internal/pkg/auth"
	"tuanbuy/internal/pkg/httpx"
	"tuanbuy/internal/pkg/logger"
	"tuanbuy/internal/pkg/money"
	"tuanbuy/internal/service/order/application"
	"tuanbuy/internal/service/order/domain"

	gbdomain "tuanbuy/internal/service/groupbuy/domain"
)

// OrderHandler 封装订单上下文的 HTTP 处理器。
type OrderHandler struct {
	service *application.OrderService
}

func NewOrderHandler(service *application.OrderService) *OrderHandler {
	return &OrderHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有订单相关路由。
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders", h.createOrder)
	mux.HandleFunc("GET /orders", h.listOrders)
	mux.HandleFunc("GET /orders/{id}", h.getOrder)
	mux.HandleFunc("POST /orders/{id}/pay", h.payOrder)
	mux.HandleFunc("POST /orders/{id}/cancel", h.cancelOrder)
	mux.HandleFunc("POST /orders/{id}/deliver", h.deliverOrder)
	mux.HandleFunc("POST /orders/{id}/confirm", h.confirmReceipt)
}

type createOrderRequest struct {
	MerchantID   int64              `json:"merchant_id"`
	AddressID    int64              `json:"address_id"`
	DealID       *int64             `json:"deal_id"`
	BuyerComment string             `json:"buyer_comment"`
	Items        []orderItemRequest `json:"items"`
}

type orderItemRequest struct {
	ProductID       int64  `json:"product_id"`
	SpecificationID *int64 `json:"specification_id"`
	Quantity        int    `json:"quantity"`
}

func (h *OrderHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.TraceContext(r)
	p, ok := httpx.RequireRole(w, r, auth.RoleUser)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	appReq := &application.CreateOrderRequest{
		MerchantID:   req.MerchantID,
		AddressID:    req.AddressID,
		DealID:       req.DealID,
		BuyerComment: req.BuyerComment,
	}
	for _, item := range req.Items {
		appReq.Items = append(appReq.Items, application.OrderItemRequest{
			ProductID:       item.ProductID,
			SpecificationID: item.SpecificationID,
			Quantity:        item.Quantity,
		})
	}

	order, err := h.service.CreateOrder(ctx, p.UserID, appReq)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	items, err := h.itemsOf(ctx, p.UserID, order.ID)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOrderView(order, items))
}

type payOrderRequest struct {
	Method string `json:"method"`
}

func (h *OrderHandler) payOrder(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.TraceContext(r)
	p, ok := httpx.RequireRole(w, r, auth.RoleUser)
	if !ok {
		return
	}
	orderID, ok := httpx.PathID(w, r)
	if !ok {
		return
	}

	var req payOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.PayOrder(ctx, p.UserID, orderID, &application.PayOrderRequest{Method: req.Method})
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, PayResultView{
		OrderID:   result.OrderID,
		PaymentNo: result.PaymentNo,
		Amount:    money.FormatCents(result.Amount),
	})
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.TraceContext(r)
	p, ok := httpx.RequireRole(w, r, auth.RoleUser)
	if !ok {
		return
	}
	orderID, ok := httpx.PathID(w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	order, err := h.service.CancelOrder(ctx, p.UserID, orderID, req.Reason)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOrderView(order, nil))
}

type deliverOrderRequest struct {
	Carrier    string `json:"carrier"`
	TrackingNo string `json:"tracking_no"`
}

func (h *OrderHandler) deliverOrder(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.TraceContext(r)
	p, ok := httpx.RequireRole(w, r, auth.RoleMerchant)
	if !ok {
		return
	}
	orderID, ok := httpx.PathID(w, r)
	if !ok {
		return
	}

	var req deliverOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.DeliverOrder(ctx, p.UserID, orderID, req.Carrier, req.TrackingNo)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOrderView(order, nil))
}

func (h *OrderHandler) confirmReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.TraceContext(r)
	p, ok := httpx.RequireRole(w, r, auth.RoleUser)
	if !ok {
		return
	}
	orderID, ok := httpx.PathID(w, r)
	if !ok {
		return
	}

	order, err := h.service.ConfirmReceipt(ctx, p.UserID, orderID)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOrderView(order, nil))
}

func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.TraceContext(r)
	p, ok := httpx.RequireRole(w, r, auth.RoleUser)
	if !ok {
		return
	}
	orderID, ok := httpx.PathID(w, r)
	if !ok {
		return
	}

	order, items, err := h.service.GetOrder(ctx, p.UserID, orderID)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOrderView(order, items))
}

func (h *OrderHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.TraceContext(r)
	p, ok := httpx.RequireRole(w, r, auth.RoleUser)
	if !ok {
		return
	}
	page := httpx.QueryInt(r, "page", 1)
	pageSize := httpx.QueryInt(r, "page_size", 20)
	if pageSize > 100 {
		pageSize = 100
	}

	orders, total, err := h.service.ListOrders(ctx, p.UserID, page, pageSize)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	views := make([]*OrderView, len(orders))
	for i, o := range orders {
		views[i] = toOrderView(o, nil)
	}
	httpx.WriteJSON(w, http.StatusOK, PageView{Items: views, Total: total, Page: page, PageSize: pageSize})
}

func (h *OrderHandler) itemsOf(ctx context.Context, userID, orderID int64) ([]*domain.OrderItem, error) {
	_, items, err := h.service.GetOrder(ctx, userID, orderID)
	return items, err
}

// writeDomainError 把两个上下文的哨兵错误翻译成 HTTP 状态码。
// 订单路径会透传团购侧的错误（席位释放、活动校验）。
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gbdomain.ErrValidation), errors.Is(err, domain.ErrEmptyOrder):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, gbdomain.ErrDealNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, gbdomain.ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, gbdomain.ErrStateTerminal):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrOrderStateInvalid),
		errors.Is(err, domain.ErrDuplicateDealOrder),
		errors.Is(err, domain.ErrOutOfStock),
		errors.Is(err, domain.ErrPaymentExpired),
		errors.Is(err, gbdomain.ErrDealNotJoinable),
		errors.Is(err, gbdomain.ErrNotJoined):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, gbdomain.ErrBusy):
		httpx.WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Ctx(ctx).Error().Err(err).Msg("unhandled error at http boundary")
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
