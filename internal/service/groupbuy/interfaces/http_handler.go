// internal/service/groupbuy/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"tuanbuy/internal/pkg/auth"
	"tuanbuy/internal/pkg/httpx"
	"tuanbuy/internal/pkg/logger"
	"tuanbuy/internal/pkg/money"
	"tuanbuy/internal/service/groupbuy/application"
	"tuanbuy/internal/service/groupbuy/domain"
)

// GroupBuyHandler 封装团购上下文的 HTTP 处理器。
type GroupBuyHandler struct {
	service *application.GroupBuyService
}

func NewGroupBuyHandler(service *application.GroupBuyService) *GroupBuyHandler {
	return &GroupBuyHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有活动相关路由。
func (h *GroupBuyHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /deals", h.createDeal)
	mux.HandleFunc("PATCH /deals/{id}", h.updateDeal)
	mux.HandleFunc("GET /deals", h.listDeals)
	mux.HandleFunc("GET /deals/{id}", h.getDeal)
	mux.HandleFunc("GET /deals/{id}/participants", h.listParticipants)
	mux.HandleFunc("POST /deals/{id}/join", h.join)
	mux.HandleFunc("POST /deals/{id}/cancel", h.cancel)
}

type createDealRequest struct {
	ProductID       int64  `json:"product_id"`
	Title           string `json:"title"`
	CoverImage      string `json:"cover_image"`
	Description     string `json:"description"`
	GroupPrice      string `json:"group_price"`
	OriginalPrice   string `json:"original_price"`
	MinParticipants int    `json:"min_participants"`
	MaxParticipants *int   `json:"max_participants"`
	DurationDays    int    `json:"duration_days"`
	IsFeatured      bool   `json:"is_featured"`
	StartAt         string `json:"start_at"`
}

func (h *GroupBuyHandler) createDeal(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.TraceContext(r)
	p, ok := httpx.RequireRole(w, r, auth.RoleMerchant)
	if !ok {
		return
	}

	var req createDealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	groupPrice, err := money.ParseCents(req.GroupPrice)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid group_price")
		return
	}
	originalPrice, err := money.ParseCents(req.OriginalPrice)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid original_price")
		return
	}
	var startAt *time.Time
	if req.StartAt != "" {
		t, err := time.Parse(time.RFC3339, req.StartAt)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid start_at")
			return
		}
		startAt = &t
	}

	deal, err := h.service.CreateDeal(ctx, p.UserID, &application.CreateDealRequest{
		ProductID:       req.ProductID,
		Title:           req.Title,
		CoverImage:      req.CoverImage,
		Description:     req.Description,
		GroupPrice:      groupPrice,
		OriginalPrice:   originalPrice,
		MinParticipants: req.MinParticipants,
		MaxParticipants: req.MaxParticipants,
		DurationDays:    req.DurationDays,
		IsFeatured:      req.IsFeatured,
		StartAt:         startAt,
	})
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toDealView(deal))
}

type updateDealRequest struct {
	Title           *string `json:"title"`
	CoverImage      *string `json:"cover_image"`
	Description     *string `json:"description"`
	MinParticipants *int    `json:"min_participants"`
	MaxParticipants *int    `json:"max_participants"`
	EndAt           *string `json:"end_at"`
	IsFeatured      *bool   `json:"is_featured"`
}

func (h *GroupBuyHandler) updateDeal(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.TraceContext(r)
	p, ok := httpx.RequireRole(w, r, auth.RoleMerchant)
	if !ok {
		return
	}
	dealID, ok := httpx.PathID(w, r)
	if !ok {
		return
	}

	var req updateDealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	update := domain.DealUpdate{
		Title:           req.Title,
		CoverImage:      req.CoverImage,
		Description:     req.Description,
		MinParticipants: req.MinParticipants,
		MaxParticipants: req.MaxParticipants,
		IsFeatured:      req.IsFeatured,
	}
	if req.EndAt != nil {
		t, err := time.Parse(time.RFC3339, *req.EndAt)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid end_at")
			return
		}
		update.EndAt = &t
	}

	deal, err := h.service.UpdateDeal(ctx, p.UserID, dealID, update)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toDealView(deal))
}

func (h *GroupBuyHandler) listDeals(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.TraceContext(r)
	q := domain.ListDealsQuery{
		Keyword:  r.URL.Query().Get("keyword"),
		State:    domain.DealState(r.URL.Query().Get("status")),
		Page:     httpx.QueryInt(r, "page", 1),
		PageSize: httpx.QueryInt(r, "page_size", 20),
	}
	q.MerchantID, _ = strconv.ParseInt(r.URL.Query().Get("merchant_id"), 10, 64)
	q.ProductID, _ = strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if raw := r.URL.Query().Get("featured"); raw != "" {
		featured := raw == "true"
		q.Featured = &featured
	}
	if q.PageSize > 100 {
		q.PageSize = 100
	}

	deals, total, err := h.service.ListDeals(ctx, q)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	views := make([]*DealView, len(deals))
	for i, d := range deals {
		views[i] = toDealView(d)
	}
	httpx.WriteJSON(w, http.StatusOK, PageView{Items: views, Total: total, Page: q.Page, PageSize: q.PageSize})
}

func (h *GroupBuyHandler) getDeal(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.TraceContext(r)
	dealID, ok := httpx.PathID(w, r)
	if !ok {
		return
	}
	var callerID int64
	if p := auth.PrincipalFrom(ctx); p != nil {
		callerID = p.UserID
	}

	detail, err := h.service.GetDealDetail(ctx, dealID, callerID)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, DealDetailView{
		DealView:         *toDealView(detail.Deal),
		RemainingSeconds: detail.RemainingSeconds,
		IsJoined:         detail.IsJoined,
	})
}

func (h *GroupBuyHandler) listParticipants(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.TraceContext(r)
	dealID, ok := httpx.PathID(w, r)
	if !ok {
		return
	}
	participants, err := h.service.ListParticipants(ctx, dealID)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	views := make([]*ParticipationView, len(participants))
	for i, p := range participants {
		views[i] = toParticipationView(p)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"participants": views})
}

func (h *GroupBuyHandler) join(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.TraceContext(r)
	p, ok := httpx.RequireRole(w, r, auth.RoleUser)
	if !ok {
		return
	}
	dealID, ok := httpx.PathID(w, r)
	if !ok {
		return
	}

	result, err := h.service.Join(ctx, dealID, p.UserID)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, JoinView{
		Participation:       toParticipationView(result.Participation),
		CurrentParticipants: result.CurrentParticipants,
		MinParticipants:     result.MinParticipants,
		MaxParticipants:     result.MaxParticipants,
	})
}

func (h *GroupBuyHandler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.TraceContext(r)
	p, ok := httpx.RequireRole(w, r, auth.RoleUser)
	if !ok {
		return
	}
	dealID, ok := httpx.PathID(w, r)
	if !ok {
		return
	}

	if err := h.service.CancelParticipation(ctx, dealID, p.UserID); err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// writeDomainError 把领域哨兵错误翻译成 HTTP 状态码。
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrDealNotFound), errors.Is(err, domain.ErrProductNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrStateTerminal):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrDuplicateActiveDeal),
		errors.Is(err, domain.ErrDealNotJoinable),
		errors.Is(err, domain.ErrDealFull),
		errors.Is(err, domain.ErrAlreadyJoined),
		errors.Is(err, domain.ErrNotJoined),
		errors.Is(err, domain.ErrCannotCancelPaid):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrBusy):
		httpx.WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Ctx(ctx).Error().Err(err).Msg("unhandled error at http boundary")
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
