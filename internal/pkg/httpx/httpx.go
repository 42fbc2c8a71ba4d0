// internal/pkg/httpx/httpx.go
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"tuanbuy/internal/pkg/auth"
)

// TraceContext 从请求头里提取上游的追踪上下文。
func TraceContext(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

// RequireRole 要求已认证且角色匹配，否则直接写 401/403。
func RequireRole(w http.ResponseWriter, r *http.Request, role auth.Role) (*auth.Principal, bool) {
	p := auth.PrincipalFrom(r.Context())
	if p == nil {
		WriteError(w, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	if p.Role != role {
		WriteError(w, http.StatusForbidden, "insufficient role")
		return nil, false
	}
	return p, true
}

// PathID 解析路径里的 {id}。
func PathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// QueryInt 读取正整数查询参数，缺省或非法时回落默认值。
func QueryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// WriteError 统一的错误信封：{"detail": "..."}。
func WriteError(w http.ResponseWriter, status int, detail string) {
	WriteJSON(w, status, map[string]string{"detail": detail})
}
