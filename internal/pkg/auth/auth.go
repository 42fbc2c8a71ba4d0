// internal/pkg/auth/auth.go
package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// Role 区分普通买家和商家。
type Role string

const (
	RoleUser     Role = "user"
	RoleMerchant Role = "merchant"
)

// Principal 是请求的已认证身份。
type Principal struct {
	UserID int64
	Role   Role
}

// TokenStore 把 bearer token 解析成身份。
type TokenStore interface {
	Resolve(token string) (*Principal, bool)
}

// DevTokenStore 是开发环境的静态令牌实现：
// "user:<id>" 和 "merchant:<id>" 直接编码身份。
// 真正的认证服务在网关层，这里只是边界桩。
type DevTokenStore struct{}

func (DevTokenStore) Resolve(token string) (*Principal, bool) {
	role, rawID, ok := strings.Cut(token, ":")
	if !ok {
		return nil, false
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return nil, false
	}
	switch Role(role) {
	case RoleUser, RoleMerchant:
		return &Principal{UserID: id, Role: Role(role)}, true
	}
	return nil, false
}

type ctxKey struct{}

// WithPrincipal 把身份写进 context，测试里也用它伪造登录态。
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFrom 取出请求身份，未认证返回 nil。
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(ctxKey{}).(*Principal)
	return p
}

// Middleware 解析 Authorization: Bearer 头。解析成功就把身份挂到
// context 上；失败不拦截，公开端点照常放行，由各 handler 自行要求
// 登录态和角色。
func Middleware(store TokenStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			if p, found := store.Resolve(strings.TrimSpace(token)); found {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			}
		}
		next.ServeHTTP(w, r)
	})
}
