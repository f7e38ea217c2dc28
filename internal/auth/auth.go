// Package auth 对外部认证系统的最小依赖：取当前用户、判断角色
//
// 会话与登录不在本服务内，网关校验身份后通过请求头透传。
package auth

import (
	"context"
	"net/http"
	"strings"
)

const (
	RoleAdmin           = "admin"
	RoleBillingOperator = "billing_operator"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRoles = "X-User-Roles"
)

// User 当前操作人
type User struct {
	ID    string
	Roles []string
}

// Authenticator 对应外部协作方的 getCurrentUser(request)
type Authenticator interface {
	CurrentUser(r *http.Request) (*User, bool)
}

// HeaderAuthenticator 信任网关写入的 X-User-ID / X-User-Roles（逗号分隔）
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) CurrentUser(r *http.Request) (*User, bool) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return nil, false
	}
	var roles []string
	for _, role := range strings.Split(r.Header.Get(HeaderUserRoles), ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, strings.ToLower(role))
		}
	}
	return &User{ID: id, Roles: roles}, true
}

// HasRole 用户具备任一角色即返回 true；nil 用户恒为 false
func HasRole(user *User, roles ...string) bool {
	if user == nil {
		return false
	}
	for _, have := range user.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// CanBill 分配来款、编辑费率需要的角色
func CanBill(user *User) bool {
	return HasRole(user, RoleBillingOperator, RoleAdmin)
}

type ctxKey struct{}

func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, ctxKey{}, user)
}

func FromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(ctxKey{}).(*User)
	return user, ok && user != nil
}
