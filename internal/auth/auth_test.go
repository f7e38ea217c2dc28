package auth

import (
	"net/http/httptest"
	"testing"
)

func TestHeaderAuthenticator(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	if _, ok := (HeaderAuthenticator{}).CurrentUser(req); ok {
		t.Fatalf("expected no user without header")
	}

	req.Header.Set(HeaderUserID, "op-1")
	req.Header.Set(HeaderUserRoles, " Billing_Operator , viewer,")
	user, ok := (HeaderAuthenticator{}).CurrentUser(req)
	if !ok {
		t.Fatalf("expected user")
	}
	if user.ID != "op-1" {
		t.Fatalf("unexpected id %q", user.ID)
	}
	if len(user.Roles) != 2 || user.Roles[0] != RoleBillingOperator || user.Roles[1] != "viewer" {
		t.Fatalf("unexpected roles %v", user.Roles)
	}
	if !CanBill(user) {
		t.Fatalf("billing operator must be allowed to bill")
	}
}

func TestHasRole(t *testing.T) {
	if HasRole(nil, RoleAdmin) {
		t.Fatalf("nil user has no roles")
	}
	viewer := &User{ID: "v", Roles: []string{"viewer"}}
	if CanBill(viewer) {
		t.Fatalf("viewer must not bill")
	}
	admin := &User{ID: "a", Roles: []string{RoleAdmin}}
	if !HasRole(admin, RoleBillingOperator, RoleAdmin) {
		t.Fatalf("admin matches any-of")
	}
}
