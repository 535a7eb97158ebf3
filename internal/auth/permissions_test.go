package auth

import "testing"

func TestHasPermission_PathScopedGrant(t *testing.T) {
	ident := Identity{Permissions: []Permission{{ResourceType: "entities", PermissionType: "/billing:read"}}}

	if !HasPermission(ident, "entities", "read", "/billing/x") {
		t.Fatal("expected access to /billing/x under /billing:read grant")
	}
	if HasPermission(ident, "entities", "read", "/hr/x") {
		t.Fatal("expected no access to /hr/x")
	}
}

func TestHasPermission_SuperAdminAllowsEverything(t *testing.T) {
	ident := Identity{SuperAdmin: true}
	if !HasPermission(ident, "entities", "admin", "/anything") {
		t.Fatal("super admin should bypass all checks")
	}
}

func TestHasPermission_NamespaceAdminGrant(t *testing.T) {
	ident := Identity{Permissions: []Permission{{ResourceType: "workflows", PermissionType: "admin"}}}
	if !HasPermission(ident, "workflows", "delete", "") {
		t.Fatal("namespace admin grant should allow any action in that namespace")
	}
}

func TestHasPermission_ExactMatchFallback(t *testing.T) {
	ident := Identity{Permissions: []Permission{{ResourceType: "system_settings", PermissionType: "update"}}}
	if !HasPermission(ident, "system_settings", "update", "") {
		t.Fatal("expected exact namespace:action match")
	}
	if HasPermission(ident, "system_settings", "delete", "") {
		t.Fatal("unexpected match for unrelated action")
	}
}

func TestHasPermission_ScopedAdminGrantDeniesPathlessRequest(t *testing.T) {
	ident := Identity{Permissions: []Permission{{ResourceType: "entities", PermissionType: "/billing:admin"}}}
	if HasPermission(ident, "entities", "read", "") {
		t.Fatal("a scoped grant with a non-empty prefix must deny requests lacking a path")
	}
}
