package auth

import "strings"

// HasPermission implements the permission check:
//  1. super_admin on the identity allows everything.
//  2. a "<namespace>:admin" permission on the identity allows everything in
//     that namespace.
//  3. for the "entities" namespace with a request path, a permission shaped
//     "entities:/<prefix>:<action>" allows when <prefix> is a prefix of the
//     requested path; the first matching grant wins.
//  4. otherwise an exact "<namespace>:<action>" match is required.
//
// An "entities:/<prefix>:admin" grant with a non-empty prefix denies
// requests that carry no path at all (there is nothing for the prefix to
// match against).
func HasPermission(identity Identity, namespace, action string, path string) bool {
	if identity.SuperAdmin {
		return true
	}

	for _, p := range identity.Permissions {
		if p.ResourceType == namespace && p.PermissionType == "admin" {
			return true
		}
	}

	if namespace == "entities" {
		for _, p := range identity.Permissions {
			prefix, act, ok := parsePathScopedGrant(p.PermissionType)
			if !ok || p.ResourceType != namespace {
				continue
			}
			if act != action && act != "admin" {
				continue
			}
			if prefix != "" && path == "" {
				// a scoped grant can't authorize a pathless request
				continue
			}
			if strings.HasPrefix(path, prefix) {
				return true
			}
		}
	}

	for _, p := range identity.Permissions {
		if p.ResourceType == namespace && p.PermissionType == action {
			return true
		}
	}

	return false
}

// parsePathScopedGrant splits a permission_type of the shape
// "/<prefix>:<action>" into its prefix and action. Returns ok=false if the
// string isn't shaped as a path-scoped grant.
func parsePathScopedGrant(permissionType string) (prefix, action string, ok bool) {
	if !strings.HasPrefix(permissionType, "/") {
		return "", "", false
	}
	idx := strings.LastIndex(permissionType, ":")
	if idx < 0 {
		return "", "", false
	}
	return permissionType[:idx], permissionType[idx+1:], true
}
