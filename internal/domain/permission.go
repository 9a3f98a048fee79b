package domain

import (
	"fmt"
	"strings"
)

// Permission is a fine-grained capability tag carried in access tokens.
type Permission string

const (
	PermissionCreateRequest       Permission = "CREATE_REQUEST"
	PermissionEditRequest         Permission = "EDIT_REQUEST"
	PermissionDeleteRequest       Permission = "DELETE_REQUEST"
	PermissionPublishRequest      Permission = "PUBLISH_REQUEST"
	PermissionViewRequests        Permission = "VIEW_REQUESTS"
	PermissionAwardBid            Permission = "AWARD_BID"
	PermissionManageUsers         Permission = "MANAGE_USERS"
	PermissionManageBilling       Permission = "MANAGE_BILLING"
	PermissionViewOpportunities   Permission = "VIEW_OPPORTUNITIES"
	PermissionSubmitBid           Permission = "SUBMIT_BID"
	PermissionEditBid             Permission = "EDIT_BID"
	PermissionDeleteBid           Permission = "DELETE_BID"
	PermissionViewBids            Permission = "VIEW_BIDS"
	PermissionManageOrganizations Permission = "MANAGE_ORGANIZATIONS"
	PermissionManageSystem        Permission = "MANAGE_SYSTEM"
)

var knownPermissions = map[Permission]struct{}{
	PermissionCreateRequest:       {},
	PermissionEditRequest:         {},
	PermissionDeleteRequest:       {},
	PermissionPublishRequest:      {},
	PermissionViewRequests:        {},
	PermissionAwardBid:            {},
	PermissionManageUsers:         {},
	PermissionManageBilling:       {},
	PermissionViewOpportunities:   {},
	PermissionSubmitBid:           {},
	PermissionEditBid:             {},
	PermissionDeleteBid:           {},
	PermissionViewBids:            {},
	PermissionManageOrganizations: {},
	PermissionManageSystem:        {},
}

// Valid reports whether p is a known permission.
func (p Permission) Valid() bool {
	_, ok := knownPermissions[p]
	return ok
}

// NormalizePermissions trims and upper-cases raw tags, then builds a permission set from them.
func NormalizePermissions(raw []string) ([]Permission, error) {
	perms := make([]Permission, 0, len(raw))
	for _, r := range raw {
		perms = append(perms, Permission(strings.ToUpper(strings.TrimSpace(r))))
	}
	return PermissionSet(perms)
}

// PermissionSet de-duplicates perms keeping first-seen order. Empty tags are skipped
// and unknown ones rejected. The result is never nil.
func PermissionSet(perms []Permission) ([]Permission, error) {
	seen := make(map[Permission]struct{}, len(perms))
	out := make([]Permission, 0, len(perms))
	for _, p := range perms {
		if p == "" {
			continue
		}
		if !p.Valid() {
			return nil, fmt.Errorf("unknown permission %q", p)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// PermissionStrings converts a permission set to plain strings for storage and claims.
func PermissionStrings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// HasPermission reports whether perms contains p.
func HasPermission(perms []Permission, p Permission) bool {
	for _, candidate := range perms {
		if candidate == p {
			return true
		}
	}
	return false
}
