// internal/auth/permissions.go
package auth

import (
	"sort"
	"sync"
)

// Permission names a capability a player may hold.
type Permission string

const (
	PermAdmin         Permission = "admin"
	PermKickPlayer    Permission = "kick_player"
	PermBanPlayer     Permission = "ban_player"
	PermModifyLobby   Permission = "modify_lobby"
	PermAddBot        Permission = "add_bot"
	PermRemoveBot     Permission = "remove_bot"
	PermStartMatch    Permission = "start_match"
	PermViewAnalytics Permission = "view_analytics"
)

// AllPermissions lists every known permission.
var AllPermissions = []Permission{
	PermAdmin, PermKickPlayer, PermBanPlayer, PermModifyLobby,
	PermAddBot, PermRemoveBot, PermStartMatch, PermViewAnalytics,
}

// Role is a named bundle of permissions.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RolePlayer    Role = "player"
)

// rolePermissions returns the grants a role confers. Unknown roles confer nothing.
func rolePermissions(r Role) []Permission {
	switch r {
	case RoleAdmin:
		return AllPermissions
	case RoleModerator:
		return []Permission{PermKickPlayer, PermAddBot, PermRemoveBot}
	default:
		return nil
	}
}

// PermissionManager tracks per-player grants. It is safe for concurrent use
// and holds its own lock, independent of the lobby engine.
type PermissionManager struct {
	mu     sync.RWMutex
	grants map[string]map[Permission]struct{}
}

func NewPermissionManager() *PermissionManager {
	return &PermissionManager{grants: make(map[string]map[Permission]struct{})}
}

// Grant gives playerID a permission.
func (pm *PermissionManager) Grant(playerID string, perm Permission) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.grantUnsafe(playerID, perm)
}

func (pm *PermissionManager) grantUnsafe(playerID string, perm Permission) {
	set, ok := pm.grants[playerID]
	if !ok {
		set = make(map[Permission]struct{})
		pm.grants[playerID] = set
	}
	set[perm] = struct{}{}
}

// Revoke removes a permission. Revoking something never granted is a no-op.
func (pm *PermissionManager) Revoke(playerID string, perm Permission) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	set, ok := pm.grants[playerID]
	if !ok {
		return
	}
	delete(set, perm)
	if len(set) == 0 {
		delete(pm.grants, playerID)
	}
}

// Has reports whether playerID holds perm. Admins hold every permission.
func (pm *PermissionManager) Has(playerID string, perm Permission) bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	set := pm.grants[playerID]
	if _, ok := set[PermAdmin]; ok {
		return true
	}
	_, ok := set[perm]
	return ok
}

// AssignRole adds every permission the role confers.
func (pm *PermissionManager) AssignRole(playerID string, role Role) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, perm := range rolePermissions(role) {
		pm.grantUnsafe(playerID, perm)
	}
}

// Permissions returns playerID's grants in sorted order.
func (pm *PermissionManager) Permissions(playerID string) []Permission {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	out := make([]Permission, 0, len(pm.grants[playerID]))
	for perm := range pm.grants[playerID] {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (pm *PermissionManager) IsAdmin(playerID string) bool {
	return pm.Has(playerID, PermAdmin)
}

// Forget drops every grant held by playerID.
func (pm *PermissionManager) Forget(playerID string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.grants, playerID)
}
