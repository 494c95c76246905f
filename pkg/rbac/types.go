package rbac

import (
	"sort"
	"time"
)

// Wildcard matches any concrete value in the action or resource position of a
// permission. A ("*", "*") grant is an explicit global grant; it is never
// implied by a partial wildcard.
const Wildcard = "*"

// Action names an operation a principal may perform.
type Action string

// Actions known to the administration backend. Permissions are data rather
// than code, so arbitrary values remain representable; these constants cover
// the surface the backend itself checks.
const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionExport Action = "export"
	ActionAny    Action = Wildcard
)

// Resource names a protected object class.
type Resource string

const (
	ResourceAccounts     Resource = "accounts"
	ResourceStudies      Resource = "studies"
	ResourceParticipants Resource = "participants"
	ResourceAccessGroups Resource = "access_groups"
	ResourceRoles        Resource = "roles"
	ResourceAny          Resource = Wildcard
)

// Permission is an immutable (action, resource) pair. The pair is unique in
// the store and neither field changes after creation; a different pair is a
// different row.
type Permission struct {
	ID        int64     `json:"id"`
	Action    Action    `json:"action"`
	Resource  Resource  `json:"resource"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the identity of the permission independent of its row id.
func (p Permission) Key() PermissionKey {
	return PermissionKey{Action: p.Action, Resource: p.Resource}
}

// String returns the canonical "action:resource" form used in logs.
func (p Permission) String() string {
	return string(p.Action) + ":" + string(p.Resource)
}

// PermissionKey identifies a permission by its pair alone.
type PermissionKey struct {
	Action   Action
	Resource Resource
}

func (k PermissionKey) String() string {
	return string(k.Action) + ":" + string(k.Resource)
}

// GrantSet is the deduplicated set of permissions a principal holds within a
// resolution scope.
type GrantSet map[PermissionKey]struct{}

// NewGrantSet builds a set from the given permissions.
func NewGrantSet(perms ...Permission) GrantSet {
	g := make(GrantSet, len(perms))
	for _, p := range perms {
		g.Add(p)
	}
	return g
}

// Add inserts a permission into the set.
func (g GrantSet) Add(p Permission) {
	g[p.Key()] = struct{}{}
}

// Contains reports whether the exact pair is in the set.
func (g GrantSet) Contains(action Action, resource Resource) bool {
	_, ok := g[PermissionKey{Action: action, Resource: resource}]
	return ok
}

// Allows evaluates the requested pair against the set. The checks run in a
// fixed order so a trace shows which form of grant matched, but the order
// never changes the outcome: exact pair, action wildcard, resource wildcard,
// full wildcard.
func (g GrantSet) Allows(action Action, resource Resource) bool {
	switch {
	case g.Contains(action, resource):
		return true
	case g.Contains(action, ResourceAny):
		return true
	case g.Contains(ActionAny, resource):
		return true
	case g.Contains(ActionAny, ResourceAny):
		return true
	}
	return false
}

// Keys returns the set's pairs sorted for stable output.
func (g GrantSet) Keys() []PermissionKey {
	keys := make([]PermissionKey, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Action != keys[j].Action {
			return keys[i].Action < keys[j].Action
		}
		return keys[i].Resource < keys[j].Resource
	})
	return keys
}

// Decision is the outcome of an authorization check. Deny is a value, not an
// error: the HTTP layer maps it to an "insufficient permissions" response.
type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
)

// AccessRequest is one authorization ask: may this account perform action on
// resource within the application, and optionally study, scope.
type AccessRequest struct {
	AccountID     string   `json:"account_id"`
	ApplicationID string   `json:"application_id"`
	StudyID       *string  `json:"study_id,omitempty"`
	Action        Action   `json:"action"`
	Resource      Resource `json:"resource"`
}

// AccessGroup scopes a bag of permissions to one application. Archiving a
// group removes its contribution from every member's resolution without
// deleting the rows.
type AccessGroup struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	ApplicationID string    `json:"application_id"`
	Archived      bool      `json:"archived"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Role is an application-independent bag of permissions. It grants nothing on
// its own; it becomes effective only when assigned to an account for a study.
type Role struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Study is the per-study scope roles attach to.
type Study struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	Name          string    `json:"name"`
	Archived      bool      `json:"archived"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
