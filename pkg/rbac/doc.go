// Package rbac implements the permission resolution engine for the
// research-study administration backend.
//
// Authorization is modeled as a bipartite grant graph connecting accounts to
// immutable (action, resource) permission pairs through two independent paths:
//
//   - AccessGroup path: an account is a member of an access group, the group is
//     scoped to exactly one application, and the group carries permissions.
//   - Role path: an account is assigned a role for one specific study, and the
//     role carries permissions. Roles are application-independent.
//
// Resolving an account's effective grant set unions both paths and
// deduplicates, since the same permission may be reachable through both.
// Archived access groups, roles and studies contribute nothing to resolution
// even though their rows remain in the database.
//
// The engine performs no caching: grant and revoke operations made through the
// administrative CRUD layer must be visible to the very next Authorize call.
// Each Authorize resolves the grant set exactly once and evaluates the
// requested pair against it, so a single decision never observes two different
// states of the graph.
package rbac
