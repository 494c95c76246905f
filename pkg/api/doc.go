// Package api exposes the HTTP surface of the service: the OIDC login,
// callback, logout and refresh endpoints for each principal kind, a
// permission-check middleware for protected routes, and the health and
// metrics endpoints.
//
// The surface is deliberately thin. Handlers translate HTTP requests into
// calls on the oidc controllers and the rbac engine, and translate their
// typed errors back into status codes; no business logic lives here.
package api
