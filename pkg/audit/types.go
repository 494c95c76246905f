// Package audit records security-relevant events: authentication outcomes,
// token refreshes and denied authorization asks. Events are persisted to the
// database and mirrored to the structured log so operators can follow them in
// real time while reviewers query the full trail later.
package audit

import "time"

// Event is one security audit record.
type Event struct {
	ID            int64     `json:"id"`
	Action        string    `json:"action"`
	Outcome       string    `json:"outcome"`
	PrincipalID   string    `json:"principal_id,omitempty"`
	PrincipalKind string    `json:"principal_kind,omitempty"`
	ApplicationID string    `json:"application_id,omitempty"`
	StudyID       string    `json:"study_id,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	IPAddress     string    `json:"ip_address,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Audit action names.
const (
	ActionLoginStarted    = "auth.login_started"
	ActionLoginSucceeded  = "auth.login_succeeded"
	ActionLoginFailed     = "auth.login_failed"
	ActionLogout          = "auth.logout"
	ActionTokenRefreshed  = "auth.token_refreshed"
	ActionAuthorizeDenied = "authz.denied"
)

// Outcome values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)

// Filters narrows an audit query. Zero values match everything.
type Filters struct {
	PrincipalID string
	Action      string
	Outcome     string
	Since       *time.Time
	Until       *time.Time
	Limit       int
}
