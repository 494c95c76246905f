package rbac

import (
	"context"
	"fmt"

	"github.com/cohortd/cohort/pkg/audit"
	"github.com/cohortd/cohort/pkg/observability"
)

// AuditSink receives security-relevant events. Satisfied by audit.Logger.
type AuditSink interface {
	Record(ctx context.Context, event *audit.Event) error
}

// Engine resolves effective grant sets and evaluates authorization requests
// against them. It holds no grant state of its own: every decision reads the
// graph fresh, because stale authorization is a security bug, not a
// performance problem.
type Engine struct {
	store   *Store
	logger  *observability.Logger
	audit   AuditSink
	metrics *observability.Metrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithAuditSink wires denied asks into the audit log.
func WithAuditSink(sink AuditSink) EngineOption {
	return func(e *Engine) { e.audit = sink }
}

// WithMetrics enables decision counters.
func WithMetrics(m *observability.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a permission resolution engine over the given store.
func NewEngine(store *Store, logger *observability.Logger, opts ...EngineOption) *Engine {
	e := &Engine{store: store, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve computes the deduplicated permission set the account holds within
// the application scope, plus the role path when a study scope is supplied.
// A study id referring to an archived (or unknown) study behaves exactly as
// if no study id had been passed: the account keeps its application-global
// grants instead of being locked out by a stale reference.
func (e *Engine) Resolve(ctx context.Context, accountID, applicationID string, studyID *string) (GrantSet, error) {
	groupPerms, err := e.store.GroupPermissionsFor(ctx, accountID, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve group permissions for %s: %w", accountID, err)
	}

	grants := NewGrantSet(groupPerms...)

	if studyID != nil {
		active, err := e.store.StudyActive(ctx, *studyID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve study scope %s: %w", *studyID, err)
		}
		if active {
			rolePerms, err := e.store.RolePermissionsFor(ctx, accountID, *studyID)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve role permissions for %s: %w", accountID, err)
			}
			for _, p := range rolePerms {
				grants.Add(p)
			}
		}
	}

	return grants, nil
}

// Authorize resolves the request's scope once and evaluates the requested
// (action, resource) pair. Deny is a decision, not an error: it is logged and
// audited here so the HTTP layer only has to map it to a response.
func (e *Engine) Authorize(ctx context.Context, req AccessRequest) (Decision, error) {
	grants, err := e.Resolve(ctx, req.AccountID, req.ApplicationID, req.StudyID)
	if err != nil {
		return Deny, err
	}

	if grants.Allows(req.Action, req.Resource) {
		e.count(Allow)
		return Allow, nil
	}

	e.count(Deny)
	e.logDenial(ctx, req)
	return Deny, nil
}

func (e *Engine) count(d Decision) {
	if e.metrics != nil {
		e.metrics.AuthzDecisionsTotal.WithLabelValues(string(d)).Inc()
	}
}

// logDenial records the full denied ask for audit purposes. The audit trail
// carries the principal and every scope element so a reviewer can reconstruct
// exactly what was refused.
func (e *Engine) logDenial(ctx context.Context, req AccessRequest) {
	study := ""
	if req.StudyID != nil {
		study = *req.StudyID
	}

	e.logger.WithFields(map[string]interface{}{
		"account_id":     req.AccountID,
		"application_id": req.ApplicationID,
		"study_id":       study,
		"action":         string(req.Action),
		"resource":       string(req.Resource),
	}).Warn("authorization denied")

	if e.audit == nil {
		return
	}
	event := &audit.Event{
		Action:        audit.ActionAuthorizeDenied,
		Outcome:       audit.OutcomeDenied,
		PrincipalID:   req.AccountID,
		ApplicationID: req.ApplicationID,
		StudyID:       study,
		Detail:        fmt.Sprintf("%s:%s", req.Action, req.Resource),
	}
	if err := e.audit.Record(ctx, event); err != nil {
		e.logger.WithError(err).Error("failed to record authorization denial")
	}
}
