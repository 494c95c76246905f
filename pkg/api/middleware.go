package api

import (
	"errors"
	"net/http"

	"github.com/cohortd/cohort/pkg/httputil"
	"github.com/cohortd/cohort/pkg/observability"
	"github.com/cohortd/cohort/pkg/rbac"
)

// applicationIDHeader names the application whose permission scope applies
// to the request.
const applicationIDHeader = "X-Application-ID"

// RequirePermission gates a route on the caller holding a grant covering the
// given action and resource. The application scope comes from the
// X-Application-ID header and an optional study scope from the study_id
// query parameter. A denial returns 403; the engine records the audit line.
func (s *Server) RequirePermission(action rbac.Action, resource rbac.Resource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, _, ok := s.authenticate(w, r)
			if !ok {
				return
			}

			applicationID := r.Header.Get(applicationIDHeader)
			if applicationID == "" {
				httputil.WriteBadRequest(w, "X-Application-ID header is required")
				return
			}

			req := rbac.AccessRequest{
				AccountID:     session.PrincipalID,
				ApplicationID: applicationID,
				Action:        action,
				Resource:      resource,
			}
			if studyID := httputil.ParseQueryString(r, "study_id", ""); studyID != "" {
				req.StudyID = &studyID
			}

			decision, err := s.engine.Authorize(r.Context(), req)
			if err != nil {
				s.logger.WithError(err).Error("authorization check failed")
				httputil.WriteInternalError(w, errors.New("authorization check failed"))
				return
			}
			if decision != rbac.Allow {
				httputil.WriteForbidden(w, "forbidden")
				return
			}

			ctx := observability.WithPrincipalID(r.Context(), session.PrincipalID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
