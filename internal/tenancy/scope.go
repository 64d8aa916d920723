// Package tenancy centralizes the multi-tenant authorization boundary and
// the control-plane metadata store backing it (orgs, stores, cameras, and
// edge credentials).
package tenancy

import (
	"errors"

	"github.com/retailpulse/eventpipeline/internal/model"
)

// ErrScopeViolation is returned when a request's scope does not match its
// authenticated credential's scope. Callers map this to HTTP 403.
var ErrScopeViolation = errors.New("scope violation")

// Enforce is the single function every ingestion write and every
// aggregation read must call. It never trusts a client-supplied org_id or
// store_id on its own — only what the credential itself authorizes.
//
// cred is the scope carried by the authenticated edge credential (or, for
// query-API callers, the scope derived from the authenticated session).
// requested is the scope named by the incoming request body or query
// parameters.
func Enforce(cred model.Scope, requested model.Scope) error {
	if cred.OrgID != requested.OrgID || cred.StoreID != requested.StoreID {
		return ErrScopeViolation
	}
	if cred.CameraID != "" && cred.CameraID != requested.CameraID {
		return ErrScopeViolation
	}
	return nil
}
