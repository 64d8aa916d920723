package tenancy

import (
	"testing"

	"github.com/retailpulse/eventpipeline/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestEnforceAcceptsMatchingStoreScope(t *testing.T) {
	cred := model.Scope{OrgID: "org-1", StoreID: "store-1"}
	req := model.Scope{OrgID: "org-1", StoreID: "store-1", CameraID: "cam-9"}
	assert.NoError(t, Enforce(cred, req))
}

func TestEnforceRejectsMismatchedOrg(t *testing.T) {
	cred := model.Scope{OrgID: "org-1", StoreID: "store-1"}
	req := model.Scope{OrgID: "org-2", StoreID: "store-1"}
	assert.ErrorIs(t, Enforce(cred, req), ErrScopeViolation)
}

func TestEnforceRejectsMismatchedStore(t *testing.T) {
	cred := model.Scope{OrgID: "org-1", StoreID: "store-1"}
	req := model.Scope{OrgID: "org-1", StoreID: "store-2"}
	assert.ErrorIs(t, Enforce(cred, req), ErrScopeViolation)
}

func TestEnforceCameraScopedCredentialRejectsOtherCamera(t *testing.T) {
	cred := model.Scope{OrgID: "org-1", StoreID: "store-1", CameraID: "cam-1"}
	req := model.Scope{OrgID: "org-1", StoreID: "store-1", CameraID: "cam-2"}
	assert.ErrorIs(t, Enforce(cred, req), ErrScopeViolation)
}

func TestEnforceStoreScopedCredentialAllowsAnyCamera(t *testing.T) {
	cred := model.Scope{OrgID: "org-1", StoreID: "store-1"}
	req := model.Scope{OrgID: "org-1", StoreID: "store-1", CameraID: "cam-7"}
	assert.NoError(t, Enforce(cred, req))
}
