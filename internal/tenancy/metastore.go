package tenancy

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	supabase "github.com/supabase-community/supabase-go"
	"golang.org/x/crypto/bcrypt"

	"github.com/retailpulse/eventpipeline/internal/model"
)

// MetaStore wraps a Supabase client for the low-volume control-plane
// tables: orgs, stores, cameras, and edge credentials. Event rows live in
// internal/store; this store is still read per request to authenticate
// credentials and to list a store's entrance cameras.
type MetaStore struct {
	client *supabase.Client
}

// NewMetaStore constructs a MetaStore against the given Supabase project.
func NewMetaStore(url, serviceKey string) (*MetaStore, error) {
	if url == "" || serviceKey == "" {
		return nil, fmt.Errorf("supabase url and service key must be set")
	}
	client, err := supabase.NewClient(url, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &MetaStore{client: client}, nil
}

// GetOrg looks up an org by id.
func (m *MetaStore) GetOrg(ctx context.Context, orgID string) (*model.Org, error) {
	var rows []model.Org
	_, err := m.client.From("orgs").Select("*", "", false).Eq("org_id", orgID).ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("get org: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// GetStore looks up a store by id, scoped to its org.
func (m *MetaStore) GetStore(ctx context.Context, orgID, storeID string) (*model.Store, error) {
	var rows []model.Store
	_, err := m.client.From("stores").Select("*", "", false).
		Eq("org_id", orgID).Eq("store_id", storeID).ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("get store: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// GetCamera looks up a camera by id, scoped to its store.
func (m *MetaStore) GetCamera(ctx context.Context, storeID, cameraID string) (*model.Camera, error) {
	var rows []model.Camera
	_, err := m.client.From("cameras").Select("*", "", false).
		Eq("store_id", storeID).Eq("camera_id", cameraID).ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("get camera: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ListEntranceCameraIDs returns the camera_ids in storeID flagged
// is_entrance=true. The aggregation engine joins against this set to
// enforce the mandatory footfall filter.
func (m *MetaStore) ListEntranceCameraIDs(ctx context.Context, storeID string) ([]string, error) {
	var rows []model.Camera
	_, err := m.client.From("cameras").Select("camera_id", "", false).
		Eq("store_id", storeID).Eq("is_entrance", "true").ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("list entrance cameras: %w", err)
	}
	ids := make([]string, len(rows))
	for i, c := range rows {
		ids[i] = c.CameraID
	}
	return ids, nil
}

// credentialRow is the persisted shape of an edge credential; the bcrypt
// hash of the secret half lives in secret_hash, never the secret itself.
type credentialRow struct {
	KeyID      string     `json:"key_id"`
	OrgID      string     `json:"org_id"`
	StoreID    string     `json:"store_id"`
	CameraID   string     `json:"camera_id,omitempty"`
	Active     bool       `json:"active"`
	SecretHash string     `json:"secret_hash"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// IssueCredential mints a new edge credential scoped to (orgID, storeID
// [, cameraID]) and returns the full bearer token handed to the operator
// exactly once. Only its bcrypt hash is persisted.
func (m *MetaStore) IssueCredential(ctx context.Context, orgID, storeID, cameraID string) (token string, cred model.EdgeCredential, err error) {
	idBytes := make([]byte, 8)
	if _, rErr := rand.Read(idBytes); rErr != nil {
		return "", model.EdgeCredential{}, fmt.Errorf("generate key id: %w", rErr)
	}
	keyID := hex.EncodeToString(idBytes)

	secretBytes := make([]byte, 24)
	if _, rErr := rand.Read(secretBytes); rErr != nil {
		return "", model.EdgeCredential{}, fmt.Errorf("generate secret: %w", rErr)
	}
	secret := hex.EncodeToString(secretBytes)

	hash, hErr := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if hErr != nil {
		return "", model.EdgeCredential{}, fmt.Errorf("hash secret: %w", hErr)
	}

	row := credentialRow{
		KeyID:      keyID,
		OrgID:      orgID,
		StoreID:    storeID,
		CameraID:   cameraID,
		Active:     true,
		SecretHash: string(hash),
	}
	var inserted []credentialRow
	if _, err := m.client.From("edge_credentials").Insert(row, false, "", "", "").ExecuteTo(&inserted); err != nil {
		return "", model.EdgeCredential{}, fmt.Errorf("persist credential: %w", err)
	}

	fullToken := fmt.Sprintf("%s.%s", keyID, secret)
	return fullToken, model.EdgeCredential{
		KeyID:    keyID,
		OrgID:    orgID,
		StoreID:  storeID,
		CameraID: cameraID,
		Active:   true,
	}, nil
}

// ErrInvalidCredential covers any bearer token that fails to parse, has no
// matching key id, or whose secret does not match the stored hash.
var ErrInvalidCredential = errors.New("invalid edge credential")

// AuthenticateCredential parses a bearer token of the form "<key_id>.<secret>",
// verifies its secret against the stored hash, and returns the scope it
// authorizes. It rejects inactive or expired credentials.
func (m *MetaStore) AuthenticateCredential(ctx context.Context, token string) (model.Scope, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return model.Scope{}, ErrInvalidCredential
	}
	keyID, secret := parts[0], parts[1]

	var rows []credentialRow
	_, err := m.client.From("edge_credentials").Select("*", "", false).Eq("key_id", keyID).ExecuteTo(&rows)
	if err != nil {
		return model.Scope{}, fmt.Errorf("lookup credential: %w", err)
	}
	if len(rows) == 0 {
		return model.Scope{}, ErrInvalidCredential
	}
	row := rows[0]

	if err := bcrypt.CompareHashAndPassword([]byte(row.SecretHash), []byte(secret)); err != nil {
		return model.Scope{}, ErrInvalidCredential
	}
	if !row.Active {
		return model.Scope{}, ErrInvalidCredential
	}
	if row.ExpiresAt != nil && time.Now().After(*row.ExpiresAt) {
		return model.Scope{}, ErrInvalidCredential
	}

	return model.Scope{OrgID: row.OrgID, StoreID: row.StoreID, CameraID: row.CameraID}, nil
}

// RevokeCredential flips a credential inactive without deleting its row,
// preserving audit history.
func (m *MetaStore) RevokeCredential(ctx context.Context, keyID string) error {
	update := map[string]any{"active": false}
	var result []credentialRow
	_, err := m.client.From("edge_credentials").Update(update, "", "").Eq("key_id", keyID).ExecuteTo(&result)
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	return nil
}
