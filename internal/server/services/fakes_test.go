package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/uhoapp/authkit/internal/common"
	"github.com/uhoapp/authkit/internal/dbx"
	"github.com/uhoapp/authkit/internal/logging"
	"github.com/uhoapp/authkit/internal/server/config"
	"github.com/uhoapp/authkit/internal/server/models"
	apikeysrepo "github.com/uhoapp/authkit/internal/server/repositories/apikeys"
	refreshtokensrepo "github.com/uhoapp/authkit/internal/server/repositories/refreshtokens"
	usersrepo "github.com/uhoapp/authkit/internal/server/repositories/users"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

const testSecret = "k"

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func newUserService(t *testing.T, db *sql.DB, rm *fakeRepoManager) *UserService {
	t.Helper()
	cfg := &config.Config{SecretKey: testSecret}
	return NewUserService(db, rm, cfg, logging.Discard())
}

// --- users ---

type fakeUsersRepo struct {
	mu    sync.Mutex
	byID  map[string]*models.User
	seq   int
	err   error
	marks int
}

func newFakeUsersRepo(users ...*models.User) *fakeUsersRepo {
	r := &fakeUsersRepo{byID: map[string]*models.User{}}
	for _, u := range users {
		r.byID[u.ID] = u
	}
	return r
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	f.seq++
	u.ID = fmt.Sprintf("u%d", f.seq)
	u.CreatedAt = time.Now()
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUsersRepo) find(match func(*models.User) bool) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byID {
		if match(u) {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.ID == id })
}

func (f *fakeUsersRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.Email == email })
}

func (f *fakeUsersRepo) GetByVerificationTokenHash(_ context.Context, hash string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return hash != "" && u.VerificationTokenHash == hash })
}

func (f *fakeUsersRepo) MarkEmailVerified(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.EmailVerified = true
	u.VerificationTokenHash = ""
	f.marks++
	return nil
}

// --- refresh tokens ---

type fakeRefreshRepo struct {
	mu        sync.Mutex
	byHash    map[string]*models.RefreshToken
	seq       int
	findErr   error
	createErr error
	markErr   error
	// markLoses simulates a concurrent exchange winning the update.
	markLoses bool
	revoked   []string
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{byHash: map[string]*models.RefreshToken{}}
}

func (f *fakeRefreshRepo) Create(_ context.Context, t *models.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.seq++
	t.ID = fmt.Sprintf("rt%d", f.seq)
	t.CreatedAt = time.Now()
	f.byHash[t.TokenHash] = t
	return nil
}

func (f *fakeRefreshRepo) FindByHash(_ context.Context, hash string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	t, ok := f.byHash[hash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeRefreshRepo) MarkUsed(_ context.Context, id string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return false, f.markErr
	}
	if f.markLoses {
		return false, nil
	}
	for _, t := range f.byHash {
		if t.ID == id {
			if t.UsedAt != nil {
				return false, nil
			}
			t.UsedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRefreshRepo) RevokeFamily(_ context.Context, familyID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for h, t := range f.byHash {
		if t.FamilyID == familyID {
			delete(f.byHash, h)
			n++
		}
	}
	f.revoked = append(f.revoked, familyID)
	return n, nil
}

func (f *fakeRefreshRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for h, t := range f.byHash {
		if t.ExpiresAt.Before(now) {
			delete(f.byHash, h)
			n++
		}
	}
	return n, nil
}

func (f *fakeRefreshRepo) family(familyID string) []*models.RefreshToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RefreshToken
	for _, t := range f.byHash {
		if t.FamilyID == familyID {
			out = append(out, t)
		}
	}
	return out
}

// --- api keys ---

type fakeAPIKeyRepo struct {
	mu       sync.Mutex
	byID     map[string]*models.APIKey
	seq      int
	err      error
	touchErr error
	touched  []string
}

func newFakeAPIKeyRepo() *fakeAPIKeyRepo {
	return &fakeAPIKeyRepo{byID: map[string]*models.APIKey{}}
}

func (f *fakeAPIKeyRepo) Create(_ context.Context, k *models.APIKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.seq++
	k.ID = fmt.Sprintf("k%d", f.seq)
	k.CreatedAt = time.Now()
	f.byID[k.ID] = k
	return nil
}

func (f *fakeAPIKeyRepo) ListByUser(_ context.Context, userID string) ([]*models.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*models.APIKey, 0)
	for i := 1; i <= f.seq; i++ {
		if k, ok := f.byID[fmt.Sprintf("k%d", i)]; ok && k.UserID == userID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeAPIKeyRepo) FindByHash(_ context.Context, hash string) (*models.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, k := range f.byID {
		if k.KeyHash == hash {
			return k, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeAPIKeyRepo) Delete(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	k, ok := f.byID[id]
	if !ok || k.UserID != userID {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeAPIKeyRepo) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touchErr != nil {
		return f.touchErr
	}
	f.touched = append(f.touched, id)
	if k, ok := f.byID[id]; ok {
		k.LastUsedAt = &at
	}
	return nil
}

// --- manager ---

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRefreshRepo
	k *fakeAPIKeyRepo
}

func newFakeRepoManager(users ...*models.User) *fakeRepoManager {
	return &fakeRepoManager{u: newFakeUsersRepo(users...), r: newFakeRefreshRepo(), k: newFakeAPIKeyRepo()}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error           { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository { return m.r }
func (m *fakeRepoManager) APIKeys(db dbx.DBTX) apikeysrepo.Repository             { return m.k }

