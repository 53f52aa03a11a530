package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/evalauth/internal/logger"
	"github.com/iliyamo/evalauth/internal/model"
	"github.com/iliyamo/evalauth/internal/repository"
	"github.com/iliyamo/evalauth/internal/utils"
)

// memStore is an AccountStore whose conditional updates are serialized by a
// mutex the way row locks serialize them in MySQL.
type memStore struct {
	mu      sync.Mutex
	nextID  uint64
	rows    map[uint64]model.Account
	creates int
	fail    error
}

func newMemStore() *memStore {
	return &memStore{rows: map[uint64]model.Account{}}
}

func (m *memStore) setFail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *memStore) get(id uint64) model.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

func (m *memStore) put(a model.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[a.ID] = a
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memStore) FindByEmail(_ context.Context, email string) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return model.Account{}, m.fail
	}
	for _, a := range m.rows {
		if a.Email == model.NormalizeEmail(email) {
			return a, nil
		}
	}
	return model.Account{}, repository.ErrNotFound
}

func (m *memStore) FindByID(_ context.Context, id uint64) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return model.Account{}, m.fail
	}
	a, ok := m.rows[id]
	if !ok {
		return model.Account{}, repository.ErrNotFound
	}
	return a, nil
}

func (m *memStore) FindBySingleUseToken(_ context.Context, purpose model.TokenPurpose, hash string) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return model.Account{}, m.fail
	}
	for _, a := range m.rows {
		if hash != "" && a.SingleUse(purpose).Hash == hash {
			return a, nil
		}
	}
	return model.Account{}, repository.ErrNotFound
}

func (m *memStore) Create(_ context.Context, a model.Account) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return model.Account{}, m.fail
	}
	a.Email = model.NormalizeEmail(a.Email)
	for _, existing := range m.rows {
		if existing.Email == a.Email {
			return model.Account{}, repository.ErrEmailExists
		}
	}
	m.nextID++
	m.creates++
	a.ID = m.nextID
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	m.rows[a.ID] = a
	return a, nil
}

func (m *memStore) Update(_ context.Context, id uint64, p model.AccountPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	a, ok := m.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.PasswordHash != nil {
		a.PasswordHash = *p.PasswordHash
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.EmailVerified != nil {
		a.EmailVerified = *p.EmailVerified
	}
	if p.RefreshTokenHash != nil {
		a.RefreshTokenHash = *p.RefreshTokenHash
	}
	if p.VerificationToken != nil {
		a.VerificationToken = *p.VerificationToken
	}
	if p.ResetToken != nil {
		a.ResetToken = *p.ResetToken
	}
	a.UpdatedAt = time.Now().UTC()
	m.rows[id] = a
	return nil
}

func (m *memStore) SwapRefreshHash(_ context.Context, id uint64, expected, next string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return false, m.fail
	}
	a, ok := m.rows[id]
	if !ok || expected == "" || a.RefreshTokenHash != expected {
		return false, nil
	}
	a.RefreshTokenHash = next
	m.rows[id] = a
	return true, nil
}

func (m *memStore) ConsumeSingleUseToken(_ context.Context, id uint64, purpose model.TokenPurpose, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return false, m.fail
	}
	a, ok := m.rows[id]
	if !ok || a.SingleUse(purpose).Hash != hash {
		return false, nil
	}
	if purpose == model.PurposePasswordReset {
		a.ResetToken = model.SingleUseToken{}
	} else {
		a.VerificationToken = model.SingleUseToken{}
	}
	m.rows[id] = a
	return true, nil
}

func (m *memStore) List(_ context.Context, f model.AccountFilter) ([]model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	var out []model.Account
	for id := uint64(1); id <= m.nextID; id++ {
		a, ok := m.rows[id]
		if !ok {
			continue
		}
		if (f.Role == "" || a.Role == f.Role) && (f.Status == "" || a.Status == f.Status) {
			out = append(out, a)
		}
	}
	return out, nil
}

// fakeMailer records the last raw token sent to each address.
type fakeMailer struct {
	mu           sync.Mutex
	verification map[string]string
	reset        map[string]string
	err          error
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{verification: map[string]string{}, reset: map[string]string{}}
}

func (f *fakeMailer) SendVerificationLink(_ context.Context, email, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verification[email] = token
	return f.err
}

func (f *fakeMailer) SendResetLink(_ context.Context, email, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset[email] = token
	return f.err
}

func (f *fakeMailer) verificationToken(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verification[email]
}

func (f *fakeMailer) resetToken(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reset[email]
}

const (
	testAdminEmail    = "root@evalauth.test"
	testAdminPassword = "bootstrap-secret"
)

// testEnv is a fully wired service graph over in-memory collaborators.
type testEnv struct {
	store       *memStore
	mailer      *fakeMailer
	mr          *miniredis.Miniredis
	revocations *repository.RevocationRepo
	hasher      *utils.PasswordHasher
	codec       *utils.TokenCodec
	singleUse   *SingleUseTokenIssuer
	creds       *CredentialService
	refresh     *RefreshRotationService
	authorizer  *Authorizer
	admin       *AdminService
}

func newTestEnv(t *testing.T, mutate ...func(*CredentialConfig)) *testEnv {
	t.Helper()
	log := logger.Nop()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	revocations := repository.NewRevocationRepo(rdb, "token_blacklist:", time.Hour, 200*time.Millisecond, log)

	codec, err := utils.NewTokenCodec("evalauth-test",
		utils.ProfileConfig{Secret: "test-access-secret", TTL: 15 * time.Minute},
		utils.ProfileConfig{Secret: "test-refresh-secret", TTL: 24 * time.Hour},
	)
	require.NoError(t, err)

	cfg := CredentialConfig{
		AdminName:       "Root",
		AdminEmail:      testAdminEmail,
		AdminPassword:   testAdminPassword,
		VerificationTTL: 24 * time.Hour,
		ResetTTL:        time.Hour,
		StoreTimeout:    time.Second,
		MailTimeout:     time.Second,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	store := newMemStore()
	mailer := newFakeMailer()
	hasher := utils.NewPasswordHasher(bcrypt.MinCost)
	singleUse := NewSingleUseTokenIssuer(store, time.Second, log)

	return &testEnv{
		store:       store,
		mailer:      mailer,
		mr:          mr,
		revocations: revocations,
		hasher:      hasher,
		codec:       codec,
		singleUse:   singleUse,
		creds:       NewCredentialService(store, hasher, codec, revocations, singleUse, mailer, cfg, log),
		refresh:     NewRefreshRotationService(store, hasher, codec, time.Second, log),
		authorizer:  NewAuthorizer(codec, revocations, log),
		admin:       NewAdminService(store, time.Second, log),
	}
}

// registerApproved walks an account through registration, verification and
// approval and returns its id.
func (e *testEnv) registerApproved(t *testing.T, email, password string) uint64 {
	t.Helper()
	ctx := context.Background()
	acc, err := e.creds.Register(ctx, Registration{Name: "Test", Email: email, Password: password, Role: "CRAFTSMAN"})
	require.NoError(t, err)
	require.NoError(t, e.creds.VerifyEmail(ctx, e.mailer.verificationToken(acc.Email)))
	_, err = e.admin.UpdateStatus(ctx, acc.ID, model.StatusApproved)
	require.NoError(t, err)
	return acc.ID
}
