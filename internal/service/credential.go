package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	passwordvalidator "github.com/wagslane/go-password-validator"

	"github.com/iliyamo/evalauth/internal/logger"
	"github.com/iliyamo/evalauth/internal/model"
	"github.com/iliyamo/evalauth/internal/repository"
	"github.com/iliyamo/evalauth/internal/utils"
)

// CredentialConfig parameterizes CredentialService.
type CredentialConfig struct {
	AdminName          string
	AdminEmail         string
	AdminPassword      string
	VerificationTTL    time.Duration
	ResetTTL           time.Duration
	StoreTimeout       time.Duration
	MailTimeout        time.Duration
	MinPasswordEntropy float64 // 0 disables the strength check
}

// Registration is the input of Register.
type Registration struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// Session is returned by a successful login.
type Session struct {
	Tokens  model.TokenPair     `json:"tokens"`
	Account model.PublicAccount `json:"account"`
}

// CredentialService owns registration, login, logout and the password and
// email flows built on single-use tokens.
type CredentialService struct {
	accounts    AccountStore
	hasher      Hasher
	tokens      TokenCodec
	revocations RevocationStore
	singleUse   *SingleUseTokenIssuer
	mailer      Mailer
	cfg         CredentialConfig
	log         *logger.Logger
	now         func() time.Time

	decoyOnce sync.Once
	decoy     string
}

// NewCredentialService wires the service from its collaborators.
func NewCredentialService(
	accounts AccountStore,
	hasher Hasher,
	tokens TokenCodec,
	revocations RevocationStore,
	singleUse *SingleUseTokenIssuer,
	mailer Mailer,
	cfg CredentialConfig,
	log *logger.Logger,
) *CredentialService {
	if log == nil {
		log = logger.Nop()
	}
	cfg.AdminEmail = model.NormalizeEmail(cfg.AdminEmail)
	if cfg.AdminName == "" {
		cfg.AdminName = "Administrator"
	}
	return &CredentialService{
		accounts:    accounts,
		hasher:      hasher,
		tokens:      tokens,
		revocations: revocations,
		singleUse:   singleUse,
		mailer:      mailer,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

func (s *CredentialService) isAdminEmail(email string) bool {
	return s.cfg.AdminEmail != "" && email == s.cfg.AdminEmail
}

func (s *CredentialService) checkPassword(password string) error {
	if password == "" {
		return ErrWeakPassword
	}
	if s.cfg.MinPasswordEntropy > 0 {
		if err := passwordvalidator.Validate(password, s.cfg.MinPasswordEntropy); err != nil {
			return fmt.Errorf("%w: %v", ErrWeakPassword, err)
		}
	}
	return nil
}

func (s *CredentialService) hashPassword(password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, utils.ErrSecretTooLong) {
			return "", fmt.Errorf("%w: password must be at most 72 bytes", ErrWeakPassword)
		}
		s.log.Error("Credential service: failed to hash password", "error", err)
		return "", ErrInternal
	}
	return hash, nil
}

// burnVerify spends the same bcrypt work as a real comparison so a missing
// account cannot be told apart by response time.
func (s *CredentialService) burnVerify(password string) {
	s.decoyOnce.Do(func() {
		s.decoy, _ = s.hasher.Hash("decoy-password-for-missing-accounts")
	})
	_ = s.hasher.Verify(password, s.decoy)
}

func (s *CredentialService) findByEmail(ctx context.Context, email string) (model.Account, error) {
	ctx, cancel := bound(ctx, s.cfg.StoreTimeout)
	defer cancel()
	a, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, storeFailure(s.log, "find account by email", err)
	}
	return a, nil
}

func (s *CredentialService) update(ctx context.Context, id uint64, p model.AccountPatch, op string) error {
	ctx, cancel := bound(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.accounts.Update(ctx, id, p); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return storeFailure(s.log, op, err)
	}
	return nil
}

// Register creates a PENDING account and mails its verification link.
func (s *CredentialService) Register(ctx context.Context, in Registration) (_ model.PublicAccount, err error) {
	ctx, span := startSpan(ctx, "CredentialService.Register")
	defer func() { endSpan(span, err) }()

	name := strings.TrimSpace(in.Name)
	email := model.NormalizeEmail(in.Email)
	if name == "" || !strings.Contains(email, "@") {
		return model.PublicAccount{}, fmt.Errorf("%w: name and a valid email are required", ErrInvalidInput)
	}
	role, ok := model.ParseRole(in.Role)
	if !ok || role == model.RoleAdmin {
		return model.PublicAccount{}, ErrInvalidRole
	}
	if s.isAdminEmail(email) {
		return model.PublicAccount{}, ErrAlreadyExists
	}
	if err := s.checkPassword(in.Password); err != nil {
		return model.PublicAccount{}, err
	}

	switch _, err := s.findByEmail(ctx, email); {
	case err == nil:
		return model.PublicAccount{}, ErrAlreadyExists
	case !errors.Is(err, ErrNotFound):
		return model.PublicAccount{}, err
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return model.PublicAccount{}, err
	}
	raw, tok, err := s.singleUse.mint(s.cfg.VerificationTTL)
	if err != nil {
		return model.PublicAccount{}, err
	}

	createCtx, cancel := bound(ctx, s.cfg.StoreTimeout)
	account, err := s.accounts.Create(createCtx, model.Account{
		Name:              name,
		Email:             email,
		PasswordHash:      hash,
		Role:              role,
		Status:            model.StatusPending,
		VerificationToken: tok,
	})
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return model.PublicAccount{}, ErrAlreadyExists
		}
		return model.PublicAccount{}, storeFailure(s.log, "create account", err)
	}

	s.log.Info("Credential service: account registered", "account_id", account.ID, "role", account.Role)
	s.dispatch(ctx, "verification", account.ID, func(ctx context.Context) error {
		return s.mailer.SendVerificationLink(ctx, account.Email, raw)
	})
	return account.Public(), nil
}

// dispatch sends one email.  Failures are logged and never undo the token
// that was already stored.
func (s *CredentialService) dispatch(ctx context.Context, kind string, accountID uint64, send func(context.Context) error) {
	ctx, cancel := bound(ctx, s.cfg.MailTimeout)
	defer cancel()
	if err := send(ctx); err != nil {
		s.log.Error("Credential service: failed to dispatch email", "kind", kind, "account_id", accountID, "error", err)
	}
}

// Login authenticates email and password and opens a session.  The
// configured administrator address is checked against the configured secret
// instead of a stored hash.
func (s *CredentialService) Login(ctx context.Context, email, password string) (_ Session, err error) {
	ctx, span := startSpan(ctx, "CredentialService.Login")
	defer func() { endSpan(span, err) }()

	email = model.NormalizeEmail(email)
	if s.isAdminEmail(email) {
		return s.loginAdmin(ctx, email, password)
	}

	account, err := s.findByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		s.burnVerify(password)
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !s.hasher.Verify(password, account.PasswordHash) {
		s.log.Info("Credential service: login rejected", "account_id", account.ID, "reason", "bad_password")
		return Session{}, ErrInvalidCredentials
	}

	switch account.Status {
	case model.StatusApproved:
	case model.StatusPending:
		return Session{}, ErrEmailNotVerified
	case model.StatusAwaitingApproval:
		return Session{}, ErrAwaitingApproval
	case model.StatusRejected:
		return Session{}, ErrRejected
	default:
		s.log.Error("Credential service: account in unknown status", "account_id", account.ID, "status", account.Status)
		return Session{}, ErrInternal
	}
	return s.openSession(ctx, account)
}

func (s *CredentialService) loginAdmin(ctx context.Context, email, password string) (Session, error) {
	if s.cfg.AdminPassword == "" || !secretsEqual(password, s.cfg.AdminPassword) {
		s.log.Warn("Credential service: admin login rejected")
		return Session{}, ErrInvalidCredentials
	}

	account, err := s.findByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		account, err = s.bootstrapAdmin(ctx, email, password)
	}
	if err != nil {
		return Session{}, err
	}
	return s.openSession(ctx, account)
}

// bootstrapAdmin creates the administrator on first login.  A concurrent
// first login that loses the insert race reuses the winner's row.
func (s *CredentialService) bootstrapAdmin(ctx context.Context, email, password string) (model.Account, error) {
	hash, err := s.hashPassword(password)
	if err != nil {
		return model.Account{}, err
	}
	createCtx, cancel := bound(ctx, s.cfg.StoreTimeout)
	account, err := s.accounts.Create(createCtx, model.Account{
		Name:          s.cfg.AdminName,
		Email:         email,
		PasswordHash:  hash,
		Role:          model.RoleAdmin,
		Status:        model.StatusApproved,
		EmailVerified: true,
	})
	cancel()
	switch {
	case err == nil:
		s.log.Info("Credential service: administrator bootstrapped", "account_id", account.ID)
		return account, nil
	case errors.Is(err, repository.ErrEmailExists):
		return s.findByEmail(ctx, email)
	default:
		return model.Account{}, storeFailure(s.log, "create admin account", err)
	}
}

// openSession issues a token pair and stores the refresh token hash,
// replacing any session the account had before.
func (s *CredentialService) openSession(ctx context.Context, account model.Account) (Session, error) {
	pair, err := s.tokens.IssuePair(account.ID, account.Role)
	if err != nil {
		s.log.Error("Credential service: failed to issue tokens", "account_id", account.ID, "error", err)
		return Session{}, ErrInternal
	}
	hash, err := s.hasher.HashToken(pair.RefreshToken)
	if err != nil {
		s.log.Error("Credential service: failed to hash refresh token", "account_id", account.ID, "error", err)
		return Session{}, ErrInternal
	}
	if err := s.update(ctx, account.ID, model.AccountPatch{RefreshTokenHash: &hash}, "store refresh hash"); err != nil {
		return Session{}, err
	}
	account.RefreshTokenHash = hash
	s.log.Info("Credential service: session opened", "account_id", account.ID, "role", account.Role)
	return Session{Tokens: pair, Account: account.Public()}, nil
}

// ForgotPassword mails a password reset link.  It returns ErrNotFound for an
// unknown address; transports that must not reveal registered addresses
// answer both outcomes the same way.
func (s *CredentialService) ForgotPassword(ctx context.Context, email string) (err error) {
	ctx, span := startSpan(ctx, "CredentialService.ForgotPassword")
	defer func() { endSpan(span, err) }()

	account, err := s.findByEmail(ctx, model.NormalizeEmail(email))
	if err != nil {
		return err
	}
	raw, err := s.singleUse.Issue(ctx, account, model.PurposePasswordReset, s.cfg.ResetTTL)
	if err != nil {
		return err
	}
	s.dispatch(ctx, "password_reset", account.ID, func(ctx context.Context) error {
		return s.mailer.SendResetLink(ctx, account.Email, raw)
	})
	return nil
}

// ResetPassword redeems a reset token and replaces the password.  Open
// sessions are ended by clearing the stored refresh hash.
func (s *CredentialService) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	ctx, span := startSpan(ctx, "CredentialService.ResetPassword")
	defer func() { endSpan(span, err) }()

	// Reject the new password before the token is spent.
	if err := s.checkPassword(newPassword); err != nil {
		return err
	}
	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}

	account, err := s.singleUse.Consume(ctx, token, model.PurposePasswordReset)
	if err != nil {
		return err
	}
	cleared := ""
	patch := model.AccountPatch{PasswordHash: &hash, RefreshTokenHash: &cleared}
	if err := s.update(ctx, account.ID, patch, "store new password"); err != nil {
		return err
	}
	s.log.Info("Credential service: password reset", "account_id", account.ID)
	return nil
}

// VerifyEmail redeems a verification token, marks the address verified and
// advances PENDING accounts to AWAITING_APPROVAL.
func (s *CredentialService) VerifyEmail(ctx context.Context, token string) (err error) {
	ctx, span := startSpan(ctx, "CredentialService.VerifyEmail")
	defer func() { endSpan(span, err) }()

	account, err := s.singleUse.Consume(ctx, token, model.PurposeEmailVerification)
	if err != nil {
		return err
	}
	verified := true
	patch := model.AccountPatch{EmailVerified: &verified}
	if model.CanTransition(account.Status, model.StatusAwaitingApproval) {
		next := model.StatusAwaitingApproval
		patch.Status = &next
	}
	if err := s.update(ctx, account.ID, patch, "mark email verified"); err != nil {
		return err
	}
	s.log.Info("Credential service: email verified", "account_id", account.ID)
	return nil
}

// Profile returns the public view of account id.
func (s *CredentialService) Profile(ctx context.Context, id uint64) (model.PublicAccount, error) {
	ctx, cancel := bound(ctx, s.cfg.StoreTimeout)
	defer cancel()
	a, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PublicAccount{}, ErrNotFound
		}
		return model.PublicAccount{}, storeFailure(s.log, "find account by id", err)
	}
	return a.Public(), nil
}

// Logout revokes rawAccess for the rest of its lifetime and clears the
// stored refresh hash so the session cannot be refreshed.  The access token
// must belong to accountID.
func (s *CredentialService) Logout(ctx context.Context, accountID uint64, rawAccess string) (err error) {
	ctx, span := startSpan(ctx, "CredentialService.Logout")
	defer func() { endSpan(span, err) }()

	claims, err := s.tokens.Verify(utils.ProfileAccess, rawAccess)
	if err != nil {
		s.log.Info("Credential service: logout rejected", "reason", tokenFailureKind(err))
		return ErrAccessDenied
	}
	if claims.SubjectID != accountID {
		s.log.Warn("Credential service: logout subject mismatch", "account_id", accountID)
		return ErrAccessDenied
	}

	var revokeErr error
	if remaining := claims.Remaining(s.now()); remaining > 0 {
		if err := s.revocations.Revoke(ctx, rawAccess, remaining); err != nil {
			s.log.Error("Credential service: failed to revoke access token", "account_id", accountID, "error", err)
			revokeErr = ErrRevocationFailed
		}
	}

	cleared := ""
	if err := s.update(ctx, accountID, model.AccountPatch{RefreshTokenHash: &cleared}, "clear refresh hash"); err != nil {
		return err
	}
	if revokeErr != nil {
		return revokeErr
	}
	s.log.Info("Credential service: logged out", "account_id", accountID)
	return nil
}
