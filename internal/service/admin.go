package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/evalauth/internal/logger"
	"github.com/iliyamo/evalauth/internal/model"
	"github.com/iliyamo/evalauth/internal/repository"
)

// AdminService is the administrative approval step of the account lifecycle.
type AdminService struct {
	accounts AccountStore
	timeout  time.Duration
	log      *logger.Logger
}

func NewAdminService(accounts AccountStore, storeTimeout time.Duration, log *logger.Logger) *AdminService {
	if log == nil {
		log = logger.Nop()
	}
	return &AdminService{accounts: accounts, timeout: storeTimeout, log: log}
}

// ListAccounts returns the public view of accounts matching f.
func (s *AdminService) ListAccounts(ctx context.Context, f model.AccountFilter) (_ []model.PublicAccount, err error) {
	ctx, span := startSpan(ctx, "AdminService.ListAccounts")
	defer func() { endSpan(span, err) }()

	ctx, cancel := bound(ctx, s.timeout)
	defer cancel()
	accounts, err := s.accounts.List(ctx, f)
	if err != nil {
		return nil, storeFailure(s.log, "list accounts", err)
	}
	out := make([]model.PublicAccount, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Public())
	}
	return out, nil
}

// UpdateStatus approves or rejects an account awaiting approval.
func (s *AdminService) UpdateStatus(ctx context.Context, id uint64, to model.Status) (_ model.PublicAccount, err error) {
	ctx, span := startSpan(ctx, "AdminService.UpdateStatus")
	defer func() { endSpan(span, err) }()

	if to != model.StatusApproved && to != model.StatusRejected {
		return model.PublicAccount{}, ErrInvalidTransition
	}

	findCtx, cancel := bound(ctx, s.timeout)
	account, err := s.accounts.FindByID(findCtx, id)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PublicAccount{}, ErrNotFound
		}
		return model.PublicAccount{}, storeFailure(s.log, "find account by id", err)
	}
	if !model.CanTransition(account.Status, to) {
		return model.PublicAccount{}, ErrInvalidTransition
	}

	updateCtx, cancel := bound(ctx, s.timeout)
	defer cancel()
	if err := s.accounts.Update(updateCtx, id, model.AccountPatch{Status: &to}); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PublicAccount{}, ErrNotFound
		}
		return model.PublicAccount{}, storeFailure(s.log, "update status", err)
	}
	account.Status = to
	s.log.Info("Admin: account status changed", "account_id", id, "status", to)
	return account.Public(), nil
}
