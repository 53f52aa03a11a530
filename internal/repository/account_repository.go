package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/evalauth/internal/model"
)

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

const accountColumns = "id,name,email,password_hash,role,status,email_verified," +
	"refresh_token_hash,verification_token_hash,verification_token_expires_at," +
	"reset_token_hash,reset_token_expires_at,created_at,updated_at"

// singleUseColumns maps a token purpose to its hash and expiry columns.
var singleUseColumns = map[model.TokenPurpose][2]string{
	model.PurposeEmailVerification: {"verification_token_hash", "verification_token_expires_at"},
	model.PurposePasswordReset:     {"reset_token_hash", "reset_token_expires_at"},
}

// AccountRepo persists accounts in the `accounts` table.
type AccountRepo struct{ DB *sql.DB }

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{DB: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (model.Account, error) {
	var (
		a                     model.Account
		role, status          string
		refresh, vHash, rHash sql.NullString
		vExp, rExp            sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &role, &status, &a.EmailVerified,
		&refresh, &vHash, &vExp, &rHash, &rExp, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, err
	}
	a.Role = model.Role(role)
	a.Status = model.Status(status)
	a.RefreshTokenHash = refresh.String
	if vHash.Valid {
		a.VerificationToken = model.SingleUseToken{Hash: vHash.String, ExpiresAt: vExp.Time}
	}
	if rHash.Valid {
		a.ResetToken = model.SingleUseToken{Hash: rHash.String, ExpiresAt: rExp.Time}
	}
	return a, nil
}

// FindByEmail fetches an account by normalized email.
func (r *AccountRepo) FindByEmail(ctx context.Context, email string) (model.Account, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE email=? LIMIT 1",
		model.NormalizeEmail(email))
	return scanAccount(row)
}

// FindByID fetches an account by id.
func (r *AccountRepo) FindByID(ctx context.Context, id uint64) (model.Account, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id=? LIMIT 1", id)
	return scanAccount(row)
}

// FindBySingleUseToken fetches the account currently holding hash for purpose.
func (r *AccountRepo) FindBySingleUseToken(ctx context.Context, purpose model.TokenPurpose, hash string) (model.Account, error) {
	cols, ok := singleUseColumns[purpose]
	if !ok || hash == "" {
		return model.Account{}, ErrNotFound
	}
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE "+cols[0]+"=? LIMIT 1", hash)
	return scanAccount(row)
}

// Create inserts a and returns it with ID and timestamps populated.
func (r *AccountRepo) Create(ctx context.Context, a model.Account) (model.Account, error) {
	a.Email = model.NormalizeEmail(a.Email)
	now := time.Now().UTC().Truncate(time.Second)
	vHash, vExp := nullableToken(a.VerificationToken)
	rHash, rExp := nullableToken(a.ResetToken)
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO accounts (name,email,password_hash,role,status,email_verified,refresh_token_hash,
			verification_token_hash,verification_token_expires_at,reset_token_hash,reset_token_expires_at,
			created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.Name, a.Email, a.PasswordHash, string(a.Role), string(a.Status), a.EmailVerified,
		nullableString(a.RefreshTokenHash), vHash, vExp, rHash, rExp, now, now)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return model.Account{}, ErrEmailExists
		}
		return model.Account{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Account{}, err
	}
	a.ID = uint64(id)
	a.CreatedAt, a.UpdatedAt = now, now
	return a, nil
}

// Update applies the non-nil fields of p to account id.  Columns are written
// in a fixed order so identical patches produce identical statements.
func (r *AccountRepo) Update(ctx context.Context, id uint64, p model.AccountPatch) error {
	if p.IsEmpty() {
		return nil
	}
	var (
		sets []string
		args []any
	)
	if p.PasswordHash != nil {
		sets = append(sets, "password_hash=?")
		args = append(args, *p.PasswordHash)
	}
	if p.Status != nil {
		sets = append(sets, "status=?")
		args = append(args, string(*p.Status))
	}
	if p.EmailVerified != nil {
		sets = append(sets, "email_verified=?")
		args = append(args, *p.EmailVerified)
	}
	if p.RefreshTokenHash != nil {
		sets = append(sets, "refresh_token_hash=?")
		args = append(args, nullableString(*p.RefreshTokenHash))
	}
	for _, purpose := range []model.TokenPurpose{model.PurposeEmailVerification, model.PurposePasswordReset} {
		tok := p.VerificationToken
		if purpose == model.PurposePasswordReset {
			tok = p.ResetToken
		}
		if tok == nil {
			continue
		}
		cols := singleUseColumns[purpose]
		h, exp := nullableToken(*tok)
		sets = append(sets, cols[0]+"=?", cols[1]+"=?")
		args = append(args, h, exp)
	}
	sets = append(sets, "updated_at=?")
	args = append(args, time.Now().UTC().Truncate(time.Second), id)

	res, err := r.DB.ExecContext(ctx,
		"UPDATE accounts SET "+strings.Join(sets, ",")+" WHERE id=?", args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SwapRefreshHash replaces the stored refresh hash with next only if it still
// equals expected.  It reports whether this call won the swap.  An empty next
// clears the column.
func (r *AccountRepo) SwapRefreshHash(ctx context.Context, id uint64, expected, next string) (bool, error) {
	if expected == "" {
		return false, nil
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE accounts SET refresh_token_hash=?, updated_at=? WHERE id=? AND refresh_token_hash=?",
		nullableString(next), time.Now().UTC().Truncate(time.Second), id, expected)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ConsumeSingleUseToken clears the purpose token of account id only if it
// still equals hash.  It reports whether this call consumed it.
func (r *AccountRepo) ConsumeSingleUseToken(ctx context.Context, id uint64, purpose model.TokenPurpose, hash string) (bool, error) {
	cols, ok := singleUseColumns[purpose]
	if !ok {
		return false, fmt.Errorf("unknown token purpose %q", purpose)
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE accounts SET "+cols[0]+"=NULL, "+cols[1]+"=NULL, updated_at=? WHERE id=? AND "+cols[0]+"=?",
		time.Now().UTC().Truncate(time.Second), id, hash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// List returns accounts matching f ordered by id.
func (r *AccountRepo) List(ctx context.Context, f model.AccountFilter) ([]model.Account, error) {
	var (
		where []string
		args  []any
	)
	if f.Role != "" {
		where = append(where, "role=?")
		args = append(args, string(f.Role))
	}
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, string(f.Status))
	}
	q := "SELECT " + accountColumns + " FROM accounts"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	q += " ORDER BY id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableToken(t model.SingleUseToken) (sql.NullString, sql.NullTime) {
	if t.IsZero() {
		return sql.NullString{}, sql.NullTime{}
	}
	return sql.NullString{String: t.Hash, Valid: true}, sql.NullTime{Time: t.ExpiresAt.UTC(), Valid: true}
}
