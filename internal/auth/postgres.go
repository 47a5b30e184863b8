package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// PGStore implements Store on PostgreSQL. Uniqueness and invite atomicity
// live in the schema and in single conditional statements, never in
// application locks, so multiple API replicas can share one database.
type PGStore struct {
	db *sql.DB

	orgs     *pgOrganizationStore
	users    *pgUserStore
	invites  *pgInviteCodeStore
	refresh  *pgRefreshTokenStore
	auditLog *pgAuditStore
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	s := &PGStore{db: db}
	s.orgs = &pgOrganizationStore{db: db}
	s.users = &pgUserStore{db: db}
	s.invites = &pgInviteCodeStore{db: db}
	s.refresh = &pgRefreshTokenStore{db: db}
	s.auditLog = &pgAuditStore{db: db}
	return s
}

func (s *PGStore) Organizations() OrganizationStore { return s.orgs }
func (s *PGStore) Users() UserStore                 { return s.users }
func (s *PGStore) InviteCodes() InviteCodeStore     { return s.invites }
func (s *PGStore) RefreshTokens() RefreshTokenStore { return s.refresh }
func (s *PGStore) Audit() AuditStore                { return s.auditLog }

// Ping verifies database connectivity for readiness probes.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const pgUniqueViolation = "23505"

// mapUniqueViolation translates constraint violations into domain errors.
// Constraint names come from the migration files.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return err
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "users_email"):
		return ErrDuplicateEmail
	default:
		return ErrAlreadyExists
	}
}

type pgOrganizationStore struct {
	db *sql.DB
}

func (s *pgOrganizationStore) Create(ctx context.Context, org *Organization) error {
	_, err := s.db.ExecContext(ctx, `
		insert into organizations (id, name, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $4)`,
		org.ID, org.Name, org.IsActive, org.CreatedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

func (s *pgOrganizationStore) Find(ctx context.Context, id string) (*Organization, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, is_active, created_at, updated_at
		from organizations where id = $1`, id)
	var org Organization
	err := row.Scan(&org.ID, &org.Name, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

type pgUserStore struct {
	db *sql.DB
}

const userColumns = `id, organization_id, full_name, email, job_title, password_hash,
	role, is_active, is_email_verified, email_verified_at, last_login_at,
	created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.OrganizationID, &u.FullName, &u.Email, &u.JobTitle,
		&u.PasswordHash, &u.Role, &u.IsActive, &u.IsEmailVerified,
		&u.EmailVerifiedAt, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *pgUserStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, organization_id, full_name, email, job_title,
			password_hash, role, is_active, is_email_verified, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		u.ID, u.OrganizationID, u.FullName, u.Email, u.JobTitle,
		u.PasswordHash, u.Role, u.IsActive, u.IsEmailVerified, u.CreatedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

func (s *pgUserStore) CreateWithOrganization(ctx context.Context, org *Organization, u *User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		insert into organizations (id, name, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $4)`,
		org.ID, org.Name, org.IsActive, org.CreatedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}
	_, err = tx.ExecContext(ctx, `
		insert into users (id, organization_id, full_name, email, job_title,
			password_hash, role, is_active, is_email_verified, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		u.ID, u.OrganizationID, u.FullName, u.Email, u.JobTitle,
		u.PasswordHash, u.Role, u.IsActive, u.IsEmailVerified, u.CreatedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}
	return tx.Commit()
}

func (s *pgUserStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id)
	return scanUser(row)
}

func (s *pgUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where lower(email) = lower($1)`, email)
	return scanUser(row)
}

func (s *pgUserStore) ListByOrg(ctx context.Context, orgID string) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users where organization_id = $1 order by created_at`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *pgUserStore) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update users set last_login_at = $2, updated_at = $2 where id = $1`, userID, at)
	return err
}

func (s *pgUserStore) UpdateRole(ctx context.Context, userID string, role Role) error {
	res, err := s.db.ExecContext(ctx,
		`update users set role = $2, updated_at = now() where id = $1`, userID, role)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (s *pgUserStore) TransferOwnership(ctx context.Context, orgID, newOwnerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		update users set role = 'admin', updated_at = now()
		where organization_id = $1 and role = 'owner'`, orgID)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		update users set role = 'owner', updated_at = now()
		where id = $1 and organization_id = $2`, newOwnerID, orgID)
	if err != nil {
		return err
	}
	if err := requireRowsAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *pgUserStore) Deactivate(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set is_active = false, updated_at = now() where id = $1`, userID)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

type pgInviteCodeStore struct {
	db *sql.DB
}

func (s *pgInviteCodeStore) Create(ctx context.Context, code *InviteCode) error {
	_, err := s.db.ExecContext(ctx, `
		insert into invite_codes (id, code, organization_id, role, is_used,
			expires_at, created_by, created_at)
		values ($1, $2, $3, $4, false, $5, $6, $7)`,
		code.ID, code.Code, code.OrganizationID, code.Role,
		code.ExpiresAt, code.CreatedBy, code.CreatedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

func (s *pgInviteCodeStore) ListByOrg(ctx context.Context, orgID string) ([]*InviteCode, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, code, organization_id, role, is_used, used_by, used_at,
			expires_at, created_by, created_at
		from invite_codes where organization_id = $1 order by created_at desc`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []*InviteCode
	for rows.Next() {
		var c InviteCode
		err := rows.Scan(&c.ID, &c.Code, &c.OrganizationID, &c.Role, &c.IsUsed,
			&c.UsedBy, &c.UsedAt, &c.ExpiresAt, &c.CreatedBy, &c.CreatedAt)
		if err != nil {
			return nil, err
		}
		codes = append(codes, &c)
	}
	return codes, rows.Err()
}

// Redeem is the single atomic gate for invite usage. The conditional update
// only matches a row that is unused and unexpired; the row's is_used flag
// flips in the same statement, so concurrent redeemers race on one row
// version and exactly one wins.
func (s *pgInviteCodeStore) Redeem(ctx context.Context, code, usedBy string, now time.Time) (InviteGrant, error) {
	row := s.db.QueryRowContext(ctx, `
		update invite_codes
		set is_used = true, used_by = $2, used_at = $3
		where code = $1 and is_used = false and expires_at > $3
		returning organization_id, role`,
		code, usedBy, now)

	var grant InviteGrant
	err := row.Scan(&grant.OrganizationID, &grant.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return InviteGrant{}, &InviteDeniedError{Cause: s.classifyDenial(ctx, code, now)}
	}
	if err != nil {
		return InviteGrant{}, err
	}
	return grant, nil
}

// classifyDenial looks up why a redemption missed, for audit detail only.
// The caller-facing error stays the same regardless of cause.
func (s *pgInviteCodeStore) classifyDenial(ctx context.Context, code string, now time.Time) string {
	row := s.db.QueryRowContext(ctx,
		`select is_used, expires_at from invite_codes where code = $1`, code)
	var isUsed bool
	var expiresAt time.Time
	if err := row.Scan(&isUsed, &expiresAt); err != nil {
		return "unknown"
	}
	if isUsed {
		return "used"
	}
	if !now.Before(expiresAt) {
		return "expired"
	}
	return "unknown"
}

type pgRefreshTokenStore struct {
	db *sql.DB
}

func (s *pgRefreshTokenStore) Create(ctx context.Context, tok *RefreshToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		values ($1, $2, $3, $4, $5)`,
		tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt, tok.CreatedAt)
	return err
}

func (s *pgRefreshTokenStore) Find(ctx context.Context, id string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, user_id, token_hash, expires_at, created_at, revoked_at
		from refresh_tokens where id = $1`, id)
	var tok RefreshToken
	err := row.Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.ExpiresAt,
		&tok.CreatedAt, &tok.RevokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

func (s *pgRefreshTokenStore) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		update refresh_tokens set revoked_at = $2
		where id = $1 and revoked_at is null`, id, at)
	return err
}

type pgAuditStore struct {
	db *sql.DB
}

func (s *pgAuditStore) Append(ctx context.Context, entry *AuditEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_logs (id, user_id, organization_id, action, resource,
			details, ip_address, user_agent, created_at)
		values ($1, nullif($2, ''), nullif($3, ''), $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.UserID, entry.OrganizationID, entry.Action, entry.Resource,
		details, entry.IPAddress, entry.UserAgent, entry.CreatedAt)
	return err
}

func (s *pgAuditStore) ListByOrg(ctx context.Context, orgID string, limit int) ([]*AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, coalesce(user_id, ''), coalesce(organization_id, ''), action,
			resource, details, ip_address, user_agent, created_at
		from audit_logs where organization_id = $1
		order by created_at desc limit $2`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var details []byte
		err := rows.Scan(&e.ID, &e.UserID, &e.OrganizationID, &e.Action,
			&e.Resource, &details, &e.IPAddress, &e.UserAgent, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
