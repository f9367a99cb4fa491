package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"bengkelpos/internal/domain"
	"bengkelpos/internal/store"
	"bengkelpos/internal/xid"
)

func (s *Store) CreateUser(ctx context.Context, u domain.UserAccount) error {
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	if u.Username == "" || strings.TrimSpace(u.Password) == "" {
		return store.ErrValidation
	}
	if u.ID == "" {
		u.ID = xid.New("usr")
	}
	if u.Role == "" {
		u.Role = domain.RoleSalesperson
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (id, username, password, role, branch_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
	`, u.ID, u.Username, u.Password, u.Role, nullIfEmpty(u.BranchID), u.Active, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	var u domain.UserAccount
	var branchID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password, role, branch_id, active, created_at
		FROM app_users
		WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.Password, &u.Role, &branchID, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if branchID.Valid {
		u.BranchID = branchID.String
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password, role, branch_id, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		var branchID sql.NullString
		if err := rows.Scan(&u.ID, &u.Username, &u.Password, &u.Role, &branchID, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		if branchID.Valid {
			u.BranchID = branchID.String
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}
