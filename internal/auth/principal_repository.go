package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PrincipalRepository defines the interface for principal persistence.
type PrincipalRepository interface {
	Create(ctx context.Context, p *Principal) error
	GetByID(ctx context.Context, id string) (*Principal, error)
	GetByName(ctx context.Context, name string) (*Principal, error)
	FindConflict(ctx context.Context, name, email string) error
	RolesOf(ctx context.Context, id string) ([]Role, error)
	Delete(ctx context.Context, id string) error
}

// SQLitePrincipalRepository implements PrincipalRepository using SQLite.
type SQLitePrincipalRepository struct {
	db *sql.DB
}

// NewPrincipalRepository creates a new SQLite-backed principal repository.
func NewPrincipalRepository(db *sql.DB) *SQLitePrincipalRepository {
	return &SQLitePrincipalRepository{db: db}
}

const principalColumns = "id, name, email, password_hash, created_at, updated_at"

// Create inserts a principal and links it to each of p.Roles by name in one
// transaction. The ID and timestamps are generated if empty. A role name
// missing from the store fails with ErrRoleNotFound.
func (r *SQLitePrincipalRepository) Create(ctx context.Context, p *Principal) error {
	if p.ID == "" {
		p.ID = "prn-" + uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.CreatedAt = normaliseTime(p.CreatedAt)
	p.UpdatedAt = p.CreatedAt

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	stamp := formatTime(p.CreatedAt)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO principals (`+principalColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Email, p.PasswordHash, stamp, stamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "email") {
				return ErrEmailTaken
			}
			return ErrNameTaken
		}
		return fmt.Errorf("creating principal: %w", err)
	}

	for _, role := range p.Roles {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO principal_roles (principal_id, role_id) SELECT ?, id FROM roles WHERE name = ?`,
			p.ID, string(role),
		)
		if err != nil {
			return fmt.Errorf("linking role %q: %w", role, err)
		}
		if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
			return fmt.Errorf("%w: %s", ErrRoleNotFound, role)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing principal: %w", err)
	}
	return nil
}

// GetByID retrieves a principal and its roles by id.
func (r *SQLitePrincipalRepository) GetByID(ctx context.Context, id string) (*Principal, error) {
	return r.getPrincipal(ctx, "SELECT "+principalColumns+" FROM principals WHERE id = ?", id)
}

// GetByName retrieves a principal by name, ignoring case.
func (r *SQLitePrincipalRepository) GetByName(ctx context.Context, name string) (*Principal, error) {
	return r.getPrincipal(ctx, "SELECT "+principalColumns+" FROM principals WHERE name = ? COLLATE NOCASE", name)
}

// FindConflict reports ErrNameTaken or ErrEmailTaken if another principal
// already uses name or email, compared case-insensitively. Name wins when both clash.
func (r *SQLitePrincipalRepository) FindConflict(ctx context.Context, name, email string) error {
	var existingName string
	err := r.db.QueryRowContext(ctx,
		`SELECT name FROM principals
		 WHERE name = ? COLLATE NOCASE OR email = ? COLLATE NOCASE
		 ORDER BY (name = ? COLLATE NOCASE) DESC LIMIT 1`,
		name, email, name,
	).Scan(&existingName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking for existing principal: %w", err)
	}
	if strings.EqualFold(existingName, name) {
		return ErrNameTaken
	}
	return ErrEmailTaken
}

// RolesOf returns the role names held by the principal, read fresh from the store.
// A principal with no roles yields an empty slice; an unknown id yields ErrPrincipalNotFound.
func (r *SQLitePrincipalRepository) RolesOf(ctx context.Context, id string) ([]Role, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.name FROM principals p
		 LEFT JOIN principal_roles pr ON pr.principal_id = p.id
		 LEFT JOIN roles r ON r.id = pr.role_id
		 WHERE p.id = ?
		 ORDER BY r.name`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("querying roles: %w", err)
	}
	defer rows.Close()

	found := false
	roles := []Role{}
	for rows.Next() {
		found = true
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		if name.Valid {
			roles = append(roles, Role(name.String))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roles: %w", err)
	}
	if !found {
		return nil, ErrPrincipalNotFound
	}
	return roles, nil
}

// Delete removes a principal. Its refresh tokens and role links cascade.
func (r *SQLitePrincipalRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM principals WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting principal: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrPrincipalNotFound
	}
	return nil
}

func (r *SQLitePrincipalRepository) getPrincipal(ctx context.Context, query string, arg string) (*Principal, error) {
	p, err := scanPrincipal(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, err
	}

	roles, err := r.RolesOf(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Roles = roles
	return p, nil
}

func scanPrincipal(row scanner) (*Principal, error) {
	var p Principal
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.Name, &p.Email, &p.PasswordHash, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning principal: %w", err)
	}

	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
