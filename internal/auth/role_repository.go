package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RoleRepository defines the interface for role persistence.
type RoleRepository interface {
	Create(ctx context.Context, name Role) (*RoleRecord, error)
	GetByName(ctx context.Context, name Role) (*RoleRecord, error)
	List(ctx context.Context) ([]RoleRecord, error)
}

// SQLiteRoleRepository implements RoleRepository using SQLite.
type SQLiteRoleRepository struct {
	db *sql.DB
}

// NewRoleRepository creates a new SQLite-backed role repository.
func NewRoleRepository(db *sql.DB) *SQLiteRoleRepository {
	return &SQLiteRoleRepository{db: db}
}

// Create inserts a role. A duplicate name fails with an error wrapping ErrConflict.
func (r *SQLiteRoleRepository) Create(ctx context.Context, name Role) (*RoleRecord, error) {
	rec := &RoleRecord{
		ID:        "rol-" + uuid.NewString()[:8],
		Name:      name,
		CreatedAt: normaliseTime(time.Now()),
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO roles (id, name, created_at) VALUES (?, ?, ?)",
		rec.ID, string(rec.Name), formatTime(rec.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: role %q already exists", ErrConflict, name)
		}
		return nil, fmt.Errorf("creating role: %w", err)
	}
	return rec, nil
}

// GetByName retrieves a role by exact name.
func (r *SQLiteRoleRepository) GetByName(ctx context.Context, name Role) (*RoleRecord, error) {
	rec, err := scanRole(r.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM roles WHERE name = ?", string(name),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoleNotFound
	}
	return rec, err
}

// List returns all roles ordered by name.
func (r *SQLiteRoleRepository) List(ctx context.Context) ([]RoleRecord, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name, created_at FROM roles ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	roles := []RoleRecord{}
	for rows.Next() {
		rec, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roles: %w", err)
	}
	return roles, nil
}

func scanRole(row scanner) (*RoleRecord, error) {
	var rec RoleRecord
	var name, createdAt string
	if err := row.Scan(&rec.ID, &name, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning role: %w", err)
	}
	rec.Name = Role(name)

	var err error
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
