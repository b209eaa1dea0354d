package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenRepository defines the interface for refresh token persistence.
// Tokens are addressed by the SHA-256 hash of their raw value.
type TokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	Rotate(ctx context.Context, id, oldHash, newHash string, expiresAt, updatedAt time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteOwned(ctx context.Context, principalID, tokenHash string) error
	DeleteAllForPrincipal(ctx context.Context, principalID string) (int64, error)
	ListByPrincipal(ctx context.Context, principalID string) ([]RefreshToken, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SQLiteTokenRepository implements TokenRepository using SQLite.
type SQLiteTokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new SQLite-backed token repository.
func NewTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

const tokenColumns = "id, principal_id, token_hash, device, origin_ip, expires_at, created_at, updated_at"

// Create inserts a new refresh token. The ID and timestamps are generated if empty.
func (r *SQLiteTokenRepository) Create(ctx context.Context, token *RefreshToken) error {
	if token.ID == "" {
		token.ID = "rt-" + uuid.NewString()[:16]
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	token.CreatedAt = normaliseTime(token.CreatedAt)
	token.UpdatedAt = token.CreatedAt
	token.ExpiresAt = normaliseTime(token.ExpiresAt)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (`+tokenColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		token.ID, token.PrincipalID, token.TokenHash, token.Device, token.OriginIP,
		formatTime(token.ExpiresAt), formatTime(token.CreatedAt), formatTime(token.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating refresh token: %w", err)
	}
	return nil
}

// GetByTokenHash retrieves a refresh token by hash, or ErrTokenNotFound.
func (r *SQLiteTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx,
		"SELECT "+tokenColumns+" FROM refresh_tokens WHERE token_hash = ?", tokenHash,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	return t, err
}

// Rotate replaces the hash and expiry of token id, but only while its hash
// still equals oldHash. Losing that race returns ErrTokenNotFound, so a
// token string can be exchanged at most once.
func (r *SQLiteTokenRepository) Rotate(ctx context.Context, id, oldHash, newHash string, expiresAt, updatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET token_hash = ?, expires_at = ?, updated_at = ?
		 WHERE id = ? AND token_hash = ?`,
		newHash, formatTime(expiresAt), formatTime(updatedAt), id, oldHash,
	)
	if err != nil {
		return fmt.Errorf("rotating refresh token: %w", err)
	}
	return requireOneRow(result)
}

// Delete removes a refresh token by id. A missing row is not an error.
func (r *SQLiteTokenRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting refresh token: %w", err)
	}
	return nil
}

// DeleteOwned removes the token with tokenHash only if principalID owns it.
// Zero matching rows returns ErrTokenNotFound.
func (r *SQLiteTokenRepository) DeleteOwned(ctx context.Context, principalID, tokenHash string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE token_hash = ? AND principal_id = ?",
		tokenHash, principalID,
	)
	if err != nil {
		return fmt.Errorf("deleting refresh token: %w", err)
	}
	return requireOneRow(result)
}

// DeleteAllForPrincipal removes every refresh token of a principal.
func (r *SQLiteTokenRepository) DeleteAllForPrincipal(ctx context.Context, principalID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE principal_id = ?", principalID)
	if err != nil {
		return 0, fmt.Errorf("deleting refresh tokens: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}

// ListByPrincipal returns all refresh tokens of a principal, oldest first.
func (r *SQLiteTokenRepository) ListByPrincipal(ctx context.Context, principalID string) ([]RefreshToken, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+tokenColumns+" FROM refresh_tokens WHERE principal_id = ? ORDER BY created_at ASC, id ASC",
		principalID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing refresh tokens: %w", err)
	}
	defer rows.Close()

	tokens := []RefreshToken{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating refresh tokens: %w", err)
	}
	return tokens, nil
}

// DeleteExpired removes tokens whose expiry is at or before now.
func (r *SQLiteTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at <= ?", formatTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}

func requireOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func scanToken(row scanner) (*RefreshToken, error) {
	var t RefreshToken
	var expiresAt, createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.PrincipalID, &t.TokenHash, &t.Device, &t.OriginIP,
		&expiresAt, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning refresh token: %w", err)
	}

	var err error
	if t.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
