package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultRefreshTokenTTL is the refresh token lifetime when none is configured.
const DefaultRefreshTokenTTL = 30 * 24 * time.Hour

// PrincipalFetcher loads principals by id.
type PrincipalFetcher interface {
	GetByID(ctx context.Context, id string) (*Principal, error)
}

// Issuer manages the access and refresh token lifecycle.
type Issuer struct {
	tokens     TokenRepository
	principals PrincipalFetcher
	signer     *Signer
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer creates an Issuer. A non-positive refreshTTL falls back to DefaultRefreshTokenTTL.
func NewIssuer(tokens TokenRepository, principals PrincipalFetcher, signer *Signer, refreshTTL time.Duration) *Issuer {
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}
	return &Issuer{
		tokens:     tokens,
		principals: principals,
		signer:     signer,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock returns a copy of the Issuer whose refresh expiry decisions use now.
// The signer keeps its own clock.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	c := *i
	c.now = now
	return &c
}

// Issue creates a refresh token bound to the device described by userAgent
// and signs a fresh access token for p.
func (i *Issuer) Issue(ctx context.Context, p *Principal, originIP, userAgent string) (TokenPair, error) {
	raw, err := GenerateRefreshToken()
	if err != nil {
		return TokenPair{}, err
	}

	now := i.now()
	rec := &RefreshToken{
		PrincipalID: p.ID,
		TokenHash:   HashToken(raw),
		Device:      DeviceDescriptor(userAgent),
		OriginIP:    originIP,
		ExpiresAt:   now.Add(i.refreshTTL),
		CreatedAt:   now,
	}
	if err := i.tokens.Create(ctx, rec); err != nil {
		return TokenPair{}, err
	}

	return i.pair(p, raw, rec.ExpiresAt)
}

// Refresh exchanges a refresh token held by principalID for a new pair.
// The stored row is rotated in place: it keeps its id, device and origin,
// and the presented token stops working. Unknown, foreign, expired or
// concurrently rotated tokens all yield ErrUnauthorized; expired rows are deleted.
func (i *Issuer) Refresh(ctx context.Context, principalID, raw string) (TokenPair, error) {
	oldHash := HashToken(raw)

	rec, err := i.tokens.GetByTokenHash(ctx, oldHash)
	if errors.Is(err, ErrNotFound) {
		return TokenPair{}, ErrUnauthorized
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("looking up refresh token: %w", err)
	}

	if rec.PrincipalID != principalID {
		return TokenPair{}, ErrUnauthorized
	}

	now := i.now()
	if rec.Expired(now) {
		if err := i.tokens.Delete(ctx, rec.ID); err != nil {
			return TokenPair{}, fmt.Errorf("removing expired refresh token: %w", err)
		}
		return TokenPair{}, ErrUnauthorized
	}

	p, err := i.principals.GetByID(ctx, principalID)
	if errors.Is(err, ErrNotFound) {
		return TokenPair{}, ErrUnauthorized
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("loading principal: %w", err)
	}

	newRaw, err := GenerateRefreshToken()
	if err != nil {
		return TokenPair{}, err
	}
	expiresAt := normaliseTime(now.Add(i.refreshTTL))

	err = i.tokens.Rotate(ctx, rec.ID, oldHash, HashToken(newRaw), expiresAt, now)
	if errors.Is(err, ErrNotFound) {
		return TokenPair{}, ErrUnauthorized
	}
	if err != nil {
		return TokenPair{}, err
	}

	return i.pair(p, newRaw, expiresAt)
}

// Revoke deletes a single refresh token, provided principalID owns it.
func (i *Issuer) Revoke(ctx context.Context, principalID, raw string) error {
	err := i.tokens.DeleteOwned(ctx, principalID, HashToken(raw))
	if errors.Is(err, ErrNotFound) {
		return ErrUnauthorized
	}
	return err
}

// RevokeAll deletes every refresh token of principalID and reports how many were removed.
func (i *Issuer) RevokeAll(ctx context.Context, principalID string) (int64, error) {
	return i.tokens.DeleteAllForPrincipal(ctx, principalID)
}

// ListDevices returns one entry per active refresh token of principalID.
// Expired rows that PurgeExpired has not removed yet are skipped.
func (i *Issuer) ListDevices(ctx context.Context, principalID string) ([]Device, error) {
	tokens, err := i.tokens.ListByPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}

	now := i.now()
	devices := make([]Device, 0, len(tokens))
	for _, t := range tokens {
		if t.Expired(now) {
			continue
		}
		devices = append(devices, Device{
			PrincipalID: t.PrincipalID,
			DeviceID:    t.ID,
			Device:      t.Device,
			OriginIP:    t.OriginIP,
			CreatedAt:   t.CreatedAt,
			ExpiresAt:   t.ExpiresAt,
		})
	}
	return devices, nil
}

// PurgeExpired deletes refresh tokens that are past their expiry.
func (i *Issuer) PurgeExpired(ctx context.Context) (int64, error) {
	return i.tokens.DeleteExpired(ctx, i.now())
}

func (i *Issuer) pair(p *Principal, refresh string, refreshExpiresAt time.Time) (TokenPair, error) {
	access, accessExpiresAt, err := i.signer.Sign(p)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresIn:        int(i.signer.TTL().Seconds()),
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}
