package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

const firefoxUA = "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0"

func newTestIssuer(t *testing.T, clock *testClock) (*Issuer, *Signer, *Principal) {
	t.Helper()
	db := testDB(t)
	seedTestRoles(t, db)
	p := seedTestPrincipal(t, db, "alice", "pw", RoleUser)

	signer := NewSigner(testSecret, 15*time.Minute).WithClock(clock.Now)
	issuer := NewIssuer(NewTokenRepository(db), NewPrincipalRepository(db), signer, 30*24*time.Hour).
		WithClock(clock.Now)
	return issuer, signer, p
}

func TestIssuer_Issue(t *testing.T) {
	clock := newTestClock()
	issuer, signer, p := newTestIssuer(t, clock)
	ctx := context.Background()

	pair, err := issuer.Issue(ctx, p, "10.0.0.1", firefoxUA)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if pair.TokenType != "Bearer" {
		t.Errorf("TokenType = %q, want Bearer", pair.TokenType)
	}
	if pair.ExpiresIn != 900 {
		t.Errorf("ExpiresIn = %d, want 900", pair.ExpiresIn)
	}
	if !pair.AccessExpiresAt.Equal(clock.Now().Add(15 * time.Minute)) {
		t.Errorf("AccessExpiresAt = %v", pair.AccessExpiresAt)
	}
	if !pair.RefreshExpiresAt.Equal(clock.Now().Add(30 * 24 * time.Hour)) {
		t.Errorf("RefreshExpiresAt = %v", pair.RefreshExpiresAt)
	}

	id, err := signer.VerifyIdentity(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyIdentity() error = %v", err)
	}
	if id.PrincipalID != p.ID || id.Name != "alice" {
		t.Errorf("identity = %+v, want %s/alice", id, p.ID)
	}

	devices, err := issuer.ListDevices(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("ListDevices() = %d, want 1", len(devices))
	}
	if devices[0].OriginIP != "10.0.0.1" || devices[0].Device == UnknownDevice {
		t.Errorf("device = %+v", devices[0])
	}
}

func TestIssuer_ListDevices_SkipsExpired(t *testing.T) {
	clock := newTestClock()
	issuer, _, p := newTestIssuer(t, clock)
	ctx := context.Background()

	if _, err := issuer.Issue(ctx, p, "10.0.0.1", firefoxUA); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// Exactly at expiry the token is no longer active.
	clock.Advance(30 * 24 * time.Hour)
	devices, err := issuer.ListDevices(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 0 {
		t.Fatalf("ListDevices() at expiry = %d, want 0", len(devices))
	}

	clock.Advance(24 * time.Hour)
	devices, err = issuer.ListDevices(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if devices == nil || len(devices) != 0 {
		t.Errorf("ListDevices() after expiry = %v, want empty non-nil slice", devices)
	}

	// The row is still stored until the purge runs.
	n, err := issuer.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("PurgeExpired() = %d, want 1", n)
	}
}

func TestIssuer_Refresh_RotatesInPlace(t *testing.T) {
	clock := newTestClock()
	issuer, _, p := newTestIssuer(t, clock)
	ctx := context.Background()

	first, err := issuer.Issue(ctx, p, "10.0.0.1", firefoxUA)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	before, _ := issuer.ListDevices(ctx, p.ID) //nolint:errcheck // checked below via length

	clock.Advance(time.Hour)
	second, err := issuer.Refresh(ctx, p.ID, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("Refresh() should return a new refresh token")
	}
	if !second.RefreshExpiresAt.Equal(clock.Now().Add(30 * 24 * time.Hour)) {
		t.Errorf("RefreshExpiresAt = %v, want now+30d", second.RefreshExpiresAt)
	}

	after, err := issuer.ListDevices(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(before) != 1 || len(after) != 1 {
		t.Fatalf("device count before/after = %d/%d, want 1/1", len(before), len(after))
	}
	if after[0].DeviceID != before[0].DeviceID || after[0].Device != before[0].Device {
		t.Errorf("rotation should keep the device record, before %+v after %+v", before[0], after[0])
	}

	// The presented token is single-use.
	if _, err := issuer.Refresh(ctx, p.ID, first.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("reusing rotated token error = %v, want ErrUnauthorized", err)
	}
	if _, err := issuer.Refresh(ctx, p.ID, second.RefreshToken); err != nil {
		t.Errorf("new token should work, error = %v", err)
	}
}

func TestIssuer_Refresh_Rejections(t *testing.T) {
	clock := newTestClock()
	issuer, _, p := newTestIssuer(t, clock)
	ctx := context.Background()

	pair, err := issuer.Issue(ctx, p, "", "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name        string
		principalID string
		token       string
	}{
		{"unknown token", p.ID, "not-a-real-token"},
		{"other principal", "prn-someone-else", pair.RefreshToken},
		{"empty token", p.ID, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := issuer.Refresh(ctx, tt.principalID, tt.token); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("Refresh() error = %v, want ErrUnauthorized", err)
			}
		})
	}

	// A foreign attempt must not burn the owner's token.
	if _, err := issuer.Refresh(ctx, p.ID, pair.RefreshToken); err != nil {
		t.Errorf("owner Refresh() error = %v", err)
	}
}

func TestIssuer_Refresh_ExpiredIsDeleted(t *testing.T) {
	clock := newTestClock()
	issuer, _, p := newTestIssuer(t, clock)
	ctx := context.Background()

	pair, err := issuer.Issue(ctx, p, "", "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	clock.Advance(30*24*time.Hour + time.Second)
	_, err = issuer.Refresh(ctx, p.ID, pair.RefreshToken)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Refresh(expired) error = %v, want ErrUnauthorized", err)
	}
	if errors.Is(err, ErrTokenExpired) {
		t.Error("refresh expiry should not report an access token expiry")
	}

	// Refresh already removed the row, so the purge finds nothing.
	if n, err := issuer.PurgeExpired(ctx); err != nil || n != 0 {
		t.Errorf("PurgeExpired() = %d, %v; expired token should already be deleted", n, err)
	}
}

func TestIssuer_AccessTokenExpires(t *testing.T) {
	clock := newTestClock()
	issuer, signer, p := newTestIssuer(t, clock)

	pair, err := issuer.Issue(context.Background(), p, "", "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	clock.Advance(16 * time.Minute)
	_, err = signer.Verify(pair.AccessToken)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Verify() after 16m error = %v, want ErrTokenExpired", err)
	}
	if !errors.Is(err, ErrUnauthorized) {
		t.Error("ErrTokenExpired should also match ErrUnauthorized")
	}
}

func TestIssuer_Revoke(t *testing.T) {
	clock := newTestClock()
	issuer, _, p := newTestIssuer(t, clock)
	ctx := context.Background()

	pair, err := issuer.Issue(ctx, p, "", "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if err := issuer.Revoke(ctx, "prn-intruder", pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Revoke(foreign) error = %v, want ErrUnauthorized", err)
	}
	if err := issuer.Revoke(ctx, p.ID, pair.RefreshToken); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if err := issuer.Revoke(ctx, p.ID, pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("second Revoke() error = %v, want ErrUnauthorized", err)
	}
	if _, err := issuer.Refresh(ctx, p.ID, pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Refresh(revoked) error = %v, want ErrUnauthorized", err)
	}
}

func TestIssuer_RevokeAll_IsolatesPrincipals(t *testing.T) {
	db := testDB(t)
	seedTestRoles(t, db)
	alice := seedTestPrincipal(t, db, "alice", "pw", RoleUser)
	bob := seedTestPrincipal(t, db, "bob", "pw", RoleUser)
	issuer := NewIssuer(NewTokenRepository(db), NewPrincipalRepository(db), NewSigner(testSecret, 0), 0)
	ctx := context.Background()

	for range 3 {
		if _, err := issuer.Issue(ctx, alice, "", ""); err != nil {
			t.Fatalf("Issue(alice) error = %v", err)
		}
	}
	bobPair, err := issuer.Issue(ctx, bob, "", "")
	if err != nil {
		t.Fatalf("Issue(bob) error = %v", err)
	}

	n, err := issuer.RevokeAll(ctx, alice.ID)
	if err != nil {
		t.Fatalf("RevokeAll() error = %v", err)
	}
	if n != 3 {
		t.Errorf("RevokeAll() = %d, want 3", n)
	}

	devices, err := issuer.ListDevices(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("alice devices = %d, want 0", len(devices))
	}
	if _, err := issuer.Refresh(ctx, bob.ID, bobPair.RefreshToken); err != nil {
		t.Errorf("bob's session should survive, Refresh() error = %v", err)
	}

	n, err = issuer.RevokeAll(ctx, alice.ID)
	if err != nil || n != 0 {
		t.Errorf("RevokeAll() on empty = %d, %v; want 0, nil", n, err)
	}
}

func TestIssuer_PurgeExpired(t *testing.T) {
	clock := newTestClock()
	issuer, _, p := newTestIssuer(t, clock)
	ctx := context.Background()

	if _, err := issuer.Issue(ctx, p, "", ""); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if n, err := issuer.PurgeExpired(ctx); err != nil || n != 0 {
		t.Fatalf("PurgeExpired() = %d, %v; want 0, nil", n, err)
	}

	clock.Advance(31 * 24 * time.Hour)
	if n, err := issuer.PurgeExpired(ctx); err != nil || n != 1 {
		t.Errorf("PurgeExpired() = %d, %v; want 1, nil", n, err)
	}
}

type failingTokens struct {
	TokenRepository
	err error
}

func (f failingTokens) GetByTokenHash(context.Context, string) (*RefreshToken, error) {
	return nil, f.err
}

func TestIssuer_Refresh_StoreFailurePropagates(t *testing.T) {
	boom := errors.New("database is locked")
	issuer := NewIssuer(failingTokens{err: boom}, nil, NewSigner(testSecret, 0), 0)

	_, err := issuer.Refresh(context.Background(), "prn-1", "raw")
	if !errors.Is(err, boom) {
		t.Errorf("Refresh() error = %v, want store error", err)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("store failures must not be reported as unauthorized")
	}
}

// TestAuthFlow_EndToEnd walks a principal through register, login, an
// authorised call, refresh, logout and a rejected reuse.
func TestAuthFlow_EndToEnd(t *testing.T) {
	db := testDB(t)
	seedTestRoles(t, db)
	clock := newTestClock()
	ctx := context.Background()

	principals := NewPrincipalRepository(db)
	hasher := testHasher()
	registrar := NewRegistrar(principals, NewRoleRepository(db), hasher)
	verifier := NewVerifier(principals, hasher)
	authorizer := NewAuthorizer(principals)
	signer := NewSigner(testSecret, 15*time.Minute).WithClock(clock.Now)
	issuer := NewIssuer(NewTokenRepository(db), principals, signer, 0).WithClock(clock.Now)

	created, err := registrar.Register(ctx, RegistrationRequest{
		Name: "alice", Email: "alice@x.com", Password: "Str0ng!pass",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	p, err := verifier.Verify(ctx, "alice", "Str0ng!pass")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if p.ID != created.ID {
		t.Fatalf("verified principal %s, registered %s", p.ID, created.ID)
	}

	pair, err := issuer.Issue(ctx, p, "192.0.2.10", firefoxUA)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	id, err := signer.VerifyIdentity(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyIdentity() error = %v", err)
	}
	if ok, err := authorizer.Authorize(ctx, id.PrincipalID, RoleAdmin, RoleUser); err != nil || !ok {
		t.Errorf("Authorize(admin|user) = %v, %v; want true", ok, err)
	}
	if ok, err := authorizer.Authorize(ctx, id.PrincipalID, RoleAdmin); err != nil || ok {
		t.Errorf("Authorize(admin) = %v, %v; want false", ok, err)
	}

	clock.Advance(20 * time.Minute)
	if _, err := signer.Verify(pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("access token after 20m error = %v, want ErrTokenExpired", err)
	}

	next, err := issuer.Refresh(ctx, p.ID, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if _, err := signer.Verify(next.AccessToken); err != nil {
		t.Errorf("refreshed access token should verify, error = %v", err)
	}

	if err := issuer.Revoke(ctx, p.ID, next.RefreshToken); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if _, err := issuer.Refresh(ctx, p.ID, next.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Refresh() after logout error = %v, want ErrUnauthorized", err)
	}
}
