package auth

import (
	"context"
	"errors"
	"testing"
)

func TestVerifier_Verify(t *testing.T) {
	db := testDB(t)
	seedTestRoles(t, db)
	seedTestPrincipal(t, db, "alice", "correct-password", RoleUser)
	v := NewVerifier(NewPrincipalRepository(db), testHasher())
	ctx := context.Background()

	p, err := v.Verify(ctx, "alice", "correct-password")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if p.Name != "alice" {
		t.Errorf("Name = %q, want alice", p.Name)
	}
	if p.PasswordHash != "" {
		t.Error("Verify() must not return the password hash")
	}
	if len(p.Roles) != 1 || p.Roles[0] != RoleUser {
		t.Errorf("Roles = %v, want [user]", p.Roles)
	}

	tests := []struct {
		name   string
		pname  string
		secret string
	}{
		{"wrong secret", "alice", "wrong-password"},
		{"unknown name", "mallory", "correct-password"},
		{"empty secret", "alice", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(ctx, tt.pname, tt.secret); !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("Verify() error = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestVerifier_CorruptHash(t *testing.T) {
	db := testDB(t)
	seedTestRoles(t, db)
	repo := NewPrincipalRepository(db)
	if err := repo.Create(context.Background(), &Principal{
		Name: "broken", Email: "broken@x.com", PasswordHash: "not-a-phc-string",
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	v := NewVerifier(repo, testHasher())
	if _, err := v.Verify(context.Background(), "broken", "anything"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Verify() error = %v, want ErrInvalidCredentials", err)
	}
}

type failingLookup struct{ err error }

func (f failingLookup) GetByName(context.Context, string) (*Principal, error) {
	return nil, f.err
}

func TestVerifier_StoreFailure(t *testing.T) {
	boom := errors.New("connection reset")
	v := NewVerifier(failingLookup{err: boom}, testHasher())

	_, err := v.Verify(context.Background(), "alice", "pw")
	if !errors.Is(err, boom) {
		t.Errorf("Verify() error = %v, want store error", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Error("store failures must not look like bad credentials")
	}
}
