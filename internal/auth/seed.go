package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// SeedRoles creates any of the built-in roles that are missing.
// It is safe to run on every boot. Returns the names it created.
func SeedRoles(ctx context.Context, roles RoleRepository, logger *slog.Logger) ([]Role, error) {
	var created []Role
	for _, name := range BuiltinRoles {
		_, err := roles.GetByName(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return created, fmt.Errorf("checking role %q: %w", name, err)
		}

		if _, err := roles.Create(ctx, name); err != nil {
			// Another process seeded it first.
			if errors.Is(err, ErrConflict) {
				continue
			}
			return created, fmt.Errorf("creating role %q: %w", name, err)
		}
		created = append(created, name)
	}

	if len(created) > 0 {
		logger.Info("seeded built-in roles", "roles", created)
	} else {
		logger.Debug("built-in roles present, skipping seed")
	}
	return created, nil
}
