package commands

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/resignhq/resign/internal/logger"
	"github.com/resignhq/resign/pkg/config"
	"github.com/resignhq/resign/pkg/directory"
	"github.com/resignhq/resign/pkg/directory/badger"
	"github.com/resignhq/resign/pkg/directory/memory"
	"github.com/resignhq/resign/pkg/identity"
)

// openStore creates the configured directory store backend.
func openStore(cfg *config.Config) (directory.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		logger.Info("using in-memory store; accounts do not survive restarts")
		return memory.New(), nil
	case "badger":
		logger.Info("opening badger store", "path", cfg.Store.Path)
		return badger.Open(cfg.Store.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// serverTLS builds the listener TLS configuration, or nil when disabled.
func serverTLS(cfg *config.Config) (*tls.Config, error) {
	if !cfg.Server.TLS.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS keypair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// seedBootstrap inserts the configured bootstrap accounts into an empty
// store. A non-empty store is left untouched so a restart never resets
// passwords changed since the first boot.
func seedBootstrap(ctx context.Context, store directory.Store, cfg *config.Config, verifier identity.Verifier) error {
	if len(cfg.Bootstrap.Accounts) == 0 {
		return nil
	}

	count, err := store.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		logger.Debug("store is not empty, skipping bootstrap", "accounts", count)
		return nil
	}

	for _, seed := range cfg.Bootstrap.Accounts {
		digest := seed.PasswordHash
		if digest == "" {
			if digest, err = verifier.Hash(seed.Password); err != nil {
				return fmt.Errorf("hash password for %q: %w", seed.Username, err)
			}
		}

		role, err := identity.ParseRole(seed.Role)
		if err != nil {
			return fmt.Errorf("account %q: %w", seed.Username, err)
		}

		account := &identity.Account{
			Username:     seed.Username,
			PasswordHash: digest,
			PhoneNumber:  seed.PhoneNumber,
			Role:         role,
		}
		if err := store.Create(ctx, account); err != nil {
			return fmt.Errorf("create account %q: %w", seed.Username, err)
		}
		logger.Info("bootstrap account created", "username", seed.Username, "role", seed.Role)
	}
	return nil
}
