package app

import (
	"fmt"
	"log/slog"

	"github.com/karinja/auth/pkg/jwtx"
)

// InitAuthKeys creates a KeyManager with ephemeral ES256 keys.
//
// Keys are generated on startup and live only in memory, so all issued
// access tokens become invalid when the service restarts. Clients recover
// through their normal refresh path.
//
// By default, generates 3 signing keys with random identifiers for improved
// availability and load distribution. Use AUTH_NUM_KEYS to customize.
func InitAuthKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	logger.Info("initializing ephemeral key manager", "num_keys", cfg.NumKeys)

	keyManager, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Issuer:  cfg.Issuer,
		NumKeys: cfg.NumKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
	}

	logger.Info("generated ephemeral signing keys",
		"num_keys", keyManager.NumSigners(),
		"issuer", cfg.Issuer,
	)
	logger.Warn("all existing tokens are now invalid due to key rotation on startup")

	return keyManager, nil
}
