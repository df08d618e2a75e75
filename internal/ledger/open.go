package ledger

import (
	"context"
	"strings"

	"bridgeiq-client/internal/shared/storage/db"
	"bridgeiq-client/internal/shared/telemetry"
)

// Open returns a Postgres-backed Repo when databaseURL is set and reachable,
// otherwise an in-memory one. The returned close func is never nil.
func Open(ctx context.Context, databaseURL string) (Repo, func() error) {
	noop := func() error { return nil }
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemoryRepo(), noop
	}

	conn, err := db.Connect(ctx, databaseURL, db.OptionsFromEnv(db.DefaultClientOptions()))
	if err != nil {
		telemetry.Warn("ledger.fallback_memory", map[string]any{"error": err.Error()})
		return NewMemoryRepo(), noop
	}
	if err := db.RunMigrations(ctx, conn); err != nil {
		telemetry.Warn("ledger.fallback_memory", map[string]any{"error": err.Error()})
		conn.Close()
		return NewMemoryRepo(), noop
	}
	return &PGRepo{DB: conn}, conn.Close
}
