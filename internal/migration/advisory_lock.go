package migration

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaLockKey identifies windi schema changes among pg advisory locks.
const schemaLockKey int64 = 0x77696e6469

// withSchemaLock runs fn while holding a session advisory lock. The lock is
// taken on a pinned connection because session locks belong to the
// connection that acquired them; concurrent migrators wait until ctx ends.
func withSchemaLock(ctx context.Context, db *sql.DB, fn func() error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("pin connection for schema lock: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", schemaLockKey)
	}()

	return fn()
}
