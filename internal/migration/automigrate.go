package migration

import (
	"fmt"

	affiliatedomain "github.com/windimenu/windi/internal/affiliate/domain"
	auditdomain "github.com/windimenu/windi/internal/audit/domain"
	businessdomain "github.com/windimenu/windi/internal/business/domain"
	paymentdomain "github.com/windimenu/windi/internal/payment/domain"
	payoutdomain "github.com/windimenu/windi/internal/payout/domain"
	plandomain "github.com/windimenu/windi/internal/plan/domain"
	subscriptiondomain "github.com/windimenu/windi/internal/subscription/domain"
	"gorm.io/gorm"
)

// Models lists every table in dependency order. The ledger tables come
// first; audit_logs is local only.
func Models() []any {
	return []any{
		&plandomain.Plan{},
		&businessdomain.Business{},
		&businessdomain.Product{},
		&subscriptiondomain.Subscription{},
		&paymentdomain.Payment{},
		&affiliatedomain.Affiliate{},
		&payoutdomain.Payout{},
		&affiliatedomain.Sale{},
		&auditdomain.AuditLog{},
	}
}

// partialIndex backs the at-most-one-pending and webhook idempotency rules.
// gorm tags cannot express them portably. The DDL stays on one line without
// IF NOT EXISTS so the sqlite migrator can parse it back on the next run.
type partialIndex struct {
	model any
	name  string
	ddl   string
}

var partialIndexes = []partialIndex{
	{
		model: &subscriptiondomain.Subscription{},
		name:  "ux_subscriptions_one_pending",
		ddl:   "CREATE UNIQUE INDEX ux_subscriptions_one_pending ON subscriptions (business_id) WHERE status = 'PENDING_PAYMENT'",
	},
	{
		model: &paymentdomain.Payment{},
		name:  "ux_payments_provider_payment_id",
		ddl:   "CREATE UNIQUE INDEX ux_payments_provider_payment_id ON payments (provider_payment_id) WHERE provider_payment_id IS NOT NULL",
	},
}

// AutoMigrate creates the schema from the gorm models. It serves sqlite and
// mysql deployments and tests; Postgres uses the embedded SQL migrations.
// Running it again on an existing schema is a no-op.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	migrator := conn.Migrator()
	switch conn.Dialector.Name() {
	case "mysql":
		// mysql has no partial indexes. NULLs never collide in a unique index,
		// so the payment key is equivalent there; the single pending
		// subscription is only guarded by the checkout re-read.
		if migrator.HasIndex(&paymentdomain.Payment{}, "ux_payments_provider_payment_id") {
			return nil
		}
		return conn.Exec("CREATE UNIQUE INDEX ux_payments_provider_payment_id ON payments (provider_payment_id)").Error
	default:
		for _, idx := range partialIndexes {
			if migrator.HasIndex(idx.model, idx.name) {
				continue
			}
			if err := conn.Exec(idx.ddl).Error; err != nil {
				return fmt.Errorf("create index %s: %w", idx.name, err)
			}
		}
	}
	return nil
}
