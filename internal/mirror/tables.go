package mirror

import (
	"context"
	"fmt"
	"time"

	affiliatedomain "github.com/windimenu/windi/internal/affiliate/domain"
	businessdomain "github.com/windimenu/windi/internal/business/domain"
	paymentdomain "github.com/windimenu/windi/internal/payment/domain"
	payoutdomain "github.com/windimenu/windi/internal/payout/domain"
	plandomain "github.com/windimenu/windi/internal/plan/domain"
	subscriptiondomain "github.com/windimenu/windi/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const batchSize = 500

// Table copies the rows of one ledger table that changed after a watermark.
type Table interface {
	Name() string
	Copy(ctx context.Context, src, dst *gorm.DB, since time.Time) (copied int, high time.Time, err error)
}

type table[T any] struct {
	name  string
	stamp func(*T) time.Time
}

func newTable[T any](name string, stamp func(*T) time.Time) Table {
	return table[T]{name: name, stamp: stamp}
}

func (t table[T]) Name() string { return t.name }

// Copy upserts changed rows into dst. A row only overwrites its counterpart
// when it is strictly newer, so concurrent local writes are never lost and
// replays are harmless.
func (t table[T]) Copy(ctx context.Context, src, dst *gorm.DB, since time.Time) (int, time.Time, error) {
	cols, err := updateColumns(dst, new(T))
	if err != nil {
		return 0, time.Time{}, err
	}
	upsert := clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(cols),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: fmt.Sprintf("excluded.updated_at > %s.updated_at", t.name)},
		}},
	}

	var (
		batch  []T
		copied int
		high   time.Time
	)
	// FindInBatches pages by primary key, so no custom ordering here.
	res := src.WithContext(ctx).
		Where("updated_at > ?", since).
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			if err := dst.WithContext(ctx).Clauses(upsert).Create(&batch).Error; err != nil {
				return fmt.Errorf("upsert %s: %w", t.name, err)
			}
			for i := range batch {
				if ts := t.stamp(&batch[i]); ts.After(high) {
					high = ts
				}
			}
			copied += len(batch)
			return nil
		})
	if res.Error != nil {
		return copied, high, res.Error
	}
	return copied, high, nil
}

func updateColumns(db *gorm.DB, model any) ([]string, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(stmt.Schema.DBNames))
	for _, name := range stmt.Schema.DBNames {
		if field := stmt.Schema.LookUpField(name); field != nil && field.PrimaryKey {
			continue
		}
		cols = append(cols, name)
	}
	return cols, nil
}

// Tables lists the mirrored tables, parents before children.
func Tables() []Table {
	return []Table{
		newTable("plans", func(p *plandomain.Plan) time.Time { return p.UpdatedAt }),
		newTable("businesses", func(b *businessdomain.Business) time.Time { return b.UpdatedAt }),
		newTable("subscriptions", func(s *subscriptiondomain.Subscription) time.Time { return s.UpdatedAt }),
		newTable("payments", func(p *paymentdomain.Payment) time.Time { return p.UpdatedAt }),
		newTable("affiliates", func(a *affiliatedomain.Affiliate) time.Time { return a.UpdatedAt }),
		newTable("affiliate_payouts", func(p *payoutdomain.Payout) time.Time { return p.UpdatedAt }),
		newTable("affiliate_sales", func(s *affiliatedomain.Sale) time.Time { return s.UpdatedAt }),
	}
}
