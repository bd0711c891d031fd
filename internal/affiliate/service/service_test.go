package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/windimenu/windi/internal/affiliate/domain"
	"github.com/windimenu/windi/internal/affiliate/repository"
	businessdomain "github.com/windimenu/windi/internal/business/domain"
	businessrepo "github.com/windimenu/windi/internal/business/repository"
	"github.com/windimenu/windi/internal/clock"
	"github.com/windimenu/windi/internal/mirror/outbox"
	"github.com/windimenu/windi/internal/observability"
	subscriptiondomain "github.com/windimenu/windi/internal/subscription/domain"
	subscriptionrepo "github.com/windimenu/windi/internal/subscription/repository"
	"github.com/windimenu/windi/pkg/db/dbtest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 10, 7, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db   *gorm.DB
	svc  *Service
	node *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:           conn,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clock.Fixed(testNow),
		Outbox:       outbox.NewChannel(),
		Metrics:      observability.NewMetrics(),
		Repo:         repository.NewRepository(conn),
		SaleRepo:     repository.NewSaleRepository(conn),
		BusinessRepo: businessrepo.NewRepository(conn),
		SubRepo:      subscriptionrepo.NewRepository(conn),
	}).(*Service)
	return &fixture{db: conn, svc: svc, node: node}
}

func (f *fixture) affiliate(t *testing.T, rate string) *domain.Affiliate {
	t.Helper()
	a := &domain.Affiliate{
		ID:             f.node.Generate(),
		UserID:         f.node.Generate(),
		RefCode:        "REF" + f.node.Generate().String(),
		CommissionRate: decimal.RequireFromString(rate),
		IsActive:       true,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}
	require.NoError(t, f.db.Create(a).Error)
	return a
}

func (f *fixture) referredSubscription(t *testing.T, affiliateID *snowflake.ID, amount int64, status subscriptiondomain.SubscriptionStatus) *subscriptiondomain.Subscription {
	t.Helper()
	business := &businessdomain.Business{
		ID:           f.node.Generate(),
		BusinessName: "Cafe Central",
		AffiliateID:  affiliateID,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	require.NoError(t, f.db.Create(business).Error)

	sub := &subscriptiondomain.Subscription{
		ID:              f.node.Generate(),
		BusinessID:      business.ID,
		PlanID:          f.node.Generate(),
		Amount:          decimal.NewFromInt(amount),
		Status:          status,
		PaymentProvider: subscriptiondomain.ProviderMercadoPago,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
	require.NoError(t, f.db.Create(sub).Error)
	return sub
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) domain.Affiliate {
	t.Helper()
	var a domain.Affiliate
	require.NoError(t, f.db.First(&a, id).Error)
	return a
}

func (f *fixture) approvedSale(t *testing.T, a *domain.Affiliate, amount int64) *domain.Sale {
	t.Helper()
	sub := f.referredSubscription(t, &a.ID, amount, subscriptiondomain.SubscriptionStatusActive)
	sale, err := f.svc.CreatePendingSale(context.Background(), sub.ID)
	require.NoError(t, err)
	require.NotNil(t, sale)
	sale, err = f.svc.Approve(context.Background(), domain.ReviewRequest{SaleID: sale.ID, ReviewerID: 1})
	require.NoError(t, err)
	return sale
}

func TestCreatePendingSaleCommission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t, "0.25")
	sub := f.referredSubscription(t, &a.ID, 12999, subscriptiondomain.SubscriptionStatusActive)

	sale, err := f.svc.CreatePendingSale(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, sale)
	assert.Equal(t, domain.SaleStatusPending, sale.Status)
	assert.Equal(t, "3250", sale.CommissionAmount.String())
	assert.Equal(t, int64(130), sale.PointsEarned)
	assert.Equal(t, a.ID, sale.AffiliateID)

	again, err := f.svc.CreatePendingSale(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.ID, again.ID)

	var count int64
	require.NoError(t, f.db.Model(&domain.Sale{}).Where("subscription_id = ?", sub.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreatePendingSaleSkips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t, "0.25")

	pending := f.referredSubscription(t, &a.ID, 12999, subscriptiondomain.SubscriptionStatusPendingPayment)
	sale, err := f.svc.CreatePendingSale(ctx, pending.ID)
	require.NoError(t, err)
	assert.Nil(t, sale)

	organic := f.referredSubscription(t, nil, 12999, subscriptiondomain.SubscriptionStatusActive)
	sale, err = f.svc.CreatePendingSale(ctx, organic.ID)
	require.NoError(t, err)
	assert.Nil(t, sale)

	inactive := f.affiliate(t, "0.25")
	require.NoError(t, f.db.Model(&domain.Affiliate{}).Where("id = ?", inactive.ID).Update("is_active", false).Error)
	sub := f.referredSubscription(t, &inactive.ID, 12999, subscriptiondomain.SubscriptionStatusActive)
	sale, err = f.svc.CreatePendingSale(ctx, sub.ID)
	require.NoError(t, err)
	assert.Nil(t, sale)

	sale, err = f.svc.CreatePendingSale(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, sale)
}

func TestApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t, "0.25")
	sale := f.approvedSale(t, a, 12999)

	assert.Equal(t, domain.SaleStatusApproved, sale.Status)
	require.NotNil(t, sale.ReviewedBy)
	assert.EqualValues(t, 1, *sale.ReviewedBy)

	got := f.reload(t, a.ID)
	assert.Equal(t, int64(130), got.PointsConfirmed)
	assert.True(t, got.TotalCommissionEarned.Equal(decimal.NewFromInt(3250)))

	_, err := f.svc.Approve(ctx, domain.ReviewRequest{SaleID: sale.ID})
	assert.ErrorIs(t, err, domain.ErrSaleNotPending)

	got = f.reload(t, a.ID)
	assert.Equal(t, int64(130), got.PointsConfirmed)

	_, err = f.svc.Approve(ctx, domain.ReviewRequest{SaleID: 4242})
	assert.ErrorIs(t, err, domain.ErrSaleNotFound)
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t, "0.25")
	sub := f.referredSubscription(t, &a.ID, 16999, subscriptiondomain.SubscriptionStatusActive)
	sale, err := f.svc.CreatePendingSale(ctx, sub.ID)
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, domain.ReviewRequest{SaleID: sale.ID, ReviewerID: 2, Note: " self referral "})
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusRejected, rejected.Status)
	assert.Equal(t, "self referral", rejected.ReviewNote)

	got := f.reload(t, a.ID)
	assert.Equal(t, int64(0), got.PointsConfirmed)
	assert.True(t, got.TotalCommissionEarned.IsZero())

	_, err = f.svc.Approve(ctx, domain.ReviewRequest{SaleID: sale.ID})
	assert.ErrorIs(t, err, domain.ErrSaleNotPending)
	_, err = f.svc.Reverse(ctx, domain.ReviewRequest{SaleID: sale.ID, Note: "x"})
	assert.ErrorIs(t, err, domain.ErrSaleNotReversible)
}

func TestReverseAfterApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t, "0.25")
	sale := f.approvedSale(t, a, 12999)

	_, err := f.svc.Reverse(ctx, domain.ReviewRequest{SaleID: sale.ID, ReviewerID: 1})
	assert.ErrorIs(t, err, domain.ErrNoteRequired)

	reversed, err := f.svc.Reverse(ctx, domain.ReviewRequest{SaleID: sale.ID, ReviewerID: 1, Note: "chargeback"})
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusReversed, reversed.Status)
	assert.Equal(t, "chargeback", reversed.ReverseNote)
	require.NotNil(t, reversed.ReversedAt)

	got := f.reload(t, a.ID)
	assert.Equal(t, int64(0), got.PointsConfirmed)
	assert.Equal(t, int64(0), got.PointsDebt)
	assert.True(t, got.TotalCommissionEarned.IsZero())
	assert.True(t, got.NegativeBalance.IsZero())

	_, err = f.svc.Reverse(ctx, domain.ReviewRequest{SaleID: sale.ID, Note: "again"})
	assert.ErrorIs(t, err, domain.ErrSaleNotReversible)
}

func TestReverseWithConsumedBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t, "0.25")
	sale := f.approvedSale(t, a, 12999)

	// points and earnings were spent before the chargeback arrived
	require.NoError(t, f.db.Model(&domain.Affiliate{}).Where("id = ?", a.ID).Updates(map[string]any{
		"points_confirmed":        0,
		"total_commission_earned": decimal.Zero,
	}).Error)

	_, err := f.svc.Reverse(ctx, domain.ReviewRequest{SaleID: sale.ID, Note: "chargeback"})
	require.NoError(t, err)

	got := f.reload(t, a.ID)
	assert.Equal(t, int64(0), got.PointsConfirmed)
	assert.Equal(t, int64(130), got.PointsDebt)
	assert.True(t, got.TotalCommissionEarned.IsZero())
	assert.True(t, got.NegativeBalance.Equal(decimal.NewFromInt(3250)))
}

func TestReversePaidSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t, "0.25")
	sale := f.approvedSale(t, a, 12999)
	require.NoError(t, f.db.Model(&domain.Sale{}).Where("id = ?", sale.ID).Update("status", domain.SaleStatusPaid).Error)

	_, err := f.svc.Reverse(ctx, domain.ReviewRequest{SaleID: sale.ID, Note: "refund"})
	require.NoError(t, err)

	got := f.reload(t, a.ID)
	assert.True(t, got.NegativeBalance.Equal(decimal.NewFromInt(3250)))
	assert.Equal(t, int64(0), got.PointsConfirmed)
}

func TestReverseKeepsExistingReviewNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t, "0.25")
	sub := f.referredSubscription(t, &a.ID, 12999, subscriptiondomain.SubscriptionStatusActive)
	sale, err := f.svc.CreatePendingSale(ctx, sub.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, domain.ReviewRequest{SaleID: sale.ID, ReviewerID: 1, Note: "verified"})
	require.NoError(t, err)

	reversed, err := f.svc.Reverse(ctx, domain.ReviewRequest{SaleID: sale.ID, ReviewerID: 7, Note: "chargeback"})
	require.NoError(t, err)
	assert.Equal(t, "verified", reversed.ReviewNote)
	assert.Equal(t, "chargeback", reversed.ReverseNote)
	require.NotNil(t, reversed.ReviewedBy)
	assert.EqualValues(t, 7, *reversed.ReviewedBy)
	require.NotNil(t, reversed.ReversedBy)
	assert.EqualValues(t, 7, *reversed.ReversedBy)
}

func TestReviewLocksAffiliateBeforeSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t, "0.25")
	sub := f.referredSubscription(t, &a.ID, 12999, subscriptiondomain.SubscriptionStatusActive)
	sale, err := f.svc.CreatePendingSale(ctx, sub.ID)
	require.NoError(t, err)

	var order []string
	require.NoError(t, f.db.Callback().Query().Before("gorm:query").Register("test:lock_order", func(tx *gorm.DB) {
		if _, locked := tx.Statement.Clauses["FOR"]; locked {
			order = append(order, "lock "+tx.Statement.Table)
		}
	}))
	require.NoError(t, f.db.Callback().Update().Before("gorm:update").Register("test:update_order", func(tx *gorm.DB) {
		order = append(order, "update "+tx.Statement.Table)
	}))

	_, err = f.svc.Approve(ctx, domain.ReviewRequest{SaleID: sale.ID, ReviewerID: 1})
	require.NoError(t, err)
	require.NotEmpty(t, order)
	assert.Equal(t, "lock affiliates", order[0])
	assert.Contains(t, order, "update affiliate_sales")

	order = nil
	_, err = f.svc.Reverse(ctx, domain.ReviewRequest{SaleID: sale.ID, ReviewerID: 1, Note: "chargeback"})
	require.NoError(t, err)
	require.NotEmpty(t, order)
	assert.Equal(t, "lock affiliates", order[0])
	assert.Contains(t, order, "update affiliate_sales")
}

func TestReverseLatestForSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t, "0.25")
	sale := f.approvedSale(t, a, 12999)

	reversed, err := f.svc.ReverseLatestForSubscription(ctx, sale.SubscriptionID, "refunded by gateway")
	require.NoError(t, err)
	require.NotNil(t, reversed)
	assert.Equal(t, domain.SaleStatusReversed, reversed.Status)
	require.NotNil(t, reversed.ReviewedAt)
	assert.True(t, reversed.ReviewedAt.Equal(testNow))
	assert.Equal(t, "refunded by gateway", reversed.ReviewNote)
	assert.Equal(t, "refunded by gateway", reversed.ReverseNote)

	none, err := f.svc.ReverseLatestForSubscription(ctx, sale.SubscriptionID, "refunded by gateway")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRegisterAndReferral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Register(ctx, domain.RegisterRequest{UserID: 10, Seed: "María López"})
	require.NoError(t, err)
	assert.Regexp(t, `^MARIAL[0-9A-F]{6}$`, a.RefCode)
	assert.True(t, a.CommissionRate.Equal(domain.DefaultCommissionRate))

	_, err = f.svc.Register(ctx, domain.RegisterRequest{UserID: 11, CommissionRate: decimal.NewFromInt(2)})
	assert.ErrorIs(t, err, domain.ErrInvalidCommissionRate)

	found, err := f.svc.FindByRefCode(ctx, " "+a.RefCode+" ")
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)

	_, err = f.svc.FindByRefCode(ctx, "NOPE000000")
	assert.ErrorIs(t, err, domain.ErrAffiliateNotFound)

	sub := f.referredSubscription(t, nil, 12999, subscriptiondomain.SubscriptionStatusActive)
	require.NoError(t, f.svc.AttachReferral(ctx, sub.BusinessID, a.RefCode))

	other, err := f.svc.Register(ctx, domain.RegisterRequest{UserID: 12, Seed: "Other"})
	require.NoError(t, err)
	require.NoError(t, f.svc.AttachReferral(ctx, sub.BusinessID, other.RefCode))

	var business businessdomain.Business
	require.NoError(t, f.db.First(&business, sub.BusinessID).Error)
	require.NotNil(t, business.AffiliateID)
	assert.Equal(t, a.ID, *business.AffiliateID)

	err = f.svc.AttachReferral(ctx, 777, a.RefCode)
	assert.ErrorIs(t, err, businessdomain.ErrBusinessNotFound)
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t, "0.25")
	f.approvedSale(t, a, 12999)
	f.approvedSale(t, a, 16999)
	pendingSub := f.referredSubscription(t, &a.ID, 21999, subscriptiondomain.SubscriptionStatusActive)
	_, err := f.svc.CreatePendingSale(ctx, pendingSub.ID)
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&domain.Affiliate{}).Where("id = ?", a.ID).Update("negative_balance", decimal.NewFromInt(2000)).Error)

	summary, err := f.svc.Summary(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, summary.ApprovedUnpaid.Equal(decimal.NewFromInt(7500)), summary.ApprovedUnpaid.String())
	assert.True(t, summary.Payable.Equal(decimal.NewFromInt(5500)))
	assert.Equal(t, int64(1), summary.PendingCount)
	assert.Equal(t, int64(3), summary.Referrals)

	_, err = f.svc.Summary(ctx, 31337)
	assert.ErrorIs(t, err, domain.ErrAffiliateNotFound)
}

func TestRefCodePrefix(t *testing.T) {
	assert.Equal(t, "MARIAL", refCodePrefix("María López"))
	assert.Equal(t, "CAFE", refCodePrefix("café"))
	assert.Equal(t, "AFI", refCodePrefix(""))
	assert.Equal(t, "AFI", refCodePrefix("!!!"))
}

func TestToggleActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t, "0.25")

	got, err := f.svc.ToggleActive(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.False(t, f.reload(t, a.ID).IsActive)

	// inactive affiliates earn nothing on new sales
	sub := f.referredSubscription(t, &a.ID, 12999, subscriptiondomain.SubscriptionStatusActive)
	sale, err := f.svc.CreatePendingSale(ctx, sub.ID)
	require.NoError(t, err)
	assert.Nil(t, sale)

	got, err = f.svc.ToggleActive(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	_, err = f.svc.ToggleActive(ctx, f.node.Generate())
	assert.ErrorIs(t, err, domain.ErrAffiliateNotFound)
}

func TestListAffiliatesCountsReferrals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	busy := f.affiliate(t, "0.25")
	idle := f.affiliate(t, "0.30")
	f.referredSubscription(t, &busy.ID, 12999, subscriptiondomain.SubscriptionStatusActive)
	f.referredSubscription(t, &busy.ID, 12999, subscriptiondomain.SubscriptionStatusCanceled)

	items, err := f.svc.ListAffiliates(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)

	counts := map[snowflake.ID]int64{}
	for _, item := range items {
		counts[item.ID] = item.ReferralsCount
	}
	assert.Equal(t, int64(2), counts[busy.ID])
	assert.Equal(t, int64(0), counts[idle.ID])
	assert.Equal(t, idle.ID, items[0].ID)
}

func TestReviewQueueFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t, "0.25")
	approved := f.approvedSale(t, a, 12999)
	sub := f.referredSubscription(t, &a.ID, 9999, subscriptiondomain.SubscriptionStatusActive)
	pending, err := f.svc.CreatePendingSale(ctx, sub.ID)
	require.NoError(t, err)

	sales, err := f.svc.ReviewQueue(ctx, "")
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, pending.ID, sales[0].ID)
	assert.Equal(t, a.RefCode, sales[0].RefCode)
	assert.Equal(t, "Cafe Central", sales[0].BusinessName)

	sales, err = f.svc.ReviewQueue(ctx, "approved")
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, approved.ID, sales[0].ID)
	assert.Equal(t, domain.SaleStatusApproved, sales[0].Status)

	sales, err = f.svc.ReviewQueue(ctx, "ALL")
	require.NoError(t, err)
	assert.Len(t, sales, 2)

	_, err = f.svc.ReviewQueue(ctx, "SETTLED")
	assert.ErrorIs(t, err, domain.ErrInvalidSaleStatus)
}
