package billing

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/tablerewards-backend/pkg/db/dbtest"
	"github.com/angelmondragon/tablerewards-backend/pkg/db/models"
	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(v string) *string { return &v }

func seedSubscription(t *testing.T, repo Repository, sub models.UserSubscription) models.UserSubscription {
	t.Helper()
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.Status == "" {
		sub.Status = enums.SubscriptionStatusPending
	}
	require.NoError(t, repo.CreateSubscription(context.Background(), &sub))
	return sub
}

func TestUnlinkDuplicateSubscriptionsCancelsOtherRows(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	userID := uuid.New()
	planID := uuid.New()

	stale := seedSubscription(t, repo, models.UserSubscription{
		UserID:               userID,
		PlanID:               planID,
		StripeSubscriptionID: strPtr("sub_123"),
		Status:               enums.SubscriptionStatusActive,
	})
	keep := seedSubscription(t, repo, models.UserSubscription{UserID: userID, PlanID: planID})

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	n, err := repo.UnlinkDuplicateSubscriptions(ctx, "sub_123", keep.ID, at)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.FindSubscriptionByID(ctx, stale.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, enums.SubscriptionStatusCanceled, got.Status)
	assert.Nil(t, got.StripeSubscriptionID)
	require.NotNil(t, got.CanceledAt)
	assert.True(t, got.CanceledAt.Equal(at))

	n, err = repo.UnlinkDuplicateSubscriptions(ctx, "", keep.ID, at)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUnlinkDuplicateSubscriptionsKeepsOwnRow(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))

	keep := seedSubscription(t, repo, models.UserSubscription{
		UserID:               uuid.New(),
		PlanID:               uuid.New(),
		StripeSubscriptionID: strPtr("sub_self"),
	})

	n, err := repo.UnlinkDuplicateSubscriptions(ctx, "sub_self", keep.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := repo.FindSubscriptionByStripeID(ctx, "sub_self")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, keep.ID, got.ID)
}

func TestFindersReturnNilWhenMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))

	sub, err := repo.FindSubscriptionBySetupIntentID(ctx, "seti_missing")
	require.NoError(t, err)
	assert.Nil(t, sub)

	sub, err = repo.FindSubscriptionByStripeID(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, sub)

	plan, err := repo.FindPlanByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestFindLatestOpenSubscription(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	userID := uuid.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	seedSubscription(t, repo, models.UserSubscription{UserID: userID, PlanID: uuid.New(), Status: enums.SubscriptionStatusActive, CreatedAt: base})
	latestOpen := seedSubscription(t, repo, models.UserSubscription{UserID: userID, PlanID: uuid.New(), Status: enums.SubscriptionStatusPending, CreatedAt: base.Add(time.Hour)})
	seedSubscription(t, repo, models.UserSubscription{UserID: userID, PlanID: uuid.New(), Status: enums.SubscriptionStatusFailed, CreatedAt: base.Add(2 * time.Hour)})

	got, err := repo.FindLatestOpenSubscription(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, latestOpen.ID, got.ID)

	none, err := repo.FindLatestOpenSubscription(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestFindLatestSubscriptionByStatusLooksPastNewerPending(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	userID := uuid.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	active := seedSubscription(t, repo, models.UserSubscription{UserID: userID, PlanID: uuid.New(), Status: enums.SubscriptionStatusActive, CreatedAt: base})
	seedSubscription(t, repo, models.UserSubscription{UserID: userID, PlanID: uuid.New(), Status: enums.SubscriptionStatusPending, CreatedAt: base.Add(time.Hour)})

	got, err := repo.FindLatestSubscriptionByStatus(ctx, userID, enums.SubscriptionStatusActive)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, active.ID, got.ID)

	none, err := repo.FindLatestSubscriptionByStatus(ctx, userID, enums.SubscriptionStatusFailed)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestFindSubscriptionByUserAndPlanPrefersNewest(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	userID, planID := uuid.New(), uuid.New()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	seedSubscription(t, repo, models.UserSubscription{UserID: userID, PlanID: planID, Status: enums.SubscriptionStatusFailed, CreatedAt: base})
	newest := seedSubscription(t, repo, models.UserSubscription{UserID: userID, PlanID: planID, CreatedAt: base.Add(time.Minute)})

	got, err := repo.FindSubscriptionByUserAndPlan(ctx, userID, planID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newest.ID, got.ID)
}

func TestListStalePendingSubscriptions(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	stale := seedSubscription(t, repo, models.UserSubscription{UserID: uuid.New(), PlanID: uuid.New(), CreatedAt: now.Add(-48 * time.Hour)})
	seedSubscription(t, repo, models.UserSubscription{UserID: uuid.New(), PlanID: uuid.New(), CreatedAt: now.Add(-time.Hour)})
	seedSubscription(t, repo, models.UserSubscription{
		UserID:               uuid.New(),
		PlanID:               uuid.New(),
		StripeSubscriptionID: strPtr("sub_linked"),
		CreatedAt:            now.Add(-72 * time.Hour),
	})

	subs, err := repo.ListStalePendingSubscriptions(ctx, now.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, stale.ID, subs[0].ID)
}

func TestInvoiceLedgerIsUniquePerProviderInvoice(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	userID := uuid.New()

	exists, err := repo.InvoiceExists(ctx, "in_1")
	require.NoError(t, err)
	assert.False(t, exists)

	invoice := models.Invoice{
		ID:                 uuid.New(),
		UserID:             userID,
		UserSubscriptionID: uuid.New(),
		StripeInvoiceID:    "in_1",
		AmountPaid:         999,
		Currency:           "usd",
		Status:             enums.InvoiceStatusPaid,
		PaidAt:             time.Now().UTC(),
	}
	require.NoError(t, repo.CreateInvoice(ctx, &invoice))

	exists, err = repo.InvoiceExists(ctx, "in_1")
	require.NoError(t, err)
	assert.True(t, exists)

	dup := invoice
	dup.ID = uuid.New()
	assert.Error(t, repo.CreateInvoice(ctx, &dup))
}

func TestListInvoicesPaginates(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	userID := uuid.New()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.CreateInvoice(ctx, &models.Invoice{
			ID:                 uuid.New(),
			UserID:             userID,
			UserSubscriptionID: uuid.New(),
			StripeInvoiceID:    uuid.NewString(),
			AmountPaid:         int64(100 * (i + 1)),
			Currency:           "usd",
			Status:             enums.InvoiceStatusPaid,
			PaidAt:             base,
			CreatedAt:          base.Add(time.Duration(i) * time.Hour),
		}))
	}

	first, cursor, err := repo.ListInvoices(ctx, ListInvoicesQuery{UserID: userID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotNil(t, cursor)
	assert.Equal(t, int64(300), first[0].AmountPaid)
	assert.Equal(t, int64(200), first[1].AmountPaid)

	second, next, err := repo.ListInvoices(ctx, ListInvoicesQuery{UserID: userID, Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Nil(t, next)
	assert.Equal(t, int64(100), second[0].AmountPaid)
}

func TestWithTxRollsBackRepositoryWrites(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	repo := NewRepository(db)

	tx := db.Begin()
	require.NoError(t, tx.Error)
	sub := seedSubscription(t, repo.WithTx(tx), models.UserSubscription{UserID: uuid.New(), PlanID: uuid.New()})
	require.NoError(t, tx.Rollback().Error)

	got, err := repo.FindSubscriptionByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
