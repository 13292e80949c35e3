package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/tablerewards-backend/pkg/db/dbtest"
	"github.com/angelmondragon/tablerewards-backend/pkg/db/models"
	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedUser(t *testing.T, repo *Repository) *models.User {
	t.Helper()
	trialEnds := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	user := &models.User{
		ID:          uuid.New(),
		Email:       uuid.NewString() + "@example.com",
		Name:        "Diner",
		Role:        enums.UserRoleUser,
		Membership:  enums.MembershipFree,
		TrialEndsAt: &trialEnds,
	}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func TestUpdateBillingProfile(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	user := seedUser(t, repo)
	planID := uuid.New()

	require.NoError(t, repo.UpdateBillingProfile(ctx, user.ID, BillingProfile{
		StripeCustomerID:       "cus_1",
		DefaultPaymentMethodID: "pm_1",
		CurrentPlanID:          planID,
		SubscriptionStatus:     enums.SubscriptionStatusPending,
	}))

	got, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StripeCustomerID)
	assert.Equal(t, "cus_1", *got.StripeCustomerID)
	require.NotNil(t, got.DefaultPaymentMethodID)
	assert.Equal(t, "pm_1", *got.DefaultPaymentMethodID)
	require.NotNil(t, got.CurrentPlanID)
	assert.Equal(t, planID, *got.CurrentPlanID)
	require.NotNil(t, got.SubscriptionStatus)
	assert.Equal(t, enums.SubscriptionStatusPending, *got.SubscriptionStatus)
	assert.Equal(t, enums.MembershipFree, got.Membership)
}

func TestPromoteToVIPClearsTrial(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	user := seedUser(t, repo)

	require.NoError(t, repo.PromoteToVIP(ctx, user.ID, uuid.New()))

	got, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MembershipVIP, got.Membership)
	require.NotNil(t, got.SubscriptionStatus)
	assert.Equal(t, enums.SubscriptionStatusActive, *got.SubscriptionStatus)
	assert.Nil(t, got.TrialEndsAt)
}

func TestDowngradeToFree(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	user := seedUser(t, repo)
	require.NoError(t, repo.PromoteToVIP(ctx, user.ID, uuid.New()))

	require.NoError(t, repo.DowngradeToFree(ctx, user.ID))

	got, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MembershipFree, got.Membership)
	require.NotNil(t, got.SubscriptionStatus)
	assert.Equal(t, enums.SubscriptionStatusCanceled, *got.SubscriptionStatus)
}

func TestUpdatesOnMissingUserReturnNotFound(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))

	err := repo.DowngradeToFree(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	_, err = repo.FindByID(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}
