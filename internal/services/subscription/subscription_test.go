package subscription

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kosttiik/subscription-notifier/internal/models"
	"github.com/kosttiik/subscription-notifier/internal/storage"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) CreateSubscription(ctx context.Context, sub models.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *RepoMock) GetActiveSubscription(ctx context.Context, email string) (*models.Subscription, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) GetActiveSubscriptionByToken(ctx context.Context, email, token string) (*models.Subscription, error) {
	args := m.Called(ctx, email, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) GetSubscriptionByVerification(ctx context.Context, email, verificationToken string) (*models.Subscription, error) {
	args := m.Called(ctx, email, verificationToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) ReactivateSubscription(ctx context.Context, email, subType string, services, regions []string, userUID *string) (*models.Subscription, error) {
	args := m.Called(ctx, email, subType, services, regions, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) UnsubscribeByToken(ctx context.Context, email, token string) error {
	return m.Called(ctx, email, token).Error(0)
}

func (m *RepoMock) SetVerificationToken(ctx context.Context, email, verificationToken string, expiresAt time.Time) error {
	return m.Called(ctx, email, verificationToken, expiresAt).Error(0)
}

func (m *RepoMock) UnsubscribeVerified(ctx context.Context, email, verificationToken string) error {
	return m.Called(ctx, email, verificationToken).Error(0)
}

func (m *RepoMock) SubscriptionStatistics(ctx context.Context) (*models.SubscriptionStatistics, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SubscriptionStatistics), args.Error(1)
}

type PlansMock struct{ mock.Mock }

func (m *PlansMock) ResolvePlan(ctx context.Context, email string) (models.Plan, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(models.Plan), args.Error(1)
}

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) Publish(message any) error {
	return m.Called(message).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func newTestService(repo *RepoMock, plans *PlansMock, pub *PublisherMock) *Service {
	return New(repo, plans, pub, newNoopLogger())
}

func allRequest() models.DummySubscription {
	return models.DummySubscription{
		Email:            "user@example.com",
		SubscriptionType: models.SubscriptionTypeAll,
	}
}

func filteredRequest() models.DummySubscription {
	return models.DummySubscription{
		Email:            "user@example.com",
		SubscriptionType: models.SubscriptionTypeFiltered,
		SelectedServices: []string{"Storage"},
	}
}

func TestCreateOrReactivate_NewSubscription(t *testing.T) {
	repo := new(RepoMock)
	plans := new(PlansMock)
	pub := new(PublisherMock)
	svc := newTestService(repo, plans, pub)

	repo.On("GetActiveSubscription", mock.Anything, "user@example.com").
		Return(nil, storage.ErrSubscriptionNotFound).Once()
	repo.On("ReactivateSubscription", mock.Anything, "user@example.com", models.SubscriptionTypeAll,
		mock.Anything, mock.Anything, (*string)(nil)).
		Return(nil, storage.ErrSubscriptionNotFound).Once()
	repo.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(sub models.Subscription) bool {
		return sub.Email == "user@example.com" &&
			sub.Status == models.SubscriptionStatusActive &&
			sub.Type == models.SubscriptionTypeAll &&
			sub.ID != "" && sub.UnsubscribeToken != ""
	})).Return(nil).Once()
	pub.On("Publish", mock.MatchedBy(func(msg any) bool {
		job, ok := msg.(models.EmailJob)
		return ok && job.Kind == models.EmailKindConfirmation && job.Email == "user@example.com"
	})).Return(nil).Once()

	summary, err := svc.CreateOrReactivate(context.Background(), allRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", summary.Email)
	assert.NotEmpty(t, summary.ID)
	assert.NotEmpty(t, summary.UnsubscribeToken)
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestCreateOrReactivate_DuplicateActive(t *testing.T) {
	repo := new(RepoMock)
	svc := newTestService(repo, new(PlansMock), new(PublisherMock))

	repo.On("GetActiveSubscription", mock.Anything, "user@example.com").
		Return(&models.Subscription{ID: "sub_1", Email: "user@example.com"}, nil).Once()

	_, err := svc.CreateOrReactivate(context.Background(), allRequest(), nil)
	assert.ErrorIs(t, err, ErrAlreadySubscribed)
}

// Реактивация сохраняет ID и постоянный токен прежней записи.
func TestCreateOrReactivate_ReactivatesInPlace(t *testing.T) {
	repo := new(RepoMock)
	pub := new(PublisherMock)
	svc := newTestService(repo, new(PlansMock), pub)

	existing := &models.Subscription{
		ID:               "sub_0123456789abcdef",
		Email:            "user@example.com",
		Type:             models.SubscriptionTypeAll,
		Status:           models.SubscriptionStatusActive,
		UnsubscribeToken: "original-permanent-token",
		UpdatedAt:        time.Now().UTC(),
	}

	repo.On("GetActiveSubscription", mock.Anything, "user@example.com").
		Return(nil, storage.ErrSubscriptionNotFound).Once()
	repo.On("ReactivateSubscription", mock.Anything, "user@example.com", models.SubscriptionTypeAll,
		mock.Anything, mock.Anything, (*string)(nil)).
		Return(existing, nil).Once()
	pub.On("Publish", mock.Anything).Return(nil).Once()

	summary, err := svc.CreateOrReactivate(context.Background(), allRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, "sub_0123456789abcdef", summary.ID)
	assert.Equal(t, "original-permanent-token", summary.UnsubscribeToken)
	repo.AssertNotCalled(t, "CreateSubscription", mock.Anything, mock.Anything)
}

func TestCreateOrReactivate_FilteredGating(t *testing.T) {
	uid := "uid-1"
	tests := []struct {
		name     string
		identity *Identity
		plan     models.Plan
		wantErr  error
	}{
		{
			name:     "no auth",
			identity: nil,
			wantErr:  ErrAuthRequired,
		},
		{
			name:     "email mismatch",
			identity: &Identity{UserUID: uid, Email: "other@example.com"},
			wantErr:  ErrEmailMismatch,
		},
		{
			name:     "free plan",
			identity: &Identity{UserUID: uid, Email: "user@example.com"},
			plan:     models.Plan{Plan: models.PlanFree, PlanStatus: models.PlanStatusInactive},
			wantErr:  ErrPremiumRequired,
		},
		{
			name:     "premium but inactive",
			identity: &Identity{UserUID: uid, Email: "user@example.com"},
			plan:     models.Plan{Plan: models.PlanPremium, PlanStatus: models.PlanStatusInactive},
			wantErr:  ErrPremiumRequired,
		},
		{
			name:     "missing user id",
			identity: &Identity{UserUID: "", Email: "user@example.com"},
			plan:     models.Plan{Plan: models.PlanPremium, PlanStatus: models.PlanStatusActive},
			wantErr:  ErrMissingUserID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			plans := new(PlansMock)
			svc := newTestService(repo, plans, new(PublisherMock))

			repo.On("GetActiveSubscription", mock.Anything, "user@example.com").
				Return(nil, storage.ErrSubscriptionNotFound).Once()
			plans.On("ResolvePlan", mock.Anything, "user@example.com").
				Return(tt.plan, nil).Maybe()

			_, err := svc.CreateOrReactivate(context.Background(), filteredRequest(), tt.identity)
			assert.ErrorIs(t, err, tt.wantErr)
			// проверки выполняются до любой записи
			repo.AssertNotCalled(t, "CreateSubscription", mock.Anything, mock.Anything)
			repo.AssertNotCalled(t, "ReactivateSubscription",
				mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCreateOrReactivate_FilteredWithPremium(t *testing.T) {
	repo := new(RepoMock)
	plans := new(PlansMock)
	pub := new(PublisherMock)
	svc := newTestService(repo, plans, pub)

	uid := "uid-1"
	repo.On("GetActiveSubscription", mock.Anything, "user@example.com").
		Return(nil, storage.ErrSubscriptionNotFound).Once()
	plans.On("ResolvePlan", mock.Anything, "user@example.com").
		Return(models.Plan{Plan: models.PlanPremium, PlanStatus: models.PlanStatusActive}, nil).Once()
	repo.On("ReactivateSubscription", mock.Anything, "user@example.com", models.SubscriptionTypeFiltered,
		[]string{"Storage"}, mock.Anything, &uid).
		Return(nil, storage.ErrSubscriptionNotFound).Once()
	repo.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(sub models.Subscription) bool {
		return sub.Type == models.SubscriptionTypeFiltered && sub.UserUID != nil && *sub.UserUID == uid
	})).Return(nil).Once()
	pub.On("Publish", mock.Anything).Return(nil).Once()

	_, err := svc.CreateOrReactivate(context.Background(), filteredRequest(),
		&Identity{UserUID: uid, Email: "user@example.com"})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestCreateOrReactivate_PublishFailureDoesNotFail(t *testing.T) {
	repo := new(RepoMock)
	pub := new(PublisherMock)
	svc := newTestService(repo, new(PlansMock), pub)

	repo.On("GetActiveSubscription", mock.Anything, mock.Anything).
		Return(nil, storage.ErrSubscriptionNotFound).Once()
	repo.On("ReactivateSubscription", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything).
		Return(nil, storage.ErrSubscriptionNotFound).Once()
	repo.On("CreateSubscription", mock.Anything, mock.Anything).Return(nil).Once()
	pub.On("Publish", mock.Anything).Return(assert.AnError).Once()

	_, err := svc.CreateOrReactivate(context.Background(), allRequest(), nil)
	assert.NoError(t, err)
}

func TestUnsubscribeByToken(t *testing.T) {
	repo := new(RepoMock)
	svc := newTestService(repo, new(PlansMock), new(PublisherMock))

	repo.On("UnsubscribeByToken", mock.Anything, "user@example.com", "good-token").
		Return(nil).Once()
	repo.On("UnsubscribeByToken", mock.Anything, "user@example.com", "bad-token").
		Return(storage.ErrSubscriptionNotFound).Once()

	assert.NoError(t, svc.UnsubscribeByToken(context.Background(), "User@Example.com", "good-token"))
	assert.ErrorIs(t, svc.UnsubscribeByToken(context.Background(), "user@example.com", "bad-token"), ErrNotFound)
}

func TestStartVerification(t *testing.T) {
	repo := new(RepoMock)
	pub := new(PublisherMock)
	svc := newTestService(repo, new(PlansMock), pub)

	repo.On("SetVerificationToken", mock.Anything, "user@example.com", mock.Anything, mock.Anything).
		Return(nil).Once()
	pub.On("Publish", mock.MatchedBy(func(msg any) bool {
		job, ok := msg.(models.EmailJob)
		return ok && job.Kind == models.EmailKindVerification &&
			job.ExpiryMinutes == 15 && job.VerificationToken != ""
	})).Return(nil).Once()

	minutes, err := svc.StartVerification(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, 15, minutes)
	pub.AssertExpectations(t)
}

func TestStartVerification_NoActiveSubscription(t *testing.T) {
	repo := new(RepoMock)
	svc := newTestService(repo, new(PlansMock), new(PublisherMock))

	repo.On("SetVerificationToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storage.ErrSubscriptionNotFound).Once()

	_, err := svc.StartVerification(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyAndUnsubscribe_Expired(t *testing.T) {
	repo := new(RepoMock)
	svc := newTestService(repo, new(PlansMock), new(PublisherMock))

	expired := time.Now().UTC().Add(-time.Minute)
	repo.On("GetSubscriptionByVerification", mock.Anything, "user@example.com", "stale-token").
		Return(&models.Subscription{
			ID:                    "sub_1",
			Email:                 "user@example.com",
			Status:                models.SubscriptionStatusActive,
			VerificationExpiresAt: &expired,
		}, nil).Once()

	err := svc.VerifyAndUnsubscribe(context.Background(), "user@example.com", "stale-token")
	assert.ErrorIs(t, err, ErrVerificationExpired)
	// подписка остается активной
	repo.AssertNotCalled(t, "UnsubscribeVerified", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyAndUnsubscribe_InvalidVsValid(t *testing.T) {
	repo := new(RepoMock)
	svc := newTestService(repo, new(PlansMock), new(PublisherMock))

	repo.On("GetSubscriptionByVerification", mock.Anything, "user@example.com", "unknown-token").
		Return(nil, storage.ErrSubscriptionNotFound).Once()

	err := svc.VerifyAndUnsubscribe(context.Background(), "user@example.com", "unknown-token")
	assert.ErrorIs(t, err, ErrVerificationInvalid)

	valid := time.Now().UTC().Add(10 * time.Minute)
	repo.On("GetSubscriptionByVerification", mock.Anything, "user@example.com", "fresh-token").
		Return(&models.Subscription{
			ID:                    "sub_1",
			Email:                 "user@example.com",
			VerificationExpiresAt: &valid,
		}, nil).Once()
	repo.On("UnsubscribeVerified", mock.Anything, "user@example.com", "fresh-token").
		Return(nil).Once()

	assert.NoError(t, svc.VerifyAndUnsubscribe(context.Background(), "user@example.com", "fresh-token"))
	repo.AssertExpectations(t)
}

func TestStatistics(t *testing.T) {
	repo := new(RepoMock)
	svc := newTestService(repo, new(PlansMock), new(PublisherMock))

	repo.On("SubscriptionStatistics", mock.Anything).
		Return(&models.SubscriptionStatistics{
			Total:          10,
			Active:         7,
			Unsubscribed:   3,
			AllSubscribers: 5,
		}, nil).Once()

	stats, err := svc.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Active)
	assert.Equal(t, 10, stats.Total)
}
