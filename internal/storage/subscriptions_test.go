package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosttiik/subscription-notifier/internal/models"
)

func TestStorage_CreateSubscription(t *testing.T) {
	db, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	sub := newTestSubscription("sub_1", "user@example.com", models.SubscriptionTypeAll)
	err := db.CreateSubscription(ctx, sub)
	require.NoError(t, err)

	got, err := db.GetActiveSubscription(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", got.ID)
	assert.Equal(t, "user@example.com", got.Email)
	assert.Equal(t, models.SubscriptionTypeAll, got.Type)
	assert.Equal(t, models.SubscriptionStatusActive, got.Status)
	assert.Equal(t, "token-sub_1", got.UnsubscribeToken)
	assert.Empty(t, got.SelectedServices)
	assert.Nil(t, got.UnsubscribedAt)
	assert.Nil(t, got.ResubscribedAt)

	// Вторая активная подписка на тот же email упирается в частичный
	// уникальный индекс
	dup := newTestSubscription("sub_2", "user@example.com", models.SubscriptionTypeAll)
	err = db.CreateSubscription(ctx, dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubscriptionExists))

	// Но после отписки новая запись на тот же email проходит
	err = db.UnsubscribeByToken(ctx, "user@example.com", "token-sub_1")
	require.NoError(t, err)
	err = db.CreateSubscription(ctx, dup)
	require.NoError(t, err)
}

func TestStorage_CreateSubscription_FilteredSelection(t *testing.T) {
	db, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	sub := newTestSubscription("sub_f1", "filtered@example.com", models.SubscriptionTypeFiltered)
	sub.SelectedServices = []string{"Compute", "Storage"}
	sub.SelectedRegions = []string{"eu-west"}
	require.NoError(t, db.CreateSubscription(ctx, sub))

	got, err := db.GetActiveSubscription(ctx, "filtered@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionTypeFiltered, got.Type)
	assert.Equal(t, []string{"Compute", "Storage"}, got.SelectedServices)
	assert.Equal(t, []string{"eu-west"}, got.SelectedRegions)
}

func TestStorage_GetActiveSubscription_NotFound(t *testing.T) {
	db, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	_, err := db.GetActiveSubscription(ctx, "nobody@example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubscriptionNotFound))
}

func TestStorage_GetActiveSubscriptionByToken(t *testing.T) {
	db, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	sub := newTestSubscription("sub_t1", "token@example.com", models.SubscriptionTypeAll)
	require.NoError(t, db.CreateSubscription(ctx, sub))

	got, err := db.GetActiveSubscriptionByToken(ctx, "token@example.com", "token-sub_t1")
	require.NoError(t, err)
	assert.Equal(t, "sub_t1", got.ID)

	// Неверный токен неотличим от отсутствующей подписки
	_, err = db.GetActiveSubscriptionByToken(ctx, "token@example.com", "wrong-token")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubscriptionNotFound))
}

func TestStorage_UnsubscribeByToken(t *testing.T) {
	db, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	sub := newTestSubscription("sub_u1", "bye@example.com", models.SubscriptionTypeAll)
	require.NoError(t, db.CreateSubscription(ctx, sub))

	// Неверный токен не меняет состояние
	err := db.UnsubscribeByToken(ctx, "bye@example.com", "wrong-token")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubscriptionNotFound))
	_, err = db.GetActiveSubscription(ctx, "bye@example.com")
	require.NoError(t, err)

	err = db.UnsubscribeByToken(ctx, "bye@example.com", "token-sub_u1")
	require.NoError(t, err)

	_, err = db.GetActiveSubscription(ctx, "bye@example.com")
	assert.True(t, errors.Is(err, ErrSubscriptionNotFound))

	var status, method string
	var unsubscribedAt time.Time
	err = db.DB.QueryRow(`SELECT status, unsubscribe_method, unsubscribed_at
		FROM subscriptions WHERE id = $1`, "sub_u1").Scan(&status, &method, &unsubscribedAt)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusUnsubscribed, status)
	assert.Equal(t, models.UnsubscribeMethodToken, method)
	assert.False(t, unsubscribedAt.IsZero())

	// Повторная отписка уже неактивной записи — тоже нулевой результат
	err = db.UnsubscribeByToken(ctx, "bye@example.com", "token-sub_u1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubscriptionNotFound))
}

func TestStorage_ReactivateSubscription(t *testing.T) {
	db, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	user, err := db.CreateUser(ctx, "back@example.com", "hash")
	require.NoError(t, err)

	sub := newTestSubscription("sub_r1", "back@example.com", models.SubscriptionTypeAll)
	require.NoError(t, db.CreateSubscription(ctx, sub))
	require.NoError(t, db.UnsubscribeByToken(ctx, "back@example.com", "token-sub_r1"))

	got, err := db.ReactivateSubscription(ctx, "back@example.com",
		models.SubscriptionTypeFiltered, []string{"Compute"}, []string{"eu-west"}, &user.UID)
	require.NoError(t, err)

	// ID и постоянный токен переживают цикл отписки
	assert.Equal(t, "sub_r1", got.ID)
	assert.Equal(t, "token-sub_r1", got.UnsubscribeToken)
	assert.Equal(t, models.SubscriptionStatusActive, got.Status)
	assert.Equal(t, models.SubscriptionTypeFiltered, got.Type)
	assert.Equal(t, []string{"Compute"}, got.SelectedServices)
	assert.Equal(t, []string{"eu-west"}, got.SelectedRegions)
	require.NotNil(t, got.UserUID)
	assert.Equal(t, user.UID, *got.UserUID)
	assert.Nil(t, got.UnsubscribedAt)
	assert.Nil(t, got.UnsubscribeMethod)
	require.NotNil(t, got.ResubscribedAt)
	assert.WithinDuration(t, time.Now(), *got.ResubscribedAt, time.Minute)

	// Активную запись реактивировать нельзя
	_, err = db.ReactivateSubscription(ctx, "back@example.com",
		models.SubscriptionTypeAll, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubscriptionNotFound))

	// Как и несуществующий email
	_, err = db.ReactivateSubscription(ctx, "nobody@example.com",
		models.SubscriptionTypeAll, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubscriptionNotFound))
}

func TestStorage_VerificationFlow(t *testing.T) {
	db, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	sub := newTestSubscription("sub_v1", "verify@example.com", models.SubscriptionTypeAll)
	require.NoError(t, db.CreateSubscription(ctx, sub))

	expiresAt := time.Now().UTC().Add(15 * time.Minute)
	err := db.SetVerificationToken(ctx, "verify@example.com", "verify-token", expiresAt)
	require.NoError(t, err)

	got, err := db.GetSubscriptionByVerification(ctx, "verify@example.com", "verify-token")
	require.NoError(t, err)
	assert.Equal(t, "sub_v1", got.ID)
	require.NotNil(t, got.VerificationToken)
	assert.Equal(t, "verify-token", *got.VerificationToken)
	require.NotNil(t, got.VerificationExpiresAt)
	assert.WithinDuration(t, expiresAt, *got.VerificationExpiresAt, time.Second)

	// Повторный запрос перезаписывает незавершённый токен
	err = db.SetVerificationToken(ctx, "verify@example.com", "verify-token-2", expiresAt)
	require.NoError(t, err)
	_, err = db.GetSubscriptionByVerification(ctx, "verify@example.com", "verify-token")
	assert.True(t, errors.Is(err, ErrSubscriptionNotFound))

	err = db.UnsubscribeVerified(ctx, "verify@example.com", "verify-token-2")
	require.NoError(t, err)

	var status, method string
	var verificationToken *string
	err = db.DB.QueryRow(`SELECT status, unsubscribe_method, verification_token
		FROM subscriptions WHERE id = $1`, "sub_v1").Scan(&status, &method, &verificationToken)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusUnsubscribed, status)
	assert.Equal(t, models.UnsubscribeMethodVerification, method)
	assert.Nil(t, verificationToken)

	// Без активной подписки токен не выдаётся
	err = db.SetVerificationToken(ctx, "verify@example.com", "verify-token-3", expiresAt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubscriptionNotFound))
}

func TestStorage_UnsubscribeVerified_WrongToken(t *testing.T) {
	db, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	sub := newTestSubscription("sub_v2", "strict@example.com", models.SubscriptionTypeAll)
	require.NoError(t, db.CreateSubscription(ctx, sub))
	require.NoError(t, db.SetVerificationToken(ctx, "strict@example.com", "real-token",
		time.Now().UTC().Add(15*time.Minute)))

	err := db.UnsubscribeVerified(ctx, "strict@example.com", "fake-token")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubscriptionNotFound))

	_, err = db.GetActiveSubscription(ctx, "strict@example.com")
	require.NoError(t, err)
}

func TestStorage_ListActiveSubscriptions(t *testing.T) {
	db, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	first := newTestSubscription("sub_l1", "one@example.com", models.SubscriptionTypeAll)
	second := newTestSubscription("sub_l2", "two@example.com", models.SubscriptionTypeFiltered)
	gone := newTestSubscription("sub_l3", "three@example.com", models.SubscriptionTypeAll)
	require.NoError(t, db.CreateSubscription(ctx, first))
	require.NoError(t, db.CreateSubscription(ctx, second))
	require.NoError(t, db.CreateSubscription(ctx, gone))
	require.NoError(t, db.UnsubscribeByToken(ctx, "three@example.com", "token-sub_l3"))

	subs, err := db.ListActiveSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 2)

	emails := []string{subs[0].Email, subs[1].Email}
	assert.ElementsMatch(t, []string{"one@example.com", "two@example.com"}, emails)
}

func TestStorage_SubscriptionStatistics(t *testing.T) {
	db, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, db.CreateSubscription(ctx,
		newTestSubscription("sub_s1", "a@example.com", models.SubscriptionTypeAll)))
	require.NoError(t, db.CreateSubscription(ctx,
		newTestSubscription("sub_s2", "b@example.com", models.SubscriptionTypeFiltered)))
	require.NoError(t, db.CreateSubscription(ctx,
		newTestSubscription("sub_s3", "c@example.com", models.SubscriptionTypeAll)))
	require.NoError(t, db.UnsubscribeByToken(ctx, "c@example.com", "token-sub_s3"))

	stats, err := db.SubscriptionStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 1, stats.Unsubscribed)
	assert.Equal(t, 1, stats.AllSubscribers)
	assert.Equal(t, 1, stats.FilteredSubscribers)
}
