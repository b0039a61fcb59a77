package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMessage(t *testing.T, repo *MessageRepository, merchantID int64, status model.MessageStatus) *model.Message {
	t.Helper()
	msg, err := repo.Create(context.Background(), &model.Message{
		ID:          uuid.NewString(),
		MerchantID:  merchantID,
		ChannelID:   1,
		Destination: "+14155550100",
		CountryCode: "US",
		MessageType: model.MessageTypeSMS,
		Content:     "hello",
		Segments:    1,
		Encoding:    model.EncodingGSM7,
		Cost:        decimal.RequireFromString("0.05"),
		Currency:    "USD",
		Status:      status,
	})
	require.NoError(t, err)
	return msg
}

func TestMessageRepository_Create(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMessageRepository(db)

	msg := seedMessage(t, repo, 1, model.MessageStatusQueued)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, model.MessageStatusQueued, msg.Status)
	assert.NotZero(t, msg.CreatedAt)
}

func TestMessageRepository_MarkSent(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMessageRepository(db)
	ctx := context.Background()

	t.Run("queued message transitions to sent", func(t *testing.T) {
		msg := seedMessage(t, repo, 1, model.MessageStatusQueued)

		ok, err := repo.MarkSent(ctx, msg.ID, "prov-123", time.Now())
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, model.MessageStatusSent, got.Status)
		assert.Equal(t, "prov-123", got.ExternalID)
		assert.NotNil(t, got.SentAt)
	})

	t.Run("cancelled message is left untouched", func(t *testing.T) {
		msg := seedMessage(t, repo, 1, model.MessageStatusCancelled)

		ok, err := repo.MarkSent(ctx, msg.ID, "prov-456", time.Now())
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, model.MessageStatusCancelled, got.Status)
		assert.Empty(t, got.ExternalID)
	})
}

func TestMessageRepository_TransitionStatus(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMessageRepository(db)
	ctx := context.Background()

	t.Run("sent to delivered", func(t *testing.T) {
		msg := seedMessage(t, repo, 1, model.MessageStatusSent)
		now := time.Now()

		ok, err := repo.TransitionStatus(ctx, msg.ID,
			[]model.MessageStatus{model.MessageStatusSent},
			model.MessageStatusDelivered,
			map[string]interface{}{"delivered_at": now})
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, model.MessageStatusDelivered, got.Status)
		assert.NotNil(t, got.DeliveredAt)
	})

	t.Run("duplicate transition is a no-op", func(t *testing.T) {
		msg := seedMessage(t, repo, 1, model.MessageStatusDelivered)

		ok, err := repo.TransitionStatus(ctx, msg.ID,
			[]model.MessageStatus{model.MessageStatusSent},
			model.MessageStatusDelivered, nil)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("terminal failure records error fields", func(t *testing.T) {
		msg := seedMessage(t, repo, 1, model.MessageStatusSent)

		ok, err := repo.TransitionStatus(ctx, msg.ID,
			[]model.MessageStatus{model.MessageStatusQueued, model.MessageStatusSent},
			model.MessageStatusFailed,
			map[string]interface{}{
				"error_code":    "30008",
				"error_message": "unknown destination",
			})
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, model.MessageStatusFailed, got.Status)
		assert.Equal(t, "30008", got.ErrorCode)
	})
}

func TestMessageRepository_GetByExternalID(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMessageRepository(db)
	ctx := context.Background()

	msg := seedMessage(t, repo, 1, model.MessageStatusQueued)
	_, err := repo.MarkSent(ctx, msg.ID, "ext-789", time.Now())
	require.NoError(t, err)

	got, err := repo.GetByExternalID(ctx, "ext-789")
	require.NoError(t, err)
	assert.Equal(t, msg.ID, got.ID)

	_, err = repo.GetByExternalID(ctx, "ext-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessageRepository_GetForMerchant(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMessageRepository(db)
	ctx := context.Background()

	msg := seedMessage(t, repo, 42, model.MessageStatusQueued)

	got, err := repo.GetForMerchant(ctx, msg.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, got.ID)

	// another tenant cannot see it
	_, err = repo.GetForMerchant(ctx, msg.ID, 43)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessageRepository_List(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMessageRepository(db)
	ctx := context.Background()

	merchantID := int64(100)
	for i := 0; i < 5; i++ {
		seedMessage(t, repo, merchantID, model.MessageStatusQueued)
	}
	seedMessage(t, repo, 200, model.MessageStatusQueued)

	t.Run("filter by merchant", func(t *testing.T) {
		messages, total, err := repo.List(ctx, model.MessageFilter{
			MerchantID: &merchantID,
			Limit:      10,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, messages, 5)
	})

	t.Run("pagination", func(t *testing.T) {
		messages, total, err := repo.List(ctx, model.MessageFilter{
			MerchantID: &merchantID,
			Limit:      2,
			Offset:     4,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, messages, 1)
	})

	t.Run("filter by status", func(t *testing.T) {
		messages, _, err := repo.List(ctx, model.MessageFilter{
			MerchantID: &merchantID,
			Statuses:   []model.MessageStatus{model.MessageStatusDelivered},
			Limit:      10,
		})
		require.NoError(t, err)
		assert.Len(t, messages, 0)
	})
}
