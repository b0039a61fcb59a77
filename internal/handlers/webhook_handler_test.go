package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/internal/providers"
	"github.com/sakaloan5-create/sms-platform/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockEventApplier struct {
	mock.Mock
}

func (m *MockEventApplier) ApplyProviderEvent(ctx context.Context, event model.ProviderEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func webhookFixture(applier EventApplier) *WebhookHandler {
	registry := providers.NewRegistry()
	registry.Register(providers.NewMock(providers.MockConfig{
		Name:         "mock",
		WebhookToken: "hook-secret",
	}, nil))
	return NewWebhookHandler(registry, applier)
}

func TestWebhookHandler_HandleCallback(t *testing.T) {
	callbackBody, _ := json.Marshal(map[string]string{
		"external_id": "ext-42",
		"status":      "delivered",
	})

	t.Run("verified callback is applied", func(t *testing.T) {
		applier := new(MockEventApplier)
		handler := webhookFixture(applier)

		applier.On("ApplyProviderEvent", mock.Anything, mock.MatchedBy(func(e model.ProviderEvent) bool {
			return e.ExternalID == "ext-42" && e.Status == model.MessageStatusDelivered
		})).Return(nil)

		ctx := setupTestContext("POST", "/api/v1/webhooks/mock", callbackBody)
		ctx.SetUserValue("provider", "mock")
		ctx.Request.Header.Set("X-Mock-Token", "hook-secret")
		handler.HandleCallback(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		applier.AssertExpectations(t)
	})

	t.Run("bad signature is 401 and never applied", func(t *testing.T) {
		applier := new(MockEventApplier)
		handler := webhookFixture(applier)

		ctx := setupTestContext("POST", "/api/v1/webhooks/mock", callbackBody)
		ctx.SetUserValue("provider", "mock")
		ctx.Request.Header.Set("X-Mock-Token", "wrong")
		handler.HandleCallback(ctx)

		assert.Equal(t, 401, ctx.Response.StatusCode())
		applier.AssertNotCalled(t, "ApplyProviderEvent")
	})

	t.Run("missing signature is 401", func(t *testing.T) {
		applier := new(MockEventApplier)
		handler := webhookFixture(applier)

		ctx := setupTestContext("POST", "/api/v1/webhooks/mock", callbackBody)
		ctx.SetUserValue("provider", "mock")
		handler.HandleCallback(ctx)

		assert.Equal(t, 401, ctx.Response.StatusCode())
	})

	t.Run("unknown provider is 404", func(t *testing.T) {
		applier := new(MockEventApplier)
		handler := webhookFixture(applier)

		ctx := setupTestContext("POST", "/api/v1/webhooks/nope", callbackBody)
		ctx.SetUserValue("provider", "nope")
		handler.HandleCallback(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})

	t.Run("unknown message reference is 404", func(t *testing.T) {
		applier := new(MockEventApplier)
		handler := webhookFixture(applier)

		applier.On("ApplyProviderEvent", mock.Anything, mock.Anything).Return(services.ErrMessageNotFound)

		ctx := setupTestContext("POST", "/api/v1/webhooks/mock", callbackBody)
		ctx.SetUserValue("provider", "mock")
		ctx.Request.Header.Set("X-Mock-Token", "hook-secret")
		handler.HandleCallback(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		applier := new(MockEventApplier)
		handler := webhookFixture(applier)

		ctx := setupTestContext("POST", "/api/v1/webhooks/mock", []byte("not-json"))
		ctx.SetUserValue("provider", "mock")
		ctx.Request.Header.Set("X-Mock-Token", "hook-secret")
		handler.HandleCallback(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		applier.AssertNotCalled(t, "ApplyProviderEvent")
	})
}
