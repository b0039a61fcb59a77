package handlers

import (
	"context"
	"errors"

	"github.com/fasthttp/router"
	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/internal/providers"
	"github.com/sakaloan5-create/sms-platform/internal/services"
	xhttp "github.com/sakaloan5-create/sms-platform/pkg/http"
	"github.com/sakaloan5-create/sms-platform/pkg/logger"
	"github.com/sakaloan5-create/sms-platform/pkg/prom"
)

type CallbackParser interface {
	Get(name string) (providers.Provider, error)
}

type EventApplier interface {
	ApplyProviderEvent(ctx context.Context, event model.ProviderEvent) error
}

// WebhookHandler ingests provider delivery callbacks. Signature
// verification happens inside each adapter's ParseCallback; an invalid
// signature is a 401 and the body is never acted on.
type WebhookHandler struct {
	registry  CallbackParser
	reconcile EventApplier
}

func RegisterWebhookRoutes(e *router.Group, h *WebhookHandler) {
	e.POST("/webhooks/{provider}", h.HandleCallback)
}

func NewWebhookHandler(registry CallbackParser, reconcile EventApplier) *WebhookHandler {
	return &WebhookHandler{
		registry:  registry,
		reconcile: reconcile,
	}
}

func (h *WebhookHandler) HandleCallback(ctx *xhttp.RequestCtx) {
	name, _ := ctx.UserValue("provider").(string)
	p, err := h.registry.Get(name)
	if err != nil {
		writeError(ctx, 404, "unknown provider: "+name)
		return
	}

	event, err := p.ParseCallback(ctx.PostBody(), requestHeaders(ctx))
	if err != nil {
		if errors.Is(err, providers.ErrInvalidSignature) {
			prom.IncWebhookRejected(name)
			logger.Warn("webhook signature rejected", "provider", name, "ip", ctx.RemoteIP().String())
			writeError(ctx, 401, "invalid signature")
			return
		}
		writeError(ctx, 400, "malformed callback: "+err.Error())
		return
	}

	if err := h.reconcile.ApplyProviderEvent(ctx, *event); err != nil {
		if errors.Is(err, services.ErrMessageNotFound) {
			writeError(ctx, 404, "unknown message reference")
			return
		}
		logger.Error("failed applying provider event",
			"provider", name, "external_id", event.ExternalID, "error", err)
		writeError(ctx, 500, "failed to apply event")
		return
	}

	prom.IncWebhookEvent(name, string(event.Status))
	writeJSON(ctx, 200, map[string]string{"status": "ok"})
}

func requestHeaders(ctx *xhttp.RequestCtx) map[string]string {
	headers := make(map[string]string)
	ctx.Request.Header.VisitAll(func(key, value []byte) {
		headers[string(key)] = string(value)
	})
	return headers
}
