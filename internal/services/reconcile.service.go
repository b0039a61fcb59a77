package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/internal/repository"
	"github.com/sakaloan5-create/sms-platform/pkg/logger"
	"github.com/sakaloan5-create/sms-platform/pkg/prom"
	"github.com/valyala/fasthttp"
)

type ReconcileStore interface {
	GetByID(ctx context.Context, id string) (*model.Message, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.Message, error)
	TransitionStatus(ctx context.Context, id string, from []model.MessageStatus, to model.MessageStatus, fields map[string]interface{}) (bool, error)
}

// ReconcileService applies provider delivery events to message state.
// Events arrive at least once and out of order; every apply is a guarded
// transition, so replays and regressions degrade to no-ops.
type ReconcileService struct {
	messages ReconcileStore
	ledger   *LedgerService

	callbackClient  *fasthttp.Client
	callbackTimeout time.Duration
}

func NewReconcileService(messages ReconcileStore, ledger *LedgerService) *ReconcileService {
	return &ReconcileService{
		messages: messages,
		ledger:   ledger,
		callbackClient: &fasthttp.Client{
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		callbackTimeout: 5 * time.Second,
	}
}

// ApplyProviderEvent maps one verified provider event onto the message
// it references. Unknown external ids are an error so the webhook layer
// can answer 404; stale or duplicate events succeed silently.
func (s *ReconcileService) ApplyProviderEvent(ctx context.Context, event model.ProviderEvent) error {
	msg, err := s.messages.GetByExternalID(ctx, event.ExternalID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrMessageNotFound
	case err != nil:
		return fmt.Errorf("lookup by external id: %w", err)
	case msg == nil:
		return ErrMessageNotFound
	}

	moved := false
	switch event.Status {
	case model.MessageStatusSent:
		moved, err = s.messages.TransitionStatus(ctx, msg.ID,
			[]model.MessageStatus{model.MessageStatusQueued},
			model.MessageStatusSent,
			map[string]interface{}{"sent_at": event.OccurredAt})

	case model.MessageStatusDelivered:
		// A delivered receipt may overtake our own sent write.
		moved, err = s.messages.TransitionStatus(ctx, msg.ID,
			[]model.MessageStatus{model.MessageStatusQueued, model.MessageStatusSent},
			model.MessageStatusDelivered,
			map[string]interface{}{"delivered_at": event.OccurredAt})
		if err == nil && moved {
			prom.IncDelivered(event.Provider)
		}

	case model.MessageStatusFailed:
		moved, err = s.messages.TransitionStatus(ctx, msg.ID,
			[]model.MessageStatus{model.MessageStatusQueued, model.MessageStatusSent},
			model.MessageStatusFailed,
			map[string]interface{}{
				"error_code":    event.ErrorCode,
				"error_message": event.ErrorMessage,
			})
		if err == nil && moved {
			prom.IncFailed(event.Provider)
			if rerr := s.ledger.RefundMessage(ctx, msg, "provider reported failure"); rerr != nil {
				logger.Error("refund after delivery failure failed",
					"message_id", msg.ID, "error", rerr)
			}
		}

	default:
		logger.Warn("ignoring provider event with unexpected status",
			"provider", event.Provider, "external_id", event.ExternalID, "status", event.Status)
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply %s event: %w", event.Status, err)
	}

	if !moved {
		logger.Debug("provider event was a no-op",
			"message_id", msg.ID, "status", event.Status)
		return nil
	}

	s.notifyMerchant(ctx, msg.ID)
	return nil
}

// merchantCallback is the payload POSTed to the merchant's callback URL.
type merchantCallback struct {
	MessageID    string              `json:"message_id"`
	ExternalID   string              `json:"external_id,omitempty"`
	Status       model.MessageStatus `json:"status"`
	ErrorCode    string              `json:"error_code,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	SentAt       *time.Time          `json:"sent_at,omitempty"`
	DeliveredAt  *time.Time          `json:"delivered_at,omitempty"`
}

// notifyMerchant forwards the state change to the merchant, best
// effort. A dead merchant endpoint never fails reconciliation.
func (s *ReconcileService) notifyMerchant(ctx context.Context, messageID string) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil || msg == nil || msg.CallbackURL == "" {
		return
	}

	payload, err := json.Marshal(merchantCallback{
		MessageID:    msg.ID,
		ExternalID:   msg.ExternalID,
		Status:       msg.Status,
		ErrorCode:    msg.ErrorCode,
		ErrorMessage: msg.ErrorMessage,
		SentAt:       msg.SentAt,
		DeliveredAt:  msg.DeliveredAt,
	})
	if err != nil {
		return
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(msg.CallbackURL)
	req.Header.SetMethod("POST")
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(s.callbackTimeout)
	}
	if err := s.callbackClient.DoDeadline(req, resp, deadline); err != nil {
		logger.Warn("merchant callback failed",
			"message_id", msg.ID, "url", msg.CallbackURL, "error", err)
		return
	}
	if resp.StatusCode() >= 400 {
		logger.Warn("merchant callback rejected",
			"message_id", msg.ID, "url", msg.CallbackURL, "status", resp.StatusCode())
	}
}
