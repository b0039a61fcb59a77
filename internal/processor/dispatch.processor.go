package processor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/internal/providers"
	"github.com/sakaloan5-create/sms-platform/internal/queue"
	"github.com/sakaloan5-create/sms-platform/internal/repository"
	"github.com/sakaloan5-create/sms-platform/internal/services"
	"github.com/sakaloan5-create/sms-platform/pkg/logger"
	"github.com/sakaloan5-create/sms-platform/pkg/prom"
)

type MessageStore interface {
	GetByID(ctx context.Context, id string) (*model.Message, error)
	MarkSent(ctx context.Context, id string, externalID string, sentAt time.Time) (bool, error)
	TransitionStatus(ctx context.Context, id string, from []model.MessageStatus, to model.MessageStatus, fields map[string]interface{}) (bool, error)
}

type ChannelGetter interface {
	GetByID(ctx context.Context, id int64) (*model.Channel, error)
}

type Refunder interface {
	RefundMessage(ctx context.Context, msg *model.Message, reason string) error
}

// DispatchProcessor drains the dispatch stream: it loads the already
// debited message, walks the provider failover chain and records the
// outcome. Provider calls happen here, never while the ledger holds a
// lock.
type DispatchProcessor struct {
	messages    MessageStore
	channels    ChannelGetter
	registry    *providers.Registry
	ledger      Refunder
	idempotency *IdempotencyService
}

func NewDispatchProcessor(messages MessageStore, channels ChannelGetter, registry *providers.Registry, ledger Refunder, idempotency *IdempotencyService) *DispatchProcessor {
	return &DispatchProcessor{
		messages:    messages,
		channels:    channels,
		registry:    registry,
		ledger:      ledger,
		idempotency: idempotency,
	}
}

func (p *DispatchProcessor) GetType() string {
	return "dispatch"
}

// Process handles one queued message. ACK (nil) means the message
// reached a final accept-or-fail decision; an error NACKs for retry.
func (p *DispatchProcessor) Process(ctx context.Context, queueMessage *queue.Message) error {
	var job services.DispatchJob
	if err := json.Unmarshal(queueMessage.Data, &job); err != nil {
		logger.Error("Failed to unmarshal dispatch job", "error", err)
		return err // move to DLQ
	}

	procCtx, err := p.idempotency.AcquireProcessingLock(ctx, job.MessageID)
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			logger.Info("Message already dispatched, skipping", "message_id", job.MessageID)
			return nil
		}
		if errors.Is(err, ErrMaxRetriesExceeded) {
			logger.Error("Max dispatch retries exceeded", "message_id", job.MessageID)
			p.failMessage(ctx, job.MessageID, "MAX_RETRIES", "dispatch retries exhausted")
			return nil
		}
		if errors.Is(err, ErrLockAcquireFailed) {
			return errors.New("lock held by another consumer")
		}
		return err
	}
	defer func() {
		if procCtx.lockAcquired {
			p.idempotency.ReleaseLock(ctx, procCtx)
		}
	}()

	msg, err := p.messages.GetByID(ctx, job.MessageID)
	switch {
	case errors.Is(err, repository.ErrNotFound), err == nil && msg == nil:
		logger.Warn("Dispatch job references unknown message", "message_id", job.MessageID)
		return nil
	case err != nil:
		return err // NACK, transient lookup failure
	}
	// Cancelled or already handled while queued.
	if msg.Status != model.MessageStatusQueued {
		logger.Info("Message no longer queued, skipping dispatch",
			"message_id", msg.ID, "status", msg.Status)
		_ = p.idempotency.MarkSuccess(ctx, procCtx)
		return nil
	}

	chain, err := p.buildChain(ctx, msg)
	if err != nil {
		return err
	}

	start := time.Now()
	provider, result, err := p.sendThroughChain(ctx, chain, msg)
	if err != nil {
		if !errors.Is(err, providers.ErrAllProvidersFailed) {
			if markErr := p.idempotency.MarkFailure(ctx, procCtx, err); markErr != nil {
				logger.Error("Failed to mark failure", "message_id", msg.ID, "error", markErr)
			}
			return err // NACK to retry
		}

		errorCode, errorMessage := "ALL_PROVIDERS_FAILED", "every provider rejected the message"
		if result != nil {
			errorCode, errorMessage = result.ErrorCode, result.ErrorMessage
		}
		logger.Error("All providers failed", "message_id", msg.ID, "code", errorCode)
		p.failMessage(ctx, msg.ID, errorCode, errorMessage)
		prom.IncSendOutcome("none", "failed")
		_ = p.idempotency.MarkSuccess(ctx, procCtx)
		return nil // final outcome reached, ACK
	}

	moved, err := p.messages.MarkSent(ctx, msg.ID, result.ExternalID, time.Now().UTC())
	if err != nil {
		logger.Error("Failed to mark message sent", "message_id", msg.ID, "error", err)
		return err
	}
	if !moved {
		// Raced a cancel or a fast delivery receipt; the send went out,
		// reconciliation owns the rest.
		logger.Warn("Message left queued state during dispatch", "message_id", msg.ID)
	}

	prom.IncSendOutcome(provider.Name(), "accepted")
	prom.ObserveSendDuration(provider.Name(), time.Since(start).Seconds())

	if markErr := p.idempotency.MarkSuccess(ctx, procCtx); markErr != nil {
		logger.Error("Failed to mark success", "message_id", msg.ID, "error", markErr)
	}

	logger.Info("Message dispatched",
		"message_id", msg.ID,
		"provider", provider.Name(),
		"external_id", result.ExternalID,
		"retry_count", procCtx.RetryCount)
	return nil
}

// buildChain orders the failover candidates: the channel's own provider
// first, then the registry's preference for the destination country.
func (p *DispatchProcessor) buildChain(ctx context.Context, msg *model.Message) ([]providers.Provider, error) {
	chType := model.ChannelTypeSMS
	if msg.MessageType == model.MessageTypeRCS {
		chType = model.ChannelTypeRCS
	}

	var chain []providers.Provider
	seen := make(map[string]bool)

	if channel, err := p.channels.GetByID(ctx, msg.ChannelID); err == nil {
		if primary, perr := p.registry.Get(channel.Provider); perr == nil {
			chain = append(chain, primary)
			seen[primary.Name()] = true
		}
	}
	for _, candidate := range p.registry.SelectForDestination(msg.CountryCode, chType) {
		if !seen[candidate.Name()] {
			chain = append(chain, candidate)
			seen[candidate.Name()] = true
		}
	}
	if len(chain) == 0 {
		return nil, providers.ErrAllProvidersFailed
	}
	return chain, nil
}

func (p *DispatchProcessor) sendThroughChain(ctx context.Context, chain []providers.Provider, msg *model.Message) (providers.Provider, *providers.SendResult, error) {
	opts := providers.SendOptions{MessageID: msg.ID}

	if msg.MessageType != model.MessageTypeRCS {
		return providers.SendWithFailover(ctx, chain, msg.Destination, msg.Content, opts)
	}

	var rich model.RichMessage
	if err := json.Unmarshal([]byte(msg.Content), &rich); err != nil {
		return nil, nil, err
	}

	var last *providers.SendResult
	for _, candidate := range chain {
		rp, ok := candidate.(providers.RichProvider)
		if !ok {
			continue
		}
		result, err := rp.SendRich(ctx, msg.Destination, rich, opts)
		if err != nil {
			logger.Warn("rich send error, trying next",
				"provider", candidate.Name(), "message_id", msg.ID, "error", err)
			last = &providers.SendResult{
				Success:      false,
				Status:       model.MessageStatusFailed,
				ErrorCode:    "TRANSPORT_ERROR",
				ErrorMessage: err.Error(),
			}
			continue
		}
		if !result.Success {
			logger.Warn("rich send rejected, trying next",
				"provider", candidate.Name(), "message_id", msg.ID, "code", result.ErrorCode)
			last = result
			continue
		}
		return candidate, result, nil
	}
	return nil, last, providers.ErrAllProvidersFailed
}

// failMessage is the terminal failure path: guarded transition plus
// refund, both idempotent.
func (p *DispatchProcessor) failMessage(ctx context.Context, messageID, errorCode, errorMessage string) {
	moved, err := p.messages.TransitionStatus(ctx, messageID,
		[]model.MessageStatus{model.MessageStatusQueued},
		model.MessageStatusFailed,
		map[string]interface{}{
			"error_code":    errorCode,
			"error_message": errorMessage,
		})
	if err != nil {
		logger.Error("Failed to fail message", "message_id", messageID, "error", err)
		return
	}
	if !moved {
		return
	}

	msg, err := p.messages.GetByID(ctx, messageID)
	if err != nil || msg == nil {
		logger.Error("Failed to load message for refund", "message_id", messageID, "error", err)
		return
	}
	if err := p.ledger.RefundMessage(ctx, msg, "dispatch failed"); err != nil {
		logger.Error("Refund after dispatch failure failed", "message_id", messageID, "error", err)
	}
}
