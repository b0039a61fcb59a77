package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/internal/repository"
	"github.com/sakaloan5-create/sms-platform/pkg/logger"
	"github.com/sakaloan5-create/sms-platform/pkg/prom"
)

const (
	bulkChunkSize = 100
	bulkMaxSize   = 10000
)

var (
	ErrMessageNotFound   = errors.New("message not found")
	ErrNotCancellable    = errors.New("message is no longer cancellable")
	ErrBulkTooLarge      = fmt.Errorf("bulk send exceeds %d recipients", bulkMaxSize)
	ErrBulkEmpty         = errors.New("bulk send has no recipients")
	ErrRCSNotSupported   = errors.New("destination does not support rich messaging")
)

type MessageStore interface {
	Create(ctx context.Context, msg *model.Message) (*model.Message, error)
	GetByID(ctx context.Context, id string) (*model.Message, error)
	GetForMerchant(ctx context.Context, id string, merchantID int64) (*model.Message, error)
	TransitionStatus(ctx context.Context, id string, from []model.MessageStatus, to model.MessageStatus, fields map[string]interface{}) (bool, error)
	List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error)
}

// RichChecker answers whether a destination handset can receive rich
// messages over the route covering its country.
type RichChecker interface {
	IsCompatible(ctx context.Context, countryCode, phoneNumber string) (bool, error)
}

// Publisher hands accepted messages to the dispatch stream.
type Publisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

// DispatchJob is the queue payload handed to the dispatch workers.
type DispatchJob struct {
	MessageID string `json:"message_id"`
}

// DispatchService accepts sends. It prices, routes and debits
// synchronously so the caller gets a definitive accept or reject, then
// hands the provider call to the queue. The route is chosen before any
// money moves; the debit, the message row and the ledger entry commit
// in one database transaction; the ledger lock is never held across a
// provider call.
type DispatchService struct {
	tx       TxRunner
	quotes   *QuoteService
	channels *ChannelService
	ledger   *LedgerService
	messages MessageStore
	rich     RichChecker
	queue    Publisher
}

func NewDispatchService(tx TxRunner, quotes *QuoteService, channels *ChannelService, ledger *LedgerService, messages MessageStore, rich RichChecker, q Publisher) *DispatchService {
	return &DispatchService{
		tx:       tx,
		quotes:   quotes,
		channels: channels,
		ledger:   ledger,
		messages: messages,
		rich:     rich,
		queue:    q,
	}
}

// Quote prices a prospective send without dispatching it.
func (s *DispatchService) Quote(ctx context.Context, merchantID int64, destination, content string, msgType model.MessageType) (*model.CostQuote, error) {
	quote, _, err := s.quotes.Quote(ctx, merchantID, destination, content, msgType)
	return quote, err
}

// Send accepts a single message.
func (s *DispatchService) Send(ctx context.Context, req model.SendRequest) (*model.SendReceipt, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.MessageType == "" {
		req.MessageType = model.MessageTypeSMS
	}

	quote, e164, err := s.quotes.Quote(ctx, req.MerchantID, req.Destination, req.Content, req.MessageType)
	if err != nil {
		return nil, err
	}

	chType := model.ChannelTypeSMS
	if req.MessageType == model.MessageTypeRCS {
		chType = model.ChannelTypeRCS
	}
	channel, err := s.channels.Select(ctx, quote.CountryCode, chType)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		ID:          uuid.NewString(),
		MerchantID:  req.MerchantID,
		ChannelID:   channel.ID,
		Destination: e164,
		CountryCode: quote.CountryCode,
		MessageType: req.MessageType,
		Content:     req.Content,
		Segments:    quote.Segments,
		Encoding:    quote.Encoding,
		Cost:        quote.TotalCost,
		Currency:    quote.Currency,
		Status:      model.MessageStatusQueued,
		CallbackURL: req.CallbackURL,
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.messages.Create(ctx, msg); err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		if _, err := s.ledger.DebitForMessage(ctx, req.MerchantID, msg.ID, quote.TotalCost); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.enqueue(ctx, msg); err != nil {
		return nil, err
	}

	prom.IncAccepted(channel.Provider)
	return &model.SendReceipt{
		MessageID: msg.ID,
		Status:    msg.Status,
		Cost:      msg.Cost,
		Currency:  msg.Currency,
		Segments:  msg.Segments,
		Channel:   channel.Name,
	}, nil
}

// SendRCS accepts a rich message. The destination's handset capability
// is checked up front; fallback to plain SMS happens before any debit
// so the message is billed at the rate of the channel it actually uses.
func (s *DispatchService) SendRCS(ctx context.Context, req model.RCSSendRequest) (*model.SendReceipt, error) {
	_, countryCode, err := s.quotes.NormalizeDestination(req.Destination)
	if err != nil {
		return nil, err
	}

	compatible := false
	if s.rich != nil {
		compatible, err = s.rich.IsCompatible(ctx, countryCode, req.Destination)
		if err != nil {
			logger.Warn("rcs capability check failed, treating as incompatible",
				"destination", req.Destination, "error", err)
			compatible = false
		}
	}

	if !compatible {
		if !req.FallbackSMS {
			return nil, ErrRCSNotSupported
		}
		return s.Send(ctx, model.SendRequest{
			MerchantID:  req.MerchantID,
			Destination: req.Destination,
			Content:     req.Message.PlainText(),
			MessageType: model.MessageTypeSMS,
			CallbackURL: req.CallbackURL,
		})
	}

	payload, err := json.Marshal(req.Message)
	if err != nil {
		return nil, fmt.Errorf("encode rich payload: %w", err)
	}
	return s.Send(ctx, model.SendRequest{
		MerchantID:  req.MerchantID,
		Destination: req.Destination,
		Content:     string(payload),
		MessageType: model.MessageTypeRCS,
		CallbackURL: req.CallbackURL,
	})
}

// SendBulk fans one content out to many destinations in chunks. Each
// recipient is accepted or rejected independently; one bad destination
// never aborts the rest.
func (s *DispatchService) SendBulk(ctx context.Context, req model.BulkSendRequest) (*model.BulkSendResult, error) {
	if len(req.Destinations) == 0 {
		return nil, ErrBulkEmpty
	}
	if len(req.Destinations) > bulkMaxSize {
		return nil, ErrBulkTooLarge
	}

	result := &model.BulkSendResult{Total: len(req.Destinations)}
	for start := 0; start < len(req.Destinations); start += bulkChunkSize {
		end := start + bulkChunkSize
		if end > len(req.Destinations) {
			end = len(req.Destinations)
		}
		for _, dest := range req.Destinations[start:end] {
			receipt, err := s.Send(ctx, model.SendRequest{
				MerchantID:  req.MerchantID,
				Destination: dest,
				Content:     req.Content,
				MessageType: req.MessageType,
				CallbackURL: req.CallbackURL,
			})
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, model.BulkRecipientError{
					Destination: dest,
					Error:       err.Error(),
				})
				continue
			}
			result.Queued++
			result.TotalCost = result.TotalCost.Add(receipt.Cost)
			result.Currency = receipt.Currency
		}
	}
	return result, nil
}

// Cancel stops a message that has not left the queue yet and refunds
// it. The transition is a guarded update, so a dispatch worker racing
// this call wins or loses atomically.
func (s *DispatchService) Cancel(ctx context.Context, merchantID int64, messageID string) (*model.Message, error) {
	msg, err := s.getScoped(ctx, merchantID, messageID)
	if err != nil {
		return nil, err
	}

	moved, err := s.messages.TransitionStatus(ctx, msg.ID,
		[]model.MessageStatus{model.MessageStatusQueued}, model.MessageStatusCancelled, nil)
	if err != nil {
		return nil, fmt.Errorf("cancel message: %w", err)
	}
	if !moved {
		return nil, ErrNotCancellable
	}

	if err := s.ledger.RefundMessage(ctx, msg, "cancelled before dispatch"); err != nil {
		// The cancel already took effect; a failed refund is logged for
		// operator follow-up rather than failing the call.
		logger.Error("refund after cancel failed", "message_id", msg.ID, "error", err)
	}

	prom.IncCancelled()
	return s.getScoped(ctx, merchantID, messageID)
}

// GetStatus returns a message's current state, tenant scoped.
func (s *DispatchService) GetStatus(ctx context.Context, merchantID int64, messageID string) (*model.Message, error) {
	return s.getScoped(ctx, merchantID, messageID)
}

// List pages through a merchant's messages.
func (s *DispatchService) List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error) {
	return s.messages.List(ctx, f)
}

func (s *DispatchService) getScoped(ctx context.Context, merchantID int64, messageID string) (*model.Message, error) {
	msg, err := s.messages.GetForMerchant(ctx, messageID, merchantID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrMessageNotFound
	case err != nil:
		return nil, err
	case msg == nil:
		return nil, ErrMessageNotFound
	}
	return msg, nil
}

// enqueue hands the accepted message to the dispatch workers. A publish
// failure fails the message and refunds it so money never sits against
// a message that will not go out.
func (s *DispatchService) enqueue(ctx context.Context, msg *model.Message) error {
	_, err := s.queue.PublishJSON(ctx, DispatchJob{MessageID: msg.ID}, map[string]string{
		"type":       "dispatch",
		"message_id": msg.ID,
	})
	if err == nil {
		return nil
	}

	logger.Error("enqueue failed, failing message", "message_id", msg.ID, "error", err)
	moved, terr := s.messages.TransitionStatus(ctx, msg.ID,
		[]model.MessageStatus{model.MessageStatusQueued}, model.MessageStatusFailed,
		map[string]interface{}{
			"error_code":    "ENQUEUE_FAILED",
			"error_message": "could not hand message to dispatch queue",
		})
	if terr == nil && moved {
		if rerr := s.ledger.RefundMessage(ctx, msg, "enqueue failed"); rerr != nil {
			logger.Error("refund after enqueue failure failed", "message_id", msg.ID, "error", rerr)
		}
	}
	return fmt.Errorf("enqueue message: %w", err)
}
