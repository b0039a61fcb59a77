package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MessageStatus is the lifecycle state of a message. The machine is
// linear with one failure branch:
//
//	queued -> sent -> delivered
//	queued -> sent -> failed   (refunded)
//	queued -> failed           (dispatch-time rejection, refunded)
//	queued -> cancelled        (operator cancel, refunded)
type MessageStatus string

const (
	MessageStatusQueued    MessageStatus = "queued"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusCancelled MessageStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s MessageStatus) Terminal() bool {
	return s == MessageStatusDelivered || s == MessageStatusFailed || s == MessageStatusCancelled
}

// CanTransition reports whether moving to next is a valid forward move.
// Repeated callbacks for an already-terminal message are not valid moves;
// callers treat them as idempotent no-ops.
func (s MessageStatus) CanTransition(next MessageStatus) bool {
	switch s {
	case MessageStatusQueued:
		return next == MessageStatusSent || next == MessageStatusFailed || next == MessageStatusCancelled
	case MessageStatusSent:
		return next == MessageStatusDelivered || next == MessageStatusFailed
	default:
		return false
	}
}

// MessageType selects the outbound channel kind.
type MessageType string

const (
	MessageTypeSMS MessageType = "sms"
	MessageTypeRCS MessageType = "rcs"
)

// Encoding is the wire encoding the content requires.
type Encoding string

const (
	EncodingGSM7 Encoding = "gsm7"
	EncodingUCS2 Encoding = "ucs2"
)

// Message is one outbound attempt. Immutable after creation except for
// the status-related fields; never deleted.
type Message struct {
	ID           string          `json:"id"`
	MerchantID   int64           `json:"merchant_id"`
	ChannelID    int64           `json:"channel_id"`
	Destination  string          `json:"destination"`
	CountryCode  string          `json:"country_code"`
	MessageType  MessageType     `json:"message_type"`
	Content      string          `json:"content"`
	Segments     int             `json:"segments"`
	Encoding     Encoding        `json:"encoding"`
	Cost         decimal.Decimal `json:"cost"`
	Currency     string          `json:"currency"`
	Status       MessageStatus   `json:"status"`
	ExternalID   string          `json:"external_id,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CallbackURL  string          `json:"callback_url,omitempty"`
	SentAt       *time.Time      `json:"sent_at,omitempty"`
	DeliveredAt  *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (Message) TableName() string { return "messages" }

// SendRequest is the input for a single send.
type SendRequest struct {
	MerchantID  int64
	Destination string
	Content     string
	MessageType MessageType
	CallbackURL string
}

// ErrValidation marks request-shape problems so the transport layer can
// answer with a 4xx instead of a 5xx.
var ErrValidation = errors.New("validation failed")

func (p SendRequest) Validate() error {
	if p.MerchantID == 0 {
		return fmt.Errorf("%w: merchant_id is required", ErrValidation)
	}
	if p.Destination == "" {
		return fmt.Errorf("%w: destination is required", ErrValidation)
	}
	if p.Content == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	return nil
}

// BulkSendRequest fans one content out to many destinations.
type BulkSendRequest struct {
	MerchantID   int64
	Destinations []string
	Content      string
	MessageType  MessageType
	CallbackURL  string
}

// BulkRecipientError is one recipient's failure inside a bulk send.
type BulkRecipientError struct {
	Destination string `json:"destination"`
	Error       string `json:"error"`
}

// BulkSendResult aggregates per-recipient outcomes. One recipient's
// failure never aborts the batch.
type BulkSendResult struct {
	Total     int                  `json:"total"`
	Queued    int                  `json:"queued"`
	Failed    int                  `json:"failed"`
	TotalCost decimal.Decimal      `json:"total_cost"`
	Currency  string               `json:"currency"`
	Errors    []BulkRecipientError `json:"errors,omitempty"`
}

// SendReceipt is what a caller gets back from a successful send.
type SendReceipt struct {
	MessageID string          `json:"message_id"`
	Status    MessageStatus   `json:"status"`
	Cost      decimal.Decimal `json:"cost"`
	Currency  string          `json:"currency"`
	Segments  int             `json:"segments"`
	Channel   string          `json:"channel"`
}

// MessageFilter controls List queries.
type MessageFilter struct {
	MerchantID  *int64
	Statuses    []MessageStatus
	Destination *string
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
	Desc        bool
}

// ProviderEvent is a normalized inbound delivery-status callback after
// provider-specific parsing and signature verification.
type ProviderEvent struct {
	Provider     string
	ExternalID   string
	Status       MessageStatus
	ErrorCode    string
	ErrorMessage string
	OccurredAt   time.Time
}
