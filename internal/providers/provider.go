// Package providers holds the carrier adapter set. Every adapter exposes
// the same capability surface; provider-specific request shapes, status
// vocabularies and callback signatures stay behind the adapter boundary.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/valyala/fasthttp"
)

var (
	// ErrUnsupportedOperation is returned by adapters whose upstream has
	// no API for the requested capability (e.g. webhook-only status).
	ErrUnsupportedOperation = errors.New("operation not supported by provider")

	// ErrInvalidSignature is returned when an inbound callback fails the
	// provider's authenticity check. Unverifiable payloads never reach
	// reconciliation.
	ErrInvalidSignature = errors.New("callback signature verification failed")
)

// SendOptions carries per-message dispatch parameters.
type SendOptions struct {
	MessageID   string // our message id, echoed by providers that support client refs
	CallbackURL string // where the provider should POST delivery receipts
	From        string // sender id / originating number
}

// SendResult is the structured outcome of a dispatch attempt. Expected
// provider-side failures come back as Success=false, never as an error;
// only transport problems surface as errors, and callers treat those
// identically to a failed result.
type SendResult struct {
	Success      bool
	ExternalID   string
	Status       model.MessageStatus
	ErrorCode    string
	ErrorMessage string
}

// BulkItem is one entry of a native batch send.
type BulkItem struct {
	Destination string
	Content     string
	Options     SendOptions
}

// StatusResult is a polled delivery state.
type StatusResult struct {
	Status      model.MessageStatus
	DeliveredAt *time.Time
	ErrorCode   string
}

// NumberInfo is the outcome of best-effort number validation.
type NumberInfo struct {
	Valid       bool
	CountryCode string
	NumberType  string
	Carrier     string
	Note        string
}

// Balance is an upstream account balance where the provider exposes one.
type Balance struct {
	Amount   string
	Currency string
}

// Provider is the uniform capability contract every carrier adapter
// implements.
type Provider interface {
	Name() string
	Type() model.ChannelType

	Send(ctx context.Context, destination, content string, opts SendOptions) (*SendResult, error)
	SendBulk(ctx context.Context, items []BulkItem) []*SendResult
	GetStatus(ctx context.Context, externalID string) (*StatusResult, error)
	ValidateNumber(ctx context.Context, phoneNumber string) (*NumberInfo, error)
	GetBalance(ctx context.Context) (*Balance, error)

	// ParseCallback verifies the inbound payload's authenticity and maps
	// it to a normalized delivery event. Implementations return
	// ErrInvalidSignature for payloads that fail verification.
	ParseCallback(body []byte, headers map[string]string) (*model.ProviderEvent, error)
}

// Capabilities describes what rich features a handset supports.
type Capabilities struct {
	RCSEnabled bool
	Features   []string
}

// RichProvider is the extended contract RCS adapters implement on top of
// Provider. Each backend has its own wire schema for identical semantic
// intent; translation of the provider-agnostic descriptor is entirely
// the adapter's job.
type RichProvider interface {
	Provider

	IsCompatible(ctx context.Context, phoneNumber string) (bool, error)
	GetCapabilities(ctx context.Context, phoneNumber string) (*Capabilities, error)
	UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error)
	SendRich(ctx context.Context, destination string, msg model.RichMessage, opts SendOptions) (*SendResult, error)
}

// sequentialBulk is the default SendBulk: a plain loop over Send.
// Adapters with native batch support override with their own pacing.
func sequentialBulk(ctx context.Context, p Provider, items []BulkItem) []*SendResult {
	results := make([]*SendResult, 0, len(items))
	for _, item := range items {
		res, err := p.Send(ctx, item.Destination, item.Content, item.Options)
		if err != nil {
			res = &SendResult{
				Success:      false,
				Status:       model.MessageStatusFailed,
				ErrorCode:    "TRANSPORT_ERROR",
				ErrorMessage: err.Error(),
			}
		}
		results = append(results, res)
	}
	return results
}

// syntacticNumberCheck is the fallback validation used by adapters with
// no lookup API: E.164 shape only.
func syntacticNumberCheck(phoneNumber string) *NumberInfo {
	valid := strings.HasPrefix(phoneNumber, "+") && len(phoneNumber) >= 8 && len(phoneNumber) <= 16
	if valid {
		for _, r := range phoneNumber[1:] {
			if r < '0' || r > '9' {
				valid = false
				break
			}
		}
	}
	return &NumberInfo{
		Valid: valid,
		Note:  "syntactic check only",
	}
}

// restClient is the shared fasthttp transport all HTTP adapters use.
// Calls are bounded by the context deadline, falling back to the
// configured timeout; a hung upstream never blocks past it.
type restClient struct {
	client  *fasthttp.Client
	timeout time.Duration
}

func newRESTClient(timeout time.Duration) *restClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &restClient{
		client: &fasthttp.Client{
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 60 * time.Second,
		},
		timeout: timeout,
	}
}

type header struct {
	key   string
	value string
}

func (c *restClient) do(ctx context.Context, method, url, contentType string, body []byte, headers ...header) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	if contentType != "" {
		req.Header.SetContentType(contentType)
	}
	for _, h := range headers {
		req.Header.Set(h.key, h.value)
	}
	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}

	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return resp.StatusCode(), out, nil
}
