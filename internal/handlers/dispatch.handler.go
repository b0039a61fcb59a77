package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/internal/services"
	xhttp "github.com/sakaloan5-create/sms-platform/pkg/http"
)

type DispatchService interface {
	Quote(ctx context.Context, merchantID int64, destination, content string, msgType model.MessageType) (*model.CostQuote, error)
	Send(ctx context.Context, req model.SendRequest) (*model.SendReceipt, error)
	SendRCS(ctx context.Context, req model.RCSSendRequest) (*model.SendReceipt, error)
	SendBulk(ctx context.Context, req model.BulkSendRequest) (*model.BulkSendResult, error)
	Cancel(ctx context.Context, merchantID int64, messageID string) (*model.Message, error)
	GetStatus(ctx context.Context, merchantID int64, messageID string) (*model.Message, error)
	List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error)
}

type DispatchHandler struct {
	svc  DispatchService
	auth *MerchantAuth
}

func RegisterDispatchRoutes(e *router.Group, h *DispatchHandler) {
	e.POST("/quotes", h.auth.Wrap(h.Quote))
	e.POST("/messages", h.auth.Wrap(h.SendMessage))
	e.POST("/messages/bulk", h.auth.Wrap(h.SendBulk))
	e.POST("/messages/rcs", h.auth.Wrap(h.SendRCS))
	e.GET("/messages", h.auth.Wrap(h.ListMessages))
	e.GET("/messages/{id}", h.auth.Wrap(h.GetMessage))
	e.POST("/messages/{id}/cancel", h.auth.Wrap(h.CancelMessage))
}

func NewDispatchHandler(svc DispatchService, auth *MerchantAuth) *DispatchHandler {
	return &DispatchHandler{
		svc:  svc,
		auth: auth,
	}
}

type quoteRequest struct {
	Destination string `json:"destination"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
}

type sendMessageRequest struct {
	Destination string `json:"destination"`
	Content     string `json:"content"`
	CallbackURL string `json:"callback_url"`
}

type sendBulkRequest struct {
	Destinations []string `json:"destinations"`
	Content      string   `json:"content"`
	CallbackURL  string   `json:"callback_url"`
}

type sendRCSRequest struct {
	Destination string            `json:"destination"`
	Message     model.RichMessage `json:"message"`
	FallbackSMS bool              `json:"fallback_sms"`
	CallbackURL string            `json:"callback_url"`
}

type listMessagesResponse struct {
	Items []*model.Message `json:"items"`
	Total int64            `json:"total"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *DispatchHandler) Quote(ctx *xhttp.RequestCtx) {
	m := authedMerchant(ctx)
	var req quoteRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	msgType := model.MessageTypeSMS
	if req.MessageType != "" {
		msgType = model.MessageType(req.MessageType)
	}
	q, err := h.svc.Quote(ctx, m.ID, req.Destination, req.Content, msgType)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, q)
}

func (h *DispatchHandler) SendMessage(ctx *xhttp.RequestCtx) {
	m := authedMerchant(ctx)
	var req sendMessageRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	receipt, err := h.svc.Send(ctx, model.SendRequest{
		MerchantID:  m.ID,
		Destination: req.Destination,
		Content:     req.Content,
		MessageType: model.MessageTypeSMS,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 202, receipt)
}

func (h *DispatchHandler) SendBulk(ctx *xhttp.RequestCtx) {
	m := authedMerchant(ctx)
	var req sendBulkRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	result, err := h.svc.SendBulk(ctx, model.BulkSendRequest{
		MerchantID:   m.ID,
		Destinations: req.Destinations,
		Content:      req.Content,
		MessageType:  model.MessageTypeSMS,
		CallbackURL:  req.CallbackURL,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 202, result)
}

func (h *DispatchHandler) SendRCS(ctx *xhttp.RequestCtx) {
	m := authedMerchant(ctx)
	var req sendRCSRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	receipt, err := h.svc.SendRCS(ctx, model.RCSSendRequest{
		MerchantID:  m.ID,
		Destination: req.Destination,
		Message:     req.Message,
		FallbackSMS: req.FallbackSMS,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 202, receipt)
}

func (h *DispatchHandler) GetMessage(ctx *xhttp.RequestCtx) {
	m := authedMerchant(ctx)
	id, _ := ctx.UserValue("id").(string)
	msg, err := h.svc.GetStatus(ctx, m.ID, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, msg)
}

func (h *DispatchHandler) CancelMessage(ctx *xhttp.RequestCtx) {
	m := authedMerchant(ctx)
	id, _ := ctx.UserValue("id").(string)
	msg, err := h.svc.Cancel(ctx, m.ID, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, msg)
}

func (h *DispatchHandler) ListMessages(ctx *xhttp.RequestCtx) {
	m := authedMerchant(ctx)

	f := model.MessageFilter{MerchantID: &m.ID}
	if v := query(ctx, "destination"); v != "" {
		f.Destination = &v
	}
	if v := query(ctx, "status"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
			if parts[i] != "" {
				f.Statuses = append(f.Statuses, model.MessageStatus(parts[i]))
			}
		}
	}
	if v := query(ctx, "from"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.From = &t
		}
	}
	if v := query(ctx, "to"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.To = &t
		}
	}
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Limit = n
		}
	}
	if v := query(ctx, "offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Offset = n
		}
	}
	if strings.EqualFold(query(ctx, "order"), "desc") {
		f.Desc = true
	}

	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, listMessagesResponse{Items: items, Total: total})
}

/* --------------------------------- Helpers ---------------------------------- */

// writeServiceError maps service sentinels onto HTTP statuses. Anything
// unrecognized is a 500 so callers never mistake an outage for bad input.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, services.ErrInsufficientBalance):
		writeError(ctx, 402, err.Error())
	case errors.Is(err, services.ErrMerchantNotActive):
		writeError(ctx, 403, err.Error())
	case errors.Is(err, services.ErrMessageNotFound),
		errors.Is(err, services.ErrMerchantNotFound):
		writeError(ctx, 404, err.Error())
	case errors.Is(err, services.ErrNotCancellable):
		writeError(ctx, 409, err.Error())
	case errors.Is(err, services.ErrNoChannelAvailable),
		errors.Is(err, services.ErrRCSNotSupported):
		writeError(ctx, 422, err.Error())
	case errors.Is(err, model.ErrValidation),
		errors.Is(err, services.ErrInvalidDestination),
		errors.Is(err, services.ErrEmptyContent),
		errors.Is(err, services.ErrContentTooLong),
		errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrBulkEmpty),
		errors.Is(err, services.ErrBulkTooLarge):
		writeError(ctx, 400, err.Error())
	default:
		writeError(ctx, 500, err.Error())
	}
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
