package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/fasthttp/router"
	"github.com/sakaloan5-create/sms-platform/internal/model"
	xhttp "github.com/sakaloan5-create/sms-platform/pkg/http"
	"github.com/shopspring/decimal"
)

type LedgerService interface {
	GetBalance(ctx context.Context, merchantID int64) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error)
	Recharge(ctx context.Context, merchantID int64, amount decimal.Decimal, reference string) (*model.Transaction, error)
	VerifyLedger(ctx context.Context, merchantID int64) (bool, error)
}

type LedgerHandler struct {
	svc  LedgerService
	auth *MerchantAuth
}

func RegisterLedgerRoutes(e *router.Group, h *LedgerHandler) {
	e.GET("/balance", h.auth.Wrap(h.GetBalance))
	e.GET("/transactions", h.auth.Wrap(h.ListTransactions))
	e.POST("/recharge", h.auth.Wrap(h.Recharge))
	e.GET("/ledger/verify", h.auth.Wrap(h.VerifyLedger))
}

func NewLedgerHandler(svc LedgerService, auth *MerchantAuth) *LedgerHandler {
	return &LedgerHandler{
		svc:  svc,
		auth: auth,
	}
}

type rechargeRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

type balanceResponse struct {
	MerchantID int64           `json:"merchant_id"`
	Balance    decimal.Decimal `json:"balance"`
	Currency   string          `json:"currency"`
}

type transactionListResponse struct {
	Items []*model.Transaction `json:"items"`
	Total int64                `json:"total"`
}

type ledgerVerifyResponse struct {
	MerchantID int64 `json:"merchant_id"`
	Consistent bool  `json:"consistent"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *LedgerHandler) GetBalance(ctx *xhttp.RequestCtx) {
	m := authedMerchant(ctx)
	balance, err := h.svc.GetBalance(ctx, m.ID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, balanceResponse{MerchantID: m.ID, Balance: balance, Currency: m.Currency})
}

func (h *LedgerHandler) ListTransactions(ctx *xhttp.RequestCtx) {
	m := authedMerchant(ctx)

	f := model.TransactionFilter{MerchantID: &m.ID}
	if v := query(ctx, "type"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
			if parts[i] != "" {
				f.Types = append(f.Types, model.TransactionType(parts[i]))
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

	items, total, err := h.svc.ListTransactions(ctx, f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, transactionListResponse{Items: items, Total: total})
}

func (h *LedgerHandler) Recharge(ctx *xhttp.RequestCtx) {
	m := authedMerchant(ctx)
	var req rechargeRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	txn, err := h.svc.Recharge(ctx, m.ID, req.Amount, req.Reference)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 201, txn)
}

func (h *LedgerHandler) VerifyLedger(ctx *xhttp.RequestCtx) {
	m := authedMerchant(ctx)
	ok, err := h.svc.VerifyLedger(ctx, m.ID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, ledgerVerifyResponse{MerchantID: m.ID, Consistent: ok})
}
