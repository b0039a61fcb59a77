package handlers

import (
	"context"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	xhttp "github.com/sakaloan5-create/sms-platform/pkg/http"
)

const (
	apiKeyHeader    = "X-API-Key"
	merchantCtxKey  = "merchant"
	bearerPrefix    = "Bearer "
	authHeaderName  = "Authorization"
	maxAPIKeyLength = 128
)

type MerchantResolver interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*model.Merchant, error)
}

// MerchantAuth resolves the calling merchant from its API key. Keys are
// accepted in X-API-Key or as an Authorization bearer token.
type MerchantAuth struct {
	merchants MerchantResolver
}

func NewMerchantAuth(merchants MerchantResolver) *MerchantAuth {
	return &MerchantAuth{merchants: merchants}
}

func (a *MerchantAuth) Wrap(next xhttp.RequestHandler) xhttp.RequestHandler {
	return func(ctx *xhttp.RequestCtx) {
		key := apiKey(ctx)
		if key == "" || len(key) > maxAPIKeyLength {
			writeError(ctx, 401, "missing API key")
			return
		}
		m, err := a.merchants.GetByAPIKey(ctx, key)
		if err != nil || m == nil {
			writeError(ctx, 401, "invalid API key")
			return
		}
		ctx.SetUserValue(merchantCtxKey, m)
		next(ctx)
	}
}

func apiKey(ctx *xhttp.RequestCtx) string {
	if v := string(ctx.Request.Header.Peek(apiKeyHeader)); v != "" {
		return v
	}
	auth := string(ctx.Request.Header.Peek(authHeaderName))
	if len(auth) > len(bearerPrefix) && auth[:len(bearerPrefix)] == bearerPrefix {
		return auth[len(bearerPrefix):]
	}
	return ""
}

// authedMerchant returns the merchant placed on the context by Wrap. It
// is only valid inside wrapped handlers.
func authedMerchant(ctx *xhttp.RequestCtx) *model.Merchant {
	m, _ := ctx.UserValue(merchantCtxKey).(*model.Merchant)
	return m
}
