package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/sakaloan5-create/sms-platform/internal/providers"
	xhttp "github.com/sakaloan5-create/sms-platform/pkg/http"
)

// DestinationNormalizer turns raw input into E.164 plus country code,
// rejecting anything that does not parse.
type DestinationNormalizer interface {
	NormalizeDestination(destination string) (e164, countryCode string, err error)
}

// NumberChecker performs carrier-grade lookup behind the syntactic
// check.
type NumberChecker interface {
	Validate(ctx context.Context, countryCode, phoneNumber string) (*providers.NumberInfo, error)
}

type NumberHandler struct {
	normalizer DestinationNormalizer
	checker    NumberChecker
	auth       *MerchantAuth
}

func NewNumberHandler(normalizer DestinationNormalizer, checker NumberChecker, auth *MerchantAuth) *NumberHandler {
	return &NumberHandler{
		normalizer: normalizer,
		checker:    checker,
		auth:       auth,
	}
}

func RegisterNumberRoutes(e *router.Group, h *NumberHandler) {
	e.GET("/numbers/validate", h.auth.Wrap(h.Validate))
}

type numberValidateResponse struct {
	Number      string `json:"number"`
	Valid       bool   `json:"valid"`
	CountryCode string `json:"country_code"`
	NumberType  string `json:"number_type,omitempty"`
	Carrier     string `json:"carrier,omitempty"`
	Note        string `json:"note,omitempty"`
}

func (h *NumberHandler) Validate(ctx *xhttp.RequestCtx) {
	number := query(ctx, "number")
	if number == "" {
		writeError(ctx, 400, "number query parameter is required")
		return
	}

	e164, countryCode, err := h.normalizer.NormalizeDestination(number)
	if err != nil {
		writeJSON(ctx, 200, numberValidateResponse{
			Number: number,
			Valid:  false,
			Note:   "not a valid E.164 number",
		})
		return
	}

	info, err := h.checker.Validate(ctx, countryCode, e164)
	if err != nil {
		writeError(ctx, 502, "number lookup failed")
		return
	}

	writeJSON(ctx, 200, numberValidateResponse{
		Number:      e164,
		Valid:       info.Valid,
		CountryCode: info.CountryCode,
		NumberType:  info.NumberType,
		Carrier:     info.Carrier,
		Note:        info.Note,
	})
}
