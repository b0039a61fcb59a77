package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/internal/repository"
	"github.com/sakaloan5-create/sms-platform/pkg/segmenter"
	"github.com/shopspring/decimal"
)

// costScale is the decimal precision monetary results are rounded to.
const costScale = 6

var (
	ErrInvalidDestination = errors.New("destination is not a valid phone number")
	ErrEmptyContent       = errors.New("message content cannot be empty")
	ErrContentTooLong     = errors.New("message content exceeds maximum length")
)

// maxSegments bounds a single message. Anything longer is a caller bug.
const maxSegments = 10

type PricingResolver interface {
	Resolve(ctx context.Context, merchantID int64, countryCode string, chType model.ChannelType, at time.Time) (*model.PricingPlan, error)
}

// QuoteConfig carries the config fallback used when neither a merchant
// plan nor a platform default plan covers the destination.
type QuoteConfig struct {
	DefaultSMSPrice decimal.Decimal
	RCSMultiplier   decimal.Decimal // applied to the SMS rate when no RCS plan exists
	DefaultCurrency string
}

// QuoteService prices messages. The quote is deterministic: the same
// content, destination and plan table always produce the same cost, so
// a caller can pre-verify what a send will debit.
type QuoteService struct {
	pricing PricingResolver
	cfg     QuoteConfig
}

func NewQuoteService(pricing PricingResolver, cfg QuoteConfig) *QuoteService {
	if cfg.RCSMultiplier.IsZero() {
		cfg.RCSMultiplier = decimal.NewFromFloat(1.5)
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	return &QuoteService{pricing: pricing, cfg: cfg}
}

// NormalizeDestination validates and canonicalizes a destination into
// E.164 plus its ISO 3166-1 alpha-2 country.
func (s *QuoteService) NormalizeDestination(destination string) (e164, countryCode string, err error) {
	destination = strings.TrimSpace(destination)
	if !strings.HasPrefix(destination, "+") {
		return "", "", ErrInvalidDestination
	}
	num, perr := phonenumbers.Parse(destination, "")
	if perr != nil || !phonenumbers.IsValidNumber(num) {
		return "", "", ErrInvalidDestination
	}
	return phonenumbers.Format(num, phonenumbers.E164), phonenumbers.GetRegionCodeForNumber(num), nil
}

// Quote prices one message for a merchant. Segment count comes from the
// GSM 03.38 split; the per-segment rate resolves merchant plan first,
// then platform default, then the config fallback. RCS with no plan of
// its own prices at the SMS rate times the configured multiplier.
func (s *QuoteService) Quote(ctx context.Context, merchantID int64, destination, content string, msgType model.MessageType) (*model.CostQuote, string, error) {
	e164, countryCode, err := s.NormalizeDestination(destination)
	if err != nil {
		return nil, "", err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, "", ErrEmptyContent
	}

	split := segmenter.Split(content)
	if split.Segments > maxSegments {
		return nil, "", ErrContentTooLong
	}

	chType := model.ChannelTypeSMS
	segments := split.Segments
	if msgType == model.MessageTypeRCS {
		chType = model.ChannelTypeRCS
		// Rich messages bill per message, not per segment.
		segments = 1
	}

	unitPrice, currency, err := s.resolveRate(ctx, merchantID, countryCode, chType)
	if err != nil {
		return nil, "", err
	}

	quote := &model.CostQuote{
		CountryCode: countryCode,
		Segments:    segments,
		Encoding:    model.Encoding(split.Encoding),
		UnitPrice:   unitPrice,
		TotalCost:   unitPrice.Mul(decimal.NewFromInt(int64(segments))).Round(costScale),
		Currency:    currency,
	}
	return quote, e164, nil
}

func (s *QuoteService) resolveRate(ctx context.Context, merchantID int64, countryCode string, chType model.ChannelType) (decimal.Decimal, string, error) {
	plan, err := s.pricing.Resolve(ctx, merchantID, countryCode, chType, time.Now().UTC())
	if err == nil {
		return plan.UnitPrice.Round(costScale), plan.Currency, nil
	}
	if !errors.Is(err, repository.ErrNoPlanFound) {
		return decimal.Zero, "", fmt.Errorf("resolve pricing plan: %w", err)
	}

	// No RCS plan anywhere: derive from the SMS rate.
	if chType == model.ChannelTypeRCS {
		smsRate, currency, err := s.resolveRate(ctx, merchantID, countryCode, model.ChannelTypeSMS)
		if err != nil {
			return decimal.Zero, "", err
		}
		return smsRate.Mul(s.cfg.RCSMultiplier).Round(costScale), currency, nil
	}

	return s.cfg.DefaultSMSPrice.Round(costScale), s.cfg.DefaultCurrency, nil
}
