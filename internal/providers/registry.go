package providers

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/pkg/logger"
)

var (
	ErrProviderNotFound = errors.New("provider not registered")

	// ErrAllProvidersFailed means every candidate in the failover chain
	// rejected or errored. The caller refunds and fails the message.
	ErrAllProvidersFailed = errors.New("all providers failed")
)

// Registry holds the configured adapters and picks routes by
// destination. Registration happens at startup; lookups afterwards are
// read-only, the mutex guards the map during wiring.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return p, nil
}

// GetRich returns the named adapter only if it speaks the rich contract.
func (r *Registry) GetRich(name string) (RichProvider, error) {
	p, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	rp, ok := p.(RichProvider)
	if !ok {
		return nil, ErrUnsupportedOperation
	}
	return rp, nil
}

func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Provider, 0, len(names))
	for _, name := range names {
		out = append(out, r.providers[name])
	}
	return out
}

// euCountries are destinations routed through Vonage when available.
var euCountries = map[string]bool{
	"AT": true, "BE": true, "BG": true, "HR": true, "CY": true, "CZ": true,
	"DK": true, "EE": true, "FI": true, "FR": true, "DE": true, "GR": true,
	"HU": true, "IE": true, "IT": true, "LV": true, "LT": true, "LU": true,
	"MT": true, "NL": true, "PL": true, "PT": true, "RO": true, "SK": true,
	"SI": true, "ES": true, "SE": true, "GB": true, "CH": true, "NO": true,
}

// americas are destinations routed through the Google RCS backend.
var americas = map[string]bool{
	"US": true, "CA": true, "MX": true, "BR": true, "AR": true, "CL": true,
	"CO": true, "PE": true, "EC": true, "UY": true, "PY": true, "BO": true,
	"VE": true, "GT": true, "CR": true, "PA": true, "DO": true,
}

// eastAsia are destinations routed through the Samsung RCS hub.
var eastAsia = map[string]bool{
	"KR": true, "JP": true, "CN": true, "TW": true, "HK": true, "SG": true,
	"VN": true, "TH": true, "MY": true, "PH": true, "ID": true,
}

// preferredSMS returns the SMS adapter names for a destination country,
// most preferred first. Only registered adapters make the cut.
func preferredSMS(countryCode string) []string {
	switch {
	case countryCode == "BR":
		return []string{"zenvia", "twilio", "vonage"}
	case euCountries[countryCode]:
		return []string{"vonage", "twilio", "zenvia"}
	default:
		return []string{"twilio", "vonage", "zenvia"}
	}
}

// preferredRCS returns the RCS adapter names for a destination country,
// most preferred first.
func preferredRCS(countryCode string) []string {
	switch {
	case eastAsia[countryCode]:
		return []string{"samsung_rcs", "google_rcs"}
	case americas[countryCode]:
		return []string{"google_rcs", "samsung_rcs"}
	default:
		return []string{"google_rcs", "samsung_rcs"}
	}
}

// SelectForDestination returns the ordered failover chain for a
// destination country and channel type. Mock adapters, when registered,
// are appended as the last resort so local runs always have a route.
func (r *Registry) SelectForDestination(countryCode string, chType model.ChannelType) []Provider {
	var names []string
	if chType == model.ChannelTypeRCS {
		names = preferredRCS(countryCode)
	} else {
		names = preferredSMS(countryCode)
	}

	out := make([]Provider, 0, len(names)+1)
	for _, name := range names {
		if p, err := r.Get(name); err == nil {
			out = append(out, p)
		}
	}
	for _, p := range r.All() {
		if _, ok := p.(*Mock); ok && p.Type() == chType {
			out = append(out, p)
		}
	}
	return out
}

// SendWithFailover walks the chain in order and stops at the first
// accepted send. Transport errors and provider rejections both advance
// to the next candidate; per-provider failures are recorded on the
// result stream, not returned as errors.
func SendWithFailover(ctx context.Context, chain []Provider, destination, content string, opts SendOptions) (Provider, *SendResult, error) {
	if len(chain) == 0 {
		return nil, nil, ErrAllProvidersFailed
	}

	var last *SendResult
	for _, p := range chain {
		res, err := p.Send(ctx, destination, content, opts)
		if err != nil {
			logger.Warn("provider send error, trying next",
				"provider", p.Name(), "message_id", opts.MessageID, "error", err)
			last = &SendResult{
				Success:      false,
				Status:       model.MessageStatusFailed,
				ErrorCode:    "TRANSPORT_ERROR",
				ErrorMessage: err.Error(),
			}
			continue
		}
		if !res.Success {
			logger.Warn("provider rejected send, trying next",
				"provider", p.Name(), "message_id", opts.MessageID,
				"code", res.ErrorCode, "reason", res.ErrorMessage)
			last = res
			continue
		}
		return p, res, nil
	}
	return nil, last, ErrAllProvidersFailed
}

// RichCompatibility answers handset RCS capability questions through
// the preferred rich provider for the destination's region. A provider
// lookup error moves on to the next candidate; with no candidate left
// the handset is treated as SMS-only.
type RichCompatibility struct {
	registry *Registry
}

func NewRichCompatibility(r *Registry) *RichCompatibility {
	return &RichCompatibility{registry: r}
}

func (c *RichCompatibility) IsCompatible(ctx context.Context, countryCode, phoneNumber string) (bool, error) {
	var lastErr error
	for _, p := range c.registry.SelectForDestination(countryCode, model.ChannelTypeRCS) {
		rp, ok := p.(RichProvider)
		if !ok {
			continue
		}
		compatible, err := rp.IsCompatible(ctx, phoneNumber)
		if err != nil {
			lastErr = err
			continue
		}
		return compatible, nil
	}
	return false, lastErr
}

// NumberValidation asks the preferred SMS adapters for carrier-grade
// number lookup. When no adapter can answer, the syntactic result from
// libphonenumber is returned instead so the endpoint always resolves.
type NumberValidation struct {
	registry *Registry
}

func NewNumberValidation(r *Registry) *NumberValidation {
	return &NumberValidation{registry: r}
}

func (v *NumberValidation) Validate(ctx context.Context, countryCode, phoneNumber string) (*NumberInfo, error) {
	for _, p := range v.registry.SelectForDestination(countryCode, model.ChannelTypeSMS) {
		info, err := p.ValidateNumber(ctx, phoneNumber)
		if err != nil {
			if errors.Is(err, ErrUnsupportedOperation) {
				continue
			}
			logger.Warn("number lookup failed, trying next",
				"provider", p.Name(), "error", err)
			continue
		}
		return info, nil
	}

	return &NumberInfo{
		Valid:       true,
		CountryCode: countryCode,
		NumberType:  "unknown",
		Note:        "syntactic check only, no lookup provider available",
	}, nil
}
