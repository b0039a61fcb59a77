package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sakaloan5-create/sms-platform/internal/model"
)

var ErrNoChannelAvailable = errors.New("no active channel covers the destination")

type ChannelLister interface {
	ListActive(ctx context.Context, chType model.ChannelType) ([]*model.Channel, error)
	GetByID(ctx context.Context, id int64) (*model.Channel, error)
	UpdateStatus(ctx context.Context, id int64, status model.ChannelStatus) error
	UpdateSuccessRate(ctx context.Context, id int64, rate float64) error
}

// ChannelService picks the route a message takes. Selection happens
// before any money moves so an unroutable destination is rejected
// without touching the ledger.
type ChannelService struct {
	channels ChannelLister
}

func NewChannelService(channels ChannelLister) *ChannelService {
	return &ChannelService{channels: channels}
}

// Select returns the best active channel for a destination country and
// channel type. A channel whose allowlist names the country always
// beats one that merely covers it by being unrestricted; among generic
// routes the cheapest wins.
func (s *ChannelService) Select(ctx context.Context, countryCode string, chType model.ChannelType) (*model.Channel, error) {
	candidates, err := s.Candidates(ctx, countryCode, chType)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoChannelAvailable
	}
	return candidates[0], nil
}

// Candidates returns every eligible channel in failover order: explicit
// allowlist matches first in priority order, then the unrestricted
// routes ordered by base price, ties by priority then earliest created.
func (s *ChannelService) Candidates(ctx context.Context, countryCode string, chType model.ChannelType) ([]*model.Channel, error) {
	active, err := s.channels.ListActive(ctx, chType)
	if err != nil {
		return nil, fmt.Errorf("list active channels: %w", err)
	}

	var matched, generic []*model.Channel
	for _, ch := range active {
		switch {
		case ch.SupportsCountry(countryCode):
			matched = append(matched, ch)
		case len(ch.Countries) == 0:
			generic = append(generic, ch)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority < matched[j].Priority
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	sort.SliceStable(generic, func(i, j int) bool {
		if !generic[i].BasePrice.Equal(generic[j].BasePrice) {
			return generic[i].BasePrice.LessThan(generic[j].BasePrice)
		}
		if generic[i].Priority != generic[j].Priority {
			return generic[i].Priority < generic[j].Priority
		}
		return generic[i].CreatedAt.Before(generic[j].CreatedAt)
	})
	return append(matched, generic...), nil
}
