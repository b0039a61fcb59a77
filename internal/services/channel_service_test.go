package services

import (
	"context"
	"testing"
	"time"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectAllowlistMatchBeatsGeneric(t *testing.T) {
	svc := NewChannelService(&fakeChannels{channels: []*model.Channel{
		{ID: 1, Name: "generic", Provider: "twilio", Type: model.ChannelTypeSMS, Status: model.ChannelStatusActive, Priority: 1, BasePrice: decimal.NewFromFloat(0.001)},
		{ID: 2, Name: "de-route", Provider: "vonage", Type: model.ChannelTypeSMS, Status: model.ChannelStatusActive, Priority: 5, Countries: []string{"DE"}},
	}})

	ch, err := svc.Select(context.Background(), "DE", model.ChannelTypeSMS)
	require.NoError(t, err)
	assert.Equal(t, "de-route", ch.Name, "an explicit country match wins regardless of price or priority")

	ch, err = svc.Select(context.Background(), "US", model.ChannelTypeSMS)
	require.NoError(t, err)
	assert.Equal(t, "generic", ch.Name, "an allowlisted channel must not cover other countries")
}

func TestSelectGenericOrdersByBasePrice(t *testing.T) {
	svc := NewChannelService(&fakeChannels{channels: []*model.Channel{
		{ID: 1, Name: "pricey", Provider: "twilio", Type: model.ChannelTypeSMS, Status: model.ChannelStatusActive, Priority: 1, BasePrice: decimal.NewFromFloat(0.99)},
		{ID: 2, Name: "cheap", Provider: "zenvia", Type: model.ChannelTypeSMS, Status: model.ChannelStatusActive, Priority: 9, BasePrice: decimal.NewFromFloat(0.01)},
	}})

	ch, err := svc.Select(context.Background(), "US", model.ChannelTypeSMS)
	require.NoError(t, err)
	assert.Equal(t, "cheap", ch.Name, "generic routes compete on price, not priority")
}

func TestSelectGenericPriceTieBreaks(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)
	price := decimal.NewFromFloat(0.05)

	svc := NewChannelService(&fakeChannels{channels: []*model.Channel{
		{ID: 1, Name: "late", Provider: "twilio", Type: model.ChannelTypeSMS, Status: model.ChannelStatusActive, Priority: 2, BasePrice: price, CreatedAt: newer},
		{ID: 2, Name: "early", Provider: "vonage", Type: model.ChannelTypeSMS, Status: model.ChannelStatusActive, Priority: 2, BasePrice: price, CreatedAt: older},
		{ID: 3, Name: "preferred", Provider: "zenvia", Type: model.ChannelTypeSMS, Status: model.ChannelStatusActive, Priority: 1, BasePrice: price, CreatedAt: newer},
	}})

	chain, err := svc.Candidates(context.Background(), "US", model.ChannelTypeSMS)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "preferred", chain[0].Name, "equal price resolves by priority")
	assert.Equal(t, "early", chain[1].Name, "equal price and priority resolves by creation time")
	assert.Equal(t, "late", chain[2].Name)
}

func TestCandidatesPutMatchesBeforeGenerics(t *testing.T) {
	svc := NewChannelService(&fakeChannels{channels: []*model.Channel{
		{ID: 1, Name: "br-b", Type: model.ChannelTypeSMS, Status: model.ChannelStatusActive, Priority: 2, Countries: []string{"BR"}},
		{ID: 2, Name: "global", Type: model.ChannelTypeSMS, Status: model.ChannelStatusActive, Priority: 1, BasePrice: decimal.NewFromFloat(0.01)},
		{ID: 3, Name: "br-a", Type: model.ChannelTypeSMS, Status: model.ChannelStatusActive, Priority: 1, Countries: []string{"BR"}},
	}})

	chain, err := svc.Candidates(context.Background(), "BR", model.ChannelTypeSMS)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "br-a", chain[0].Name, "allowlist matches order by priority")
	assert.Equal(t, "br-b", chain[1].Name)
	assert.Equal(t, "global", chain[2].Name, "generics only serve as failover behind matches")
}

func TestSelectSkipsInactive(t *testing.T) {
	svc := NewChannelService(&fakeChannels{channels: []*model.Channel{
		{ID: 1, Name: "down", Type: model.ChannelTypeSMS, Status: model.ChannelStatusMaintenance, Priority: 1},
	}})

	_, err := svc.Select(context.Background(), "US", model.ChannelTypeSMS)
	assert.ErrorIs(t, err, ErrNoChannelAvailable)
}

func TestSelectFiltersByType(t *testing.T) {
	svc := NewChannelService(&fakeChannels{channels: []*model.Channel{
		{ID: 1, Name: "sms", Type: model.ChannelTypeSMS, Status: model.ChannelStatusActive, Priority: 1},
	}})

	_, err := svc.Select(context.Background(), "US", model.ChannelTypeRCS)
	assert.ErrorIs(t, err, ErrNoChannelAvailable)
}
