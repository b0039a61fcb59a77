package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChannelType is the kind of traffic a channel carries.
type ChannelType string

const (
	ChannelTypeSMS      ChannelType = "sms"
	ChannelTypeRCS      ChannelType = "rcs"
	ChannelTypeWhatsApp ChannelType = "whatsapp"
)

// ChannelStatus is the operational state of a configured route.
// Channels are deactivated rather than deleted so message rows keep
// a valid channel reference.
type ChannelStatus string

const (
	ChannelStatusActive      ChannelStatus = "active"
	ChannelStatusInactive    ChannelStatus = "inactive"
	ChannelStatusMaintenance ChannelStatus = "maintenance"
	ChannelStatusDegraded    ChannelStatus = "degraded"
)

// Channel is one configured route to an upstream provider.
type Channel struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Provider    string            `json:"provider"`
	Type        ChannelType       `json:"type"`
	Status      ChannelStatus     `json:"status"`
	BasePrice   decimal.Decimal   `json:"base_price"`
	SuccessRate float64           `json:"success_rate"`
	Priority    int               `json:"priority"`  // lower = preferred
	Countries   []string          `json:"countries"` // ISO country allowlist, empty = any
	Config      map[string]string `json:"config,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

func (Channel) TableName() string { return "channels" }

func (c *Channel) SupportsCountry(countryCode string) bool {
	for _, cc := range c.Countries {
		if cc == countryCode {
			return true
		}
	}
	return false
}

// ChannelFilter controls channel lookups.
type ChannelFilter struct {
	Type     *ChannelType
	Statuses []ChannelStatus
	Provider *string
}
