package repository

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/shopspring/decimal"
)

type ChannelEntity struct {
	ID          int64           `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	Name        string          `db:"name"         gorm:"column:name;not null"`
	Provider    string          `db:"provider"     gorm:"column:provider;not null;index"`
	Type        string          `db:"type"         gorm:"column:type;not null;index"`
	Status      string          `db:"status"       gorm:"column:status;not null;default:inactive;index"`
	BasePrice   decimal.Decimal `db:"base_price"   gorm:"column:base_price;type:numeric(18,6);not null;default:0"`
	SuccessRate float64         `db:"success_rate" gorm:"column:success_rate;not null;default:1"`
	Priority    int             `db:"priority"     gorm:"column:priority;not null;default:100"`
	Countries   string          `db:"countries"    gorm:"column:countries"` // comma-joined ISO codes
	Config      string          `db:"config"       gorm:"column:config"`   // provider-specific JSON blob
	CreatedAt   time.Time       `db:"created_at"   gorm:"column:created_at;autoCreateTime"`
}

func (ChannelEntity) TableName() string {
	return "channels"
}

func toChannelEntity(m *model.Channel) *ChannelEntity {
	if m == nil {
		return nil
	}
	cfg := ""
	if len(m.Config) > 0 {
		if b, err := json.Marshal(m.Config); err == nil {
			cfg = string(b)
		}
	}
	return &ChannelEntity{
		ID:          m.ID,
		Name:        m.Name,
		Provider:    m.Provider,
		Type:        string(m.Type),
		Status:      string(m.Status),
		BasePrice:   m.BasePrice,
		SuccessRate: m.SuccessRate,
		Priority:    m.Priority,
		Countries:   strings.Join(m.Countries, ","),
		Config:      cfg,
		CreatedAt:   m.CreatedAt,
	}
}

func toChannelModel(e *ChannelEntity) *model.Channel {
	if e == nil {
		return nil
	}
	var countries []string
	if e.Countries != "" {
		countries = strings.Split(e.Countries, ",")
	}
	var cfg map[string]string
	if e.Config != "" {
		_ = json.Unmarshal([]byte(e.Config), &cfg)
	}
	return &model.Channel{
		ID:          e.ID,
		Name:        e.Name,
		Provider:    e.Provider,
		Type:        model.ChannelType(e.Type),
		Status:      model.ChannelStatus(e.Status),
		BasePrice:   e.BasePrice,
		SuccessRate: e.SuccessRate,
		Priority:    e.Priority,
		Countries:   countries,
		Config:      cfg,
		CreatedAt:   e.CreatedAt,
	}
}

func toChannelModels(entities []*ChannelEntity) []*model.Channel {
	if entities == nil {
		return nil
	}
	models := make([]*model.Channel, len(entities))
	for i, e := range entities {
		models[i] = toChannelModel(e)
	}
	return models
}
