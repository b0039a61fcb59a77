package repository

import (
	"time"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/shopspring/decimal"
)

type MessageEntity struct {
	ID           string          `db:"id"            gorm:"primaryKey;column:id"`
	MerchantID   int64           `db:"merchant_id"   gorm:"column:merchant_id;not null;index"`
	ChannelID    int64           `db:"channel_id"    gorm:"column:channel_id;not null;index"`
	Destination  string          `db:"destination"   gorm:"column:destination;not null"`
	CountryCode  string          `db:"country_code"  gorm:"column:country_code"`
	MessageType  string          `db:"message_type"  gorm:"column:message_type;not null;default:sms"`
	Content      string          `db:"content"       gorm:"column:content;not null"`
	Segments     int             `db:"segments"      gorm:"column:segments;not null;default:1"`
	Encoding     string          `db:"encoding"      gorm:"column:encoding"`
	Cost         decimal.Decimal `db:"cost"          gorm:"column:cost;type:numeric(18,6);not null;default:0"`
	Currency     string          `db:"currency"      gorm:"column:currency;not null;default:USD"`
	Status       string          `db:"status"        gorm:"column:status;not null;index"`
	ExternalID   string          `db:"external_id"   gorm:"column:external_id;index"`
	ErrorCode    string          `db:"error_code"    gorm:"column:error_code"`
	ErrorMessage string          `db:"error_message" gorm:"column:error_message"`
	CallbackURL  string          `db:"callback_url"  gorm:"column:callback_url"`
	SentAt       *time.Time      `db:"sent_at"       gorm:"column:sent_at"`
	DeliveredAt  *time.Time      `db:"delivered_at"  gorm:"column:delivered_at"`
	CreatedAt    time.Time       `db:"created_at"    gorm:"column:created_at;autoCreateTime;index"`
}

func (MessageEntity) TableName() string {
	return "messages"
}

func toMessageEntity(m *model.Message) *MessageEntity {
	if m == nil {
		return nil
	}
	return &MessageEntity{
		ID:           m.ID,
		MerchantID:   m.MerchantID,
		ChannelID:    m.ChannelID,
		Destination:  m.Destination,
		CountryCode:  m.CountryCode,
		MessageType:  string(m.MessageType),
		Content:      m.Content,
		Segments:     m.Segments,
		Encoding:     string(m.Encoding),
		Cost:         m.Cost,
		Currency:     m.Currency,
		Status:       string(m.Status),
		ExternalID:   m.ExternalID,
		ErrorCode:    m.ErrorCode,
		ErrorMessage: m.ErrorMessage,
		CallbackURL:  m.CallbackURL,
		SentAt:       m.SentAt,
		DeliveredAt:  m.DeliveredAt,
		CreatedAt:    m.CreatedAt,
	}
}

func toMessageModel(e *MessageEntity) *model.Message {
	if e == nil {
		return nil
	}
	return &model.Message{
		ID:           e.ID,
		MerchantID:   e.MerchantID,
		ChannelID:    e.ChannelID,
		Destination:  e.Destination,
		CountryCode:  e.CountryCode,
		MessageType:  model.MessageType(e.MessageType),
		Content:      e.Content,
		Segments:     e.Segments,
		Encoding:     model.Encoding(e.Encoding),
		Cost:         e.Cost,
		Currency:     e.Currency,
		Status:       model.MessageStatus(e.Status),
		ExternalID:   e.ExternalID,
		ErrorCode:    e.ErrorCode,
		ErrorMessage: e.ErrorMessage,
		CallbackURL:  e.CallbackURL,
		SentAt:       e.SentAt,
		DeliveredAt:  e.DeliveredAt,
		CreatedAt:    e.CreatedAt,
	}
}

func toMessageModels(entities []*MessageEntity) []*model.Message {
	if entities == nil {
		return nil
	}
	models := make([]*model.Message, len(entities))
	for i, e := range entities {
		models[i] = toMessageModel(e)
	}
	return models
}
