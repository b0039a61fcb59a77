package fixtures

import (
	"time"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/shopspring/decimal"
)

var (
	TestMerchantFunded = model.Merchant{
		ID:       1,
		Name:     "acme",
		APIKey:   "test-api-key-1",
		Balance:  decimal.RequireFromString("100"),
		Currency: "USD",
		Status:   model.MerchantStatusActive,
	}

	TestMerchantLowBalance = model.Merchant{
		ID:       2,
		Name:     "shoestring",
		APIKey:   "test-api-key-2",
		Balance:  decimal.RequireFromString("0.01"),
		Currency: "USD",
		Status:   model.MerchantStatusActive,
	}

	TestMerchantSuspended = model.Merchant{
		ID:       3,
		Name:     "frozen",
		APIKey:   "test-api-key-3",
		Balance:  decimal.RequireFromString("50"),
		Currency: "USD",
		Status:   model.MerchantStatusSuspended,
	}
)

func NewTestChannel(id int64, provider string, chType model.ChannelType, priority int) *model.Channel {
	return &model.Channel{
		ID:          id,
		Name:        provider + "-test",
		Provider:    provider,
		Type:        chType,
		Status:      model.ChannelStatusActive,
		SuccessRate: 1,
		Priority:    priority,
		CreatedAt:   time.Now(),
	}
}

func NewTestSendRequest(merchantID int64, destination, content string) model.SendRequest {
	return model.SendRequest{
		MerchantID:  merchantID,
		Destination: destination,
		Content:     content,
		MessageType: model.MessageTypeSMS,
	}
}
