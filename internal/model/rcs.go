package model

import "strings"

// RichMessageKind discriminates the provider-agnostic RCS descriptor.
type RichMessageKind string

const (
	RichKindText     RichMessageKind = "text"
	RichKindImage    RichMessageKind = "image"
	RichKindRichCard RichMessageKind = "richCard"
	RichKindCarousel RichMessageKind = "carousel"
)

// SuggestionType is the semantic intent of a suggestion chip. Each
// provider has its own wire schema for these; adapters translate.
type SuggestionType string

const (
	SuggestionReply    SuggestionType = "reply"
	SuggestionOpenURL  SuggestionType = "openUrl"
	SuggestionDial     SuggestionType = "dial"
	SuggestionLocation SuggestionType = "location"
)

type Suggestion struct {
	Type        SuggestionType `json:"type"`
	Text        string         `json:"text"`
	PostbackData string        `json:"postback_data,omitempty"`
	URL         string         `json:"url,omitempty"`
	PhoneNumber string         `json:"phone_number,omitempty"`
	Latitude    float64        `json:"latitude,omitempty"`
	Longitude   float64        `json:"longitude,omitempty"`
	Label       string         `json:"label,omitempty"`
}

type RichCard struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	MediaURL    string       `json:"media_url,omitempty"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// RichMessage is the provider-agnostic RCS payload. Exactly one of the
// kind-specific fields is populated according to Kind.
type RichMessage struct {
	Kind        RichMessageKind `json:"kind"`
	Text        string          `json:"text,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	Card        *RichCard       `json:"card,omitempty"`
	Cards       []RichCard      `json:"cards,omitempty"`
	Suggestions []Suggestion    `json:"suggestions,omitempty"`
}

// PlainText renders the rich message as SMS-safe text, used when the
// destination lacks RCS capability and the caller allowed SMS fallback.
func (m *RichMessage) PlainText() string {
	switch m.Kind {
	case RichKindText:
		return m.Text
	case RichKindImage:
		return m.ImageURL
	case RichKindRichCard:
		if m.Card == nil {
			return ""
		}
		return cardText(*m.Card)
	case RichKindCarousel:
		parts := make([]string, 0, len(m.Cards))
		for _, c := range m.Cards {
			parts = append(parts, cardText(c))
		}
		return strings.Join(parts, "\n")
	}
	return m.Text
}

func cardText(c RichCard) string {
	var b strings.Builder
	b.WriteString(c.Title)
	if c.Description != "" {
		b.WriteString(" - ")
		b.WriteString(c.Description)
	}
	if c.MediaURL != "" {
		b.WriteString(" ")
		b.WriteString(c.MediaURL)
	}
	return b.String()
}

// RCSSendRequest is the input for the rich-message path.
type RCSSendRequest struct {
	MerchantID  int64
	Destination string
	Message     RichMessage
	FallbackSMS bool
	CallbackURL string
}
