package amqp

import (
	"encoding/json"
	"time"
)

// WebhookEvent mirrors the provider's webhook payload. The web-facing
// receiver publishes one per delivery; the daemon consumes them and
// triggers syncs.
type WebhookEvent struct {
	WebhookType string    `json:"webhook_type"`
	WebhookCode string    `json:"webhook_code"`
	ItemID      string    `json:"item_id"`
	ReceivedAt  time.Time `json:"received_at"`
}

// NewWebhookEvent creates an event stamped with the current time.
func NewWebhookEvent(webhookType, webhookCode, itemID string) *WebhookEvent {
	return &WebhookEvent{
		WebhookType: webhookType,
		WebhookCode: webhookCode,
		ItemID:      itemID,
		ReceivedAt:  time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *WebhookEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WebhookEventFromJSON creates an event from JSON bytes
func WebhookEventFromJSON(data []byte) (*WebhookEvent, error) {
	var e WebhookEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
