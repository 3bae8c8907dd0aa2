package amqp

import (
	"testing"
	"time"
)

func TestWebhookEventRoundTrip(t *testing.T) {
	event := NewWebhookEvent("TRANSACTIONS", "DEFAULT_UPDATE", "item-123")
	if event.ReceivedAt.IsZero() {
		t.Error("ReceivedAt not stamped")
	}

	data, err := event.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() err = %v", err)
	}

	decoded, err := WebhookEventFromJSON(data)
	if err != nil {
		t.Fatalf("WebhookEventFromJSON() err = %v", err)
	}
	if decoded.WebhookType != "TRANSACTIONS" || decoded.WebhookCode != "DEFAULT_UPDATE" || decoded.ItemID != "item-123" {
		t.Errorf("decoded = %+v", decoded)
	}
	if !decoded.ReceivedAt.Truncate(time.Second).Equal(event.ReceivedAt.Truncate(time.Second)) {
		t.Errorf("ReceivedAt = %v, want %v", decoded.ReceivedAt, event.ReceivedAt)
	}
}

func TestWebhookEventFromJSONInvalid(t *testing.T) {
	if _, err := WebhookEventFromJSON([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
