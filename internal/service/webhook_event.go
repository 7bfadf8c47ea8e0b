package service

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventKind is the normalised meaning of a gateway event.
type EventKind string

const (
	EventSucceeded       EventKind = "succeeded"
	EventFailed          EventKind = "failed"
	EventMethodActivated EventKind = "method_activated"
	EventMethodExpired   EventKind = "method_expired"
	EventUnknown         EventKind = "unknown"
)

var eventNames = map[string]EventKind{
	"payment.succeeded":        EventSucceeded,
	"payment.paid":             EventSucceeded,
	"fva.paid":                 EventSucceeded,
	"qr.payment":               EventSucceeded,
	"payment.failed":           EventFailed,
	"payment_method.activated": EventMethodActivated,
	"payment_method.expired":   EventMethodExpired,
}

// legacyStatuses maps the generic status field of older callback shapes.
var legacyStatuses = map[string]EventKind{
	"PAID":      EventSucceeded,
	"SUCCEEDED": EventSucceeded,
	"SETTLED":   EventSucceeded,
	"COMPLETED": EventSucceeded,
	"FAILED":    EventFailed,
	"EXPIRED":   EventMethodExpired,
	"INACTIVE":  EventMethodExpired,
	"ACTIVE":    EventMethodActivated,
}

// WebhookEvent is a parsed gateway callback.
type WebhookEvent struct {
	Name      string
	Kind      EventKind
	Reference string
	Status    string
}

type webhookPayload struct {
	Event      string       `json:"event"`
	ExternalID string       `json:"external_id"`
	Status     string       `json:"status"`
	Data       *webhookData `json:"data"`
}

type webhookData struct {
	ReferenceID string `json:"reference_id"`
	ExternalID  string `json:"external_id"`
	ID          string `json:"id"`
	Status      string `json:"status"`
}

// ParseWebhookEvent decodes a callback body. Invalid JSON returns
// ErrMalformedPayload. A body without any correlation key returns the parsed
// event together with ErrMissingReference.
func ParseWebhookEvent(raw []byte) (*WebhookEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	event := &WebhookEvent{
		Name:   strings.TrimSpace(payload.Event),
		Status: strings.TrimSpace(payload.Status),
	}

	if payload.Data != nil {
		event.Reference = firstNonEmpty(payload.Data.ReferenceID, payload.Data.ExternalID, payload.Data.ID)
		if payload.Data.Status != "" {
			event.Status = strings.TrimSpace(payload.Data.Status)
		}
	}
	if event.Reference == "" {
		event.Reference = strings.TrimSpace(payload.ExternalID)
	}

	event.Kind = classify(event.Name, event.Status)

	if event.Reference == "" {
		return event, ErrMissingReference
	}
	return event, nil
}

func classify(name, status string) EventKind {
	if kind, ok := eventNames[strings.ToLower(name)]; ok {
		return kind
	}
	if kind, ok := legacyStatuses[strings.ToUpper(status)]; ok {
		return kind
	}
	return EventUnknown
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
