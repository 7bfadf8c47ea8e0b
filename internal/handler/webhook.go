package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"

	"booking/internal/service"
)

const maxWebhookBody = 1 << 20

// webhookProcessor is the part of the dispatcher the handler needs.
type webhookProcessor interface {
	Handle(ctx context.Context, raw []byte) (*service.WebhookResult, error)
}

// WebhookHandler receives payment gateway callbacks.
type WebhookHandler struct {
	dispatcher webhookProcessor
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(dispatcher webhookProcessor) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher}
}

// WebhookResponse acknowledges a delivered event.
type WebhookResponse struct {
	Status    string `json:"status"`
	Reference string `json:"reference,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Receive handles POST /payments/webhook. Any 2xx tells the gateway the event
// is settled; everything else is retried.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		respondError(c, service.ErrMalformedPayload)
		return
	}
	if len(body) > maxWebhookBody {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "webhook payload too large"})
		return
	}

	ctx := c.Request.Context()
	if txn := nrgin.Transaction(c); txn != nil {
		ctx = newrelic.NewContext(ctx, txn)
	}

	result, err := h.dispatcher.Handle(ctx, body)
	if err != nil {
		if errors.Is(err, service.ErrMissingReference) {
			respondJSON(c, http.StatusOK, WebhookResponse{Status: string(service.OutcomeIgnored)})
			return
		}
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, WebhookResponse{
		Status:    string(result.Outcome),
		Reference: result.Reference,
		Reason:    result.Reason,
	})
}
