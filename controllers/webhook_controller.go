package controllers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Roland735/cribmatch-website-sub000/logger"
	"github.com/Roland735/cribmatch-website-sub000/middleware"
	"github.com/Roland735/cribmatch-website-sub000/services"
	"github.com/gin-gonic/gin"
)

// TurnHandler runs chatbot turns and applies delivery receipts
type TurnHandler interface {
	HandleInbound(ctx context.Context, msg *services.InboundMessage) services.TurnResult
	HandleStatuses(ctx context.Context, statuses []services.DeliveryStatus) int
}

// FlowHandler answers decrypted Flow data exchange requests
type FlowHandler interface {
	Handle(ctx context.Context, req *services.FlowAction) (map[string]interface{}, error)
}

// EventRecorder keeps the raw webhook delivery
type EventRecorder interface {
	Record(ctx context.Context, kind services.PayloadKind, headers http.Header, body []byte, signatureValid bool)
}

// WebhookDeps wires the webhook controller
type WebhookDeps struct {
	VerifyToken string
	Bot         TurnHandler
	Flows       FlowHandler
	Codec       *services.FlowCodec
	Recorder    EventRecorder
	Log         *logger.Logger
}

// WebhookController serves the WhatsApp webhook and Flow endpoint
type WebhookController struct {
	WebhookDeps
}

// NewWebhookController creates the controller. Codec and Recorder may be nil.
func NewWebhookController(deps WebhookDeps) *WebhookController {
	if deps.Log == nil {
		deps.Log = logger.Discard()
	}
	deps.Log = deps.Log.WithComponent("webhook")
	return &WebhookController{WebhookDeps: deps}
}

// Verify handles GET /webhooks/whatsapp - the subscription handshake
func (w *WebhookController) Verify(c *gin.Context) {
	if w.VerifyToken == "" {
		w.Log.Error("webhook verification attempted without WHATSAPP_VERIFY_TOKEN")
		c.String(http.StatusInternalServerError, "verify token not configured")
		return
	}

	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	if mode != "subscribe" || subtle.ConstantTimeCompare([]byte(token), []byte(w.VerifyToken)) != 1 {
		c.String(http.StatusForbidden, "forbidden")
		return
	}

	c.String(http.StatusOK, c.Query("hub.challenge"))
}

// Receive handles POST /webhooks/whatsapp - messages, receipts and Flow exchanges
func (w *WebhookController) Receive(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := middleware.RawBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "note": "unreadable-body"})
		return
	}

	parsed := services.NormalizePayload(body)
	if w.Recorder != nil {
		w.Recorder.Record(ctx, parsed.Kind, c.Request.Header, body, middleware.SignatureValid(c))
	}

	switch {
	case parsed.Flow != nil:
		w.flow(c, parsed.Flow)
	case len(parsed.Statuses) > 0:
		matched := w.Bot.HandleStatuses(ctx, parsed.Statuses)
		c.JSON(http.StatusOK, gin.H{"ok": true, "note": "status", "matched": matched})
	case parsed.Message != nil:
		c.JSON(http.StatusOK, w.Bot.HandleInbound(ctx, parsed.Message))
	default:
		if !json.Valid(body) {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "note": "invalid-json"})
			return
		}
		c.JSON(http.StatusOK, services.TurnResult{OK: true, Note: services.NoteIgnored})
	}
}

func (w *WebhookController) flow(c *gin.Context, req *services.FlowRequest) {
	ctx := c.Request.Context()

	if !req.Encrypted {
		resp, err := w.Flows.Handle(ctx, req.Plain)
		if err != nil {
			w.flowError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	session, err := w.Codec.Open(req.Envelope)
	if err != nil {
		w.flowError(c, err)
		return
	}

	var action services.FlowAction
	if err := json.Unmarshal(session.Plaintext, &action); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_FLOW_REQUEST", "message": "decrypted flow request is not JSON"})
		return
	}

	resp, err := w.Flows.Handle(ctx, &action)
	if err != nil {
		w.flowError(c, err)
		return
	}

	sealed, err := w.Codec.Seal(session, resp)
	if err != nil {
		w.flowError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/plain", []byte(sealed))
}

func (w *WebhookController) flowError(c *gin.Context, err error) {
	var flowErr *services.FlowError
	if !errors.As(err, &flowErr) {
		w.Log.WithError(err).Error("flow request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR", "message": "flow request failed"})
		return
	}
	if flowErr.Status >= http.StatusInternalServerError {
		w.Log.WithError(err).Error("flow request failed", "code", flowErr.Code)
	} else {
		w.Log.WithError(err).Warn("flow request rejected", "code", flowErr.Code)
	}
	c.JSON(flowErr.Status, gin.H{"error": flowErr.Code, "message": flowErr.Message})
}
