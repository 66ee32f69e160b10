// Package sms answers Twilio SMS webhooks with a chat turn.
package sms

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"

	"hound-taskchat/internal/chat"
	"hound-taskchat/shared/idempotency"
	"hound-taskchat/shared/logging"
)

// ConversationID groups all SMS turns of a sender.
const ConversationID = "sms"

// Chatter runs one chat turn.
type Chatter interface {
	Handle(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// WebhookHandler handles Twilio SMS webhooks
type WebhookHandler struct {
	chat            Chatter
	logger          *logging.Logger
	twilioAuthToken string
	webhookURL      string
	dialect         string
	timezone        string
}

// NewWebhookHandler creates a new webhook handler. Signatures are only
// checked when twilioAuthToken is set.
func NewWebhookHandler(c Chatter, logger *logging.Logger, twilioAuthToken string) *WebhookHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &WebhookHandler{
		chat:            c,
		logger:          logger,
		twilioAuthToken: twilioAuthToken,
	}
}

// SetWebhookURL sets the URL used for signature validation
func (h *WebhookHandler) SetWebhookURL(url string) {
	h.webhookURL = url
}

// SetDefaults sets the dialect and timezone used for SMS senders.
func (h *WebhookHandler) SetDefaults(dialect, timezone string) {
	h.dialect = dialect
	h.timezone = timezone
}

// ServeHTTP handles an incoming SMS and replies with TwiML.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.logger.Error("Failed to parse form: %v", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := strings.TrimSpace(r.FormValue("Body"))
	messageSid := r.FormValue("MessageSid")

	if from == "" || messageSid == "" {
		h.logger.Error("Missing required fields: From=%s, MessageSid=%s", from, messageSid)
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	if h.twilioAuthToken != "" && !h.validateSignature(r) {
		h.logger.Error("Invalid Twilio signature for message %s", messageSid)
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return
	}
	if body == "" {
		h.logger.Warn("Empty message from %s (sid: %s)", from, messageSid)
		h.writeTwiML(w, "")
		return
	}

	resp, err := h.chat.Handle(r.Context(), chat.Request{
		UserID:         from,
		Message:        body,
		ConversationID: ConversationID,
		RequestID:      messageSid,
		Dialect:        h.dialect,
		Timezone:       h.timezone,
		IdempotencyKey: idempotency.GenerateKey("sms", messageSid),
	})
	if err != nil {
		h.logger.Error("Chat turn for %s failed: %v", messageSid, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Answered SMS from %s (sid: %s)", from, messageSid)
	h.writeTwiML(w, resp.Reply)
}

// writeTwiML answers with one <Message>, or an empty <Response> for no reply.
func (h *WebhookHandler) writeTwiML(w http.ResponseWriter, reply string) {
	var verbs []twiml.Element
	if reply != "" {
		verbs = append(verbs, &twiml.MessagingMessage{Body: reply})
	}
	doc, err := twiml.Messages(verbs)
	if err != nil {
		h.logger.Error("Failed to render TwiML: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, doc)
}

func (h *WebhookHandler) validateSignature(r *http.Request) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}

	url := h.webhookURL
	if url == "" {
		scheme := "https"
		if r.TLS == nil {
			scheme = "http"
		}
		url = fmt.Sprintf("%s://%s%s", scheme, r.Host, r.URL.Path)
	}

	validator := client.NewRequestValidator(h.twilioAuthToken)

	params := make(map[string]string)
	for key, values := range r.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return validator.Validate(url, params, signature)
}
