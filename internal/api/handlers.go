package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Ronald-silva/agenbot/internal/models"
	"github.com/Ronald-silva/agenbot/internal/store"
)

// voiceFilename is the attachment name for synthesized audio replies.
const voiceFilename = "resposta.mp3"

// webhookHandler processes one inbound gateway callback. Echoes of our own
// sends are acknowledged and dropped; malformed payloads are the only
// client-visible errors; every downstream failure still acknowledges the
// event so the gateway does not re-deliver it.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var msg models.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		slog.Warn("Server.webhookHandler: failed to decode payload", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if !msg.IsCustomerMessage() {
		slog.Debug("Server.webhookHandler: non-customer callback ignored",
			"type", msg.Type, "from_me", msg.FromMe, "from_api", msg.FromAPI)
		writeJSONResponse(w, http.StatusOK, models.Success())
		return
	}

	phone := msg.PhoneNumber()
	if phone == "" {
		slog.Warn("Server.webhookHandler: payload without phone")
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrMissingPhone.Error()))
		return
	}
	text := msg.MessageText()
	if strings.TrimSpace(text) == "" {
		slog.Warn("Server.webhookHandler: payload without message text", "phone", phone)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyMessage.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.turnTimeout)
	defer cancel()

	reply, err := s.engine.ProcessMessage(ctx, phone, text)
	if err != nil {
		if errors.Is(err, models.ErrMissingPhone) || errors.Is(err, models.ErrEmptyMessage) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		// The engine degrades internally; anything else is unexpected but
		// must still acknowledge the event.
		slog.Error("Server.webhookHandler: turn processing failed", "error", err, "phone", phone)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithDelivery(false))
		return
	}

	delivered := s.deliver(ctx, phone, reply)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithDelivery(delivered))
}

// deliver sends the reply text and, when voice replies are enabled, a
// synthesized audio version. Delivery failure is logged and reported in the
// response body, never as an HTTP error.
func (s *Server) deliver(ctx context.Context, phone, reply string) bool {
	if s.msgService == nil {
		return false
	}

	if err := s.msgService.SendMessage(ctx, phone, reply); err != nil {
		slog.Error("Server.deliver: text delivery failed", "error", err, "phone", phone)
		return false
	}

	if s.voiceReplies && s.genAI != nil {
		audio, err := s.genAI.Speech(ctx, reply)
		if err != nil {
			slog.Warn("Server.deliver: speech synthesis failed, text-only reply", "error", err, "phone", phone)
			return true
		}
		if err := s.msgService.SendAudio(ctx, phone, audio, voiceFilename); err != nil {
			slog.Warn("Server.deliver: audio delivery failed, text-only reply", "error", err, "phone", phone)
		}
	}
	return true
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success())
}

// gatewayHealthHandler reports whether the messaging gateway instance is
// connected to WhatsApp.
func (s *Server) gatewayHealthHandler(w http.ResponseWriter, r *http.Request) {
	if s.gateway == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("gateway status not configured"))
		return
	}
	status, err := s.gateway.Status(r.Context())
	if err != nil {
		slog.Warn("Server.gatewayHealthHandler: status probe failed", "error", err)
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("gateway unreachable"))
		return
	}
	if !status.Connected || !status.SmartphoneConnected {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("gateway offline"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success())
}

// backendProvider is implemented by caching stores that wrap a durable
// backend. The health probe targets the durable layer, since the cache
// swallows backend failures to keep message processing alive.
type backendProvider interface {
	Backend() store.Store
}

// storeHealthHandler performs a read round-trip against the state store.
func (s *Server) storeHealthHandler(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("store not configured"))
		return
	}
	probe := s.store
	if c, ok := probe.(backendProvider); ok {
		probe = c.Backend()
	}
	if _, err := probe.GetConversationState("healthcheck"); err != nil {
		slog.Warn("Server.storeHealthHandler: store probe failed", "error", err)
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("store unreachable"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success())
}

// conversationsHandler routes /conversations/{phone}. Only DELETE is
// supported: the administrative reset used by support tooling and tests.
func (s *Server) conversationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", http.MethodDelete)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("unauthorized"))
		return
	}

	phone := strings.TrimPrefix(r.URL.Path, "/conversations/")
	phone = strings.Trim(phone, "/")
	if phone == "" || strings.Contains(phone, "/") {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("phone number missing from path"))
		return
	}

	if err := s.states.Reset(phone); err != nil {
		slog.Error("Server.conversationsHandler: reset failed", "error", err, "phone", phone)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to reset conversation"))
		return
	}
	slog.Info("Server.conversationsHandler: conversation reset", "phone", phone)
	writeJSONResponse(w, http.StatusOK, models.Success())
}

// authorized checks the admin bearer token. An empty configured token
// leaves the administrative endpoints open (development mode).
func (s *Server) authorized(r *http.Request) bool {
	if s.adminToken == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+s.adminToken
}
