package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"botkit/pkg/bot"
	"botkit/pkg/channel"
	"botkit/pkg/schema"
	"botkit/pkg/store"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

const maxRequestBodyBytes = 1 << 20

type conversationResponse struct {
	Key string `json:"key"`
	store.Record
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type createConversationRequest struct {
	Channel   string                  `json:"channel"`
	Members   []schema.ChannelAccount `json:"members"`
	TopicName string                  `json:"topicName,omitempty"`
	IsGroup   bool                    `json:"isGroup,omitempty"`
	Text      string                  `json:"text,omitempty"`
}

type activityResponse struct {
	Key string `json:"key"`
	ID  string `json:"id,omitempty"`
}

// errTurnStopped reports a proactive turn that a middleware stopped before
// the handler ran.
var errTurnStopped = errors.New("turn was stopped by middleware")

type errorResponse struct {
	Error string `json:"error"`
}

// Router serves health, readiness, the conversation API and every mountable
// channel.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/conversations", func(r chi.Router) {
		r.Get("/", s.handleListConversations)
		r.Post("/", s.handleCreateConversation)
		r.Post("/{key}/messages", s.handleSendMessage)
	})

	for _, ch := range s.channels {
		if mountable, ok := ch.(channel.Mountable); ok {
			r.Handle(mountable.Path(), mountable)
		}
	}

	return r
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.currentStatus("ok"))
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.writeJSON(w, statusCode, s.currentStatus(status))
}

func (s *Service) handleListConversations(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	conversations := make([]conversationResponse, 0, len(records))
	for _, record := range records {
		conversations = append(conversations, conversationResponse{Key: record.Key(), Record: record})
	}

	s.writeJSON(w, http.StatusOK, conversations)
}

// handleSendMessage continues a stored conversation with a proactive message.
func (s *Service) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid conversation key: %w", err))
		return
	}
	if _, _, ok := schema.ParseReferenceKey(key); !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid conversation key %q", key))
		return
	}

	var request sendMessageRequest
	if err := decodeJSON(w, r, &request); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	text := strings.TrimSpace(request.Text)
	if text == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}

	record, err := s.store.Get(r.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	adapter, ok := s.adapters[record.Reference.ChannelID]
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("channel %q is not running", record.Reference.ChannelID))
		return
	}

	reference := record.Reference
	reference.ActivityID = ""

	var sent schema.ResourceResponse
	handled := false
	err = adapter.ContinueConversation(r.Context(), &reference, func(ctx context.Context, turn *bot.TurnContext) error {
		handled = true
		responses, err := turn.SendActivities(ctx, reference.ApplyTo(schema.NewMessage(text)))
		if err != nil {
			return err
		}
		if len(responses) > 0 {
			sent = responses[0]
		}
		return nil
	})
	if err == nil && !handled {
		err = errTurnStopped
	}
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}

	s.writeJSON(w, http.StatusCreated, activityResponse{Key: key, ID: sent.ID})
}

// handleCreateConversation asks a channel to open a conversation and sends the
// optional first message in it.
func (s *Service) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var request createConversationRequest
	if err := decodeJSON(w, r, &request); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	channelID := strings.TrimSpace(request.Channel)
	adapter, ok := s.adapters[channelID]
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("channel %q is not running", channelID))
		return
	}

	params := schema.ConversationParameters{
		Members:   request.Members,
		TopicName: request.TopicName,
		IsGroup:   request.IsGroup,
	}
	if text := strings.TrimSpace(request.Text); text != "" {
		params.Activity = schema.NewMessage(text)
	}

	var created schema.ConversationReference
	handled := false
	err := adapter.CreateConversation(r.Context(), channelID, params, func(_ context.Context, turn *bot.TurnContext) error {
		handled = true
		created, _ = turn.ContinuedReference()
		return nil
	})
	if err == nil && !handled {
		err = errTurnStopped
	}
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}

	s.log.Info("Conversation created", "key", created.Key())
	s.writeJSON(w, http.StatusCreated, activityResponse{Key: created.Key()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}

	return nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, bot.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, bot.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, errTurnStopped):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Service) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write response", "error", err)
	}
}

func (s *Service) writeError(w http.ResponseWriter, statusCode int, err error) {
	if statusCode >= http.StatusInternalServerError {
		s.log.Warn("Gateway request failed", "status", statusCode, "error", err)
	}
	s.writeJSON(w, statusCode, errorResponse{Error: err.Error()})
}
