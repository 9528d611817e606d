package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/ent0n29/anuva/internal/config"
	"github.com/ent0n29/anuva/internal/conversation"
	"github.com/ent0n29/anuva/internal/memory"
	"github.com/ent0n29/anuva/internal/observability"
	"github.com/ent0n29/anuva/internal/session"
	"github.com/ent0n29/anuva/internal/speech"
)

const ttsNotConfiguredMessage = "TTS not configured (ELEVENLABS_API_KEY or VOICE_ID missing)"

// Chat is the conversation surface the API drives.
type Chat interface {
	HandleTurn(ctx context.Context, req conversation.Request) (conversation.Reply, error)
	ClearSession(ctx context.Context, sessionID string) error
	Transcript(ctx context.Context, sessionID string, limit int) ([]memory.Turn, session.View)
}

// Backends describes which implementations were selected at startup.
type Backends struct {
	ShortTerm string `json:"short_term"`
	Facts     string `json:"facts"`
	Provider  string `json:"provider"`
	Speech    string `json:"speech"`
}

type Server struct {
	cfg      config.Config
	chat     Chat
	facts    memory.FactStore
	speech   *speech.Service
	metrics  *observability.Metrics
	backends Backends
}

func New(cfg config.Config, chat Chat, facts memory.FactStore, speechSvc *speech.Service, metrics *observability.Metrics, backends Backends) *Server {
	return &Server{
		cfg:      cfg,
		chat:     chat,
		facts:    facts,
		speech:   speechSvc,
		metrics:  metrics,
		backends: backends,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(s.cors)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"message": "AI Companion API server running",
		})
	})
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/perf/latency", s.handlePerfLatency)

		r.Post("/chat", s.handleChat)
		r.Get("/chat/{sessionId}", s.handleTranscript)
		r.Delete("/chat/{sessionId}", s.handleClearSession)

		r.Post("/facts", s.handleSaveFact)
		r.Get("/facts/{userId}", s.handleListFacts)
		r.Delete("/facts/{userId}", s.handleClearFacts)

		r.Post("/tts", s.handleTTS)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ready",
		"backends": s.backends,
	})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.SnapshotLatency())
}

type chatRequest struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Input     string `json:"input"`
	UseTTS    bool   `json:"useTTS"`
}

type chatResponse struct {
	Text string `json:"text"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "", conversation.ErrInvalidRequest.Error())
		return
	}

	reply, err := s.chat.HandleTurn(r.Context(), conversation.Request{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Input:     req.Input,
	})
	if err != nil {
		if errors.Is(err, conversation.ErrInvalidRequest) {
			respondError(w, http.StatusBadRequest, "", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "chat_error", err.Error())
		return
	}

	if req.UseTTS && s.speech.Configured() {
		s.speech.Prefetch("", reply.Text)
	}
	respondJSON(w, http.StatusOK, chatResponse{Text: reply.Text})
}

type transcriptResponse struct {
	Session session.View  `json:"session"`
	Turns   []memory.Turn `json:"turns"`
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionId"))
	limit, err := limitParam(r, memory.MaxTurns)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}
	turns, view := s.chat.Transcript(r.Context(), sessionID, limit)
	if turns == nil {
		turns = []memory.Turn{}
	}
	respondJSON(w, http.StatusOK, transcriptResponse{Session: view, Turns: turns})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if err := s.chat.ClearSession(r.Context(), sessionID); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_session_id", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

type saveFactRequest struct {
	UserID string `json:"userId"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

func (s *Server) handleSaveFact(w http.ResponseWriter, r *http.Request) {
	var req saveFactRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "", conversation.ErrInvalidRequest.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Key) == "" || strings.TrimSpace(req.Value) == "" {
		respondError(w, http.StatusBadRequest, "", conversation.ErrInvalidRequest.Error())
		return
	}
	fact, err := s.facts.SaveFact(r.Context(), req.UserID, req.Key, req.Value)
	if err != nil {
		log.WithError(err).WithField("user_id", req.UserID).Error("facts: save failed")
		respondError(w, http.StatusInternalServerError, "fact_store_error", "could not save fact")
		return
	}
	respondJSON(w, http.StatusCreated, fact)
}

func (s *Server) handleListFacts(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	limit, err := limitParam(r, memory.DefaultFactLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}

	var facts []memory.Fact
	if q := r.URL.Query().Get("q"); q != "" {
		facts, err = s.facts.SearchFacts(r.Context(), userID, q, limit)
	} else {
		facts, err = s.facts.GetFacts(r.Context(), userID)
	}
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("facts: lookup failed")
		respondError(w, http.StatusInternalServerError, "fact_store_error", "could not load facts")
		return
	}
	if facts == nil {
		facts = []memory.Fact{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"facts": facts})
}

func (s *Server) handleClearFacts(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	if err := s.facts.ClearFacts(r.Context(), userID); err != nil {
		log.WithError(err).WithField("user_id", userID).Error("facts: clear failed")
		respondError(w, http.StatusInternalServerError, "fact_store_error", "could not clear facts")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

type ttsRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId"`
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "", speech.ErrEmptyText.Error())
		return
	}
	if !s.speech.Configured() {
		respondError(w, http.StatusInternalServerError, "", ttsNotConfiguredMessage)
		return
	}

	audio, err := s.speech.Synthesize(r.Context(), req.VoiceID, req.Text)
	switch {
	case err == nil:
	case errors.Is(err, speech.ErrNotConfigured):
		respondError(w, http.StatusInternalServerError, "", ttsNotConfiguredMessage)
		return
	case errors.Is(err, context.Canceled):
		return
	default:
		log.WithError(err).Warn("tts: synthesis failed")
		respondJSON(w, http.StatusBadGateway, errorResponse{Error: "tts_provider_error", Detail: err.Error()})
		return
	}

	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio.Data)
}

func (s *Server) cors(next http.Handler) http.Handler {
	origin := strings.TrimSpace(s.cfg.CORSAllowOrigin)
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if origin != "*" {
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
			return
		}
		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"elapsed_ms": time.Since(start).Milliseconds(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("http: request")
	})
}

func limitParam(r *http.Request, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return n, nil
}

type errorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

var errEmptyBody = errors.New("empty request body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
