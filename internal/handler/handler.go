package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"quiz-rewards-api/internal/features"
	"quiz-rewards-api/internal/logging"
	"quiz-rewards-api/internal/models"
	"quiz-rewards-api/internal/service"
	"quiz-rewards-api/internal/session"
	"quiz-rewards-api/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	logger      logging.Logger
	maxBodySize int64
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
	Logger      logging.Logger
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 1 << 20, // 1MB
		Logger:      logging.Discard(),
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service) *Handler {
	return NewHandlerWithOptions(svc, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, opts NewHandlerOptions) *Handler {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultHandlerOptions().MaxBodySize
	}
	return &Handler{
		service:     svc,
		logger:      opts.Logger,
		maxBodySize: opts.MaxBodySize,
	}
}

// Routes mounts every endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/quiz/{quiz}", h.GetQuestion)
	r.Post("/quiz/{quiz}", h.AnswerQuestion)
	r.Post("/wheel/{wheel}", h.SpinWheel)
	r.Get("/stats", h.Stats)
	r.Post("/checkout", h.Checkout)
	r.Get("/health", h.Health)
}

// GetQuestion handles GET /quiz/{quiz}
func (h *Handler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	state, ok := h.userState(w, r)
	if !ok {
		return
	}

	question, err := h.service.NextQuestion(chi.URLParam(r, "quiz"), state)
	if err != nil {
		h.respondError(w, http.StatusNotFound, models.ErrorCodeNotFound)
		return
	}

	token, ok := h.encode(w, r, state)
	if !ok {
		return
	}

	h.respondJSON(w, http.StatusOK, models.QuizQuestionResponse{
		Question: question.Question,
		Choices:  h.service.Choices(question),
		Token:    token,
	})
}

// AnswerQuestion handles POST /quiz/{quiz}
func (h *Handler) AnswerQuestion(w http.ResponseWriter, r *http.Request) {
	var req models.QuizAnswerRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	state, ok := h.userState(w, r)
	if !ok {
		return
	}

	correct, question, err := h.service.AnswerQuestion(r.Context(), chi.URLParam(r, "quiz"), &state, req.Answer)
	if err != nil {
		h.respondError(w, http.StatusNotFound, models.ErrorCodeNotFound)
		return
	}

	token, ok := h.encode(w, r, state)
	if !ok {
		return
	}

	h.respondJSON(w, http.StatusOK, models.QuizAnswerResponse{
		IsCorrect: correct,
		Correct:   question.Correct,
		Token:     token,
	})
}

// SpinWheel handles POST /wheel/{wheel}
func (h *Handler) SpinWheel(w http.ResponseWriter, r *http.Request) {
	state, ok := h.userState(w, r)
	if !ok {
		return
	}

	points, err := h.service.SpinWheel(r.Context(), chi.URLParam(r, "wheel"), &state)
	if err != nil {
		h.respondError(w, http.StatusNotFound, models.ErrorCodeNotFound)
		return
	}

	token, ok := h.encode(w, r, state)
	if !ok {
		return
	}

	h.respondJSON(w, http.StatusOK, models.WheelSpinResponse{
		Points: points,
		Token:  token,
	})
}

// Stats handles GET /stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if !h.service.FeatureEnabled(features.StatsEndpoint) {
		h.respondError(w, http.StatusNotFound, models.ErrorCodeNotFound)
		return
	}

	state, ok := h.userState(w, r)
	if !ok {
		return
	}

	h.respondJSON(w, http.StatusOK, models.StatsResponse{
		TotalPoints: h.service.Points(state),
	})
}

// Checkout handles POST /checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	state, ok := h.userState(w, r)
	if !ok {
		return
	}

	// The address is checked and stored exactly as submitted
	if err := validation.ValidateEmail(req.Email); err != nil {
		h.respondError(w, http.StatusNotFound, models.ErrorCodeNotFound)
		return
	}

	points, err := h.service.Register(r.Context(), req.Codes, req.Email, req.Consent, state)
	if err != nil {
		h.logger.Error(r.Context(), "checkout failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, models.ErrorCodeInternal)
		return
	}

	h.respondJSON(w, http.StatusOK, models.CheckoutResponse{Points: points})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// userState resolves the request's session. Token failures all map to the
// same 401 body.
func (h *Handler) userState(w http.ResponseWriter, r *http.Request) (models.UserState, bool) {
	state, err := h.service.UserFromAuthorization(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		if errors.Is(err, session.ErrUnauthorized) {
			h.logger.Debug(r.Context(), "rejected session token", "error", err)
			h.respondError(w, http.StatusUnauthorized, models.ErrorCodeUnauthorized)
			return models.UserState{}, false
		}
		h.logger.Error(r.Context(), "failed to resolve session", "error", err)
		h.respondError(w, http.StatusInternalServerError, models.ErrorCodeInternal)
		return models.UserState{}, false
	}
	return state, true
}

func (h *Handler) encode(w http.ResponseWriter, r *http.Request, state models.UserState) (string, bool) {
	token, err := h.service.EncodeUser(state)
	if err != nil {
		h.logger.Error(r.Context(), "failed to encode session", "error", err)
		h.respondError(w, http.StatusInternalServerError, models.ErrorCodeInternal)
		return "", false
	}
	return token, true
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	// Limit request body size to prevent abuse
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return false
	}
	return true
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
