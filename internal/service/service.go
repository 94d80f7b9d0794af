package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"

	"quiz-rewards-api/internal/catalog"
	"quiz-rewards-api/internal/events"
	"quiz-rewards-api/internal/features"
	"quiz-rewards-api/internal/logging"
	"quiz-rewards-api/internal/models"
	"quiz-rewards-api/internal/quiz"
	"quiz-rewards-api/internal/records"
	"quiz-rewards-api/internal/session"
	"quiz-rewards-api/internal/tracing"
)

// ErrNotFound means the quiz or wheel is unknown, or has nothing left to
// do for this session. It is a normal outcome.
var ErrNotFound = errors.New("not found")

// Service provides the session operations used by the HTTP layer.
//
// Every operation works on a state owned by the calling request. Methods
// taking *models.UserState mutate it in place; the caller re-encodes it
// with EncodeUser and hands the new token back to the client.
type Service struct {
	catalog  *catalog.Catalog
	codec    *session.Codec
	recorder *records.Recorder
	rng      quiz.Rand
	events   *events.Manager
	features *features.Manager
	tracer   *tracing.Tracer
	logger   logging.Logger
}

// Options holds optional collaborators. Zero values fall back to
// math/rand/v2, no events, every feature on, a no-op tracer and a
// discarding logger.
type Options struct {
	Rand     quiz.Rand
	Events   *events.Manager
	Features *features.Manager
	Tracer   *tracing.Tracer
	Logger   logging.Logger
}

// NewService creates a new service instance.
func NewService(cat *catalog.Catalog, codec *session.Codec, recorder *records.Recorder, opts Options) *Service {
	s := &Service{
		catalog:  cat,
		codec:    codec,
		recorder: recorder,
		rng:      opts.Rand,
		events:   opts.Events,
		features: opts.Features,
		tracer:   opts.Tracer,
		logger:   opts.Logger,
	}
	if s.rng == nil {
		s.rng = quiz.DefaultRand
	}
	if s.tracer == nil {
		s.tracer = tracing.Noop()
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	return s
}

// CreateUser returns an empty state with a fresh id.
func (s *Service) CreateUser() (models.UserState, error) {
	id, err := session.NewUserID()
	if err != nil {
		return models.UserState{}, fmt.Errorf("failed to generate user id: %w", err)
	}
	return models.NewUserState(id), nil
}

// DecodeUser verifies a token. Errors wrap session.ErrUnauthorized.
func (s *Service) DecodeUser(token string) (models.UserState, error) {
	return s.codec.Decode(token)
}

// EncodeUser signs state into a token.
func (s *Service) EncodeUser(state models.UserState) (string, error) {
	return s.codec.Encode(state)
}

// UserFromAuthorization resolves the Authorization header value into a
// state. A missing header starts a new session.
func (s *Service) UserFromAuthorization(ctx context.Context, header string) (models.UserState, error) {
	token, ok, err := session.ParseAuthorization(header)
	if err != nil {
		return models.UserState{}, err
	}
	if !ok {
		state, err := s.CreateUser()
		if err != nil {
			return models.UserState{}, err
		}
		s.events.Publish(ctx, events.EventSessionStarted, events.SessionStartedData{UserID: state.ID.String()})
		return state, nil
	}
	return s.DecodeUser(token)
}

// NextQuestion returns the question the session should answer next.
func (s *Service) NextQuestion(quizName string, state models.UserState) (models.QuizQuestion, error) {
	q, ok := quiz.NextQuestion(s.catalog, quizName, state)
	if !ok {
		return models.QuizQuestion{}, ErrNotFound
	}
	return q, nil
}

// Choices returns the question's answers, shuffled unless the
// shuffle_choices flag is off.
func (s *Service) Choices(question models.QuizQuestion) []string {
	if !s.features.IsEnabled(features.ShuffleChoices) {
		return append(slices.Clone(question.Correct), question.Incorrect...)
	}
	return quiz.Choices(s.rng, question)
}

// FeatureEnabled reports whether the named flag is on.
func (s *Service) FeatureEnabled(name string) bool {
	return s.features.IsEnabled(name)
}

// AnswerQuestion records answer for the next question of quizName.
func (s *Service) AnswerQuestion(ctx context.Context, quizName string, state *models.UserState, answer string) (bool, models.QuizQuestion, error) {
	index := len(state.Answers[quizName])

	correct, q, found := quiz.AnswerQuestion(s.catalog, quizName, state, answer)
	if !found {
		return false, models.QuizQuestion{}, ErrNotFound
	}

	s.events.Publish(ctx, events.EventAnswerSubmitted, events.AnswerSubmittedData{
		UserID:  state.ID.String(),
		Quiz:    quizName,
		Index:   index,
		Correct: correct,
	})
	return correct, q, nil
}

// SpinWheel spins wheelName once for the session.
func (s *Service) SpinWheel(ctx context.Context, wheelName string, state *models.UserState) (uint32, error) {
	points, ok := quiz.SpinWheel(s.catalog, s.rng, wheelName, state)
	if !ok {
		return 0, ErrNotFound
	}

	s.events.Publish(ctx, events.EventWheelSpun, events.WheelSpunData{
		UserID: state.ID.String(),
		Wheel:  wheelName,
		Points: points,
	})
	return points, nil
}

// Points returns the session's current score.
func (s *Service) Points(state models.UserState) uint32 {
	return quiz.Points(s.catalog, state)
}

// Register cashes out the session and returns the total awarded. The email
// is expected to be validated by the caller. A failed write is returned
// wrapped in records.ErrWriteFailure and must fail the request.
func (s *Service) Register(ctx context.Context, codes []string, email string, consent bool, state models.UserState) (uint32, error) {
	ctx, span := s.tracer.StartSpan(ctx, "service.Register")
	defer span.End()

	userID := state.ID.String()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.Int("codes.submitted", len(codes)),
	)

	redemption, err := s.recorder.Register(codes, email, consent, state)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "record write failed")
		s.logger.Error(ctx, "redemption write failed", "user_id", userID, "points", redemption.Points, "error", err)
		return 0, err
	}

	span.SetAttributes(
		attribute.Int64("points", int64(redemption.Points)),
		attribute.Bool("recorded", redemption.Recorded),
	)
	s.logger.Info(ctx, "redemption", "user_id", userID, "points", redemption.Points, "codes", redemption.Codes, "recorded", redemption.Recorded)
	s.events.Publish(ctx, events.EventRedemptionRecorded, events.RedemptionRecordedData{
		UserID:   userID,
		Points:   redemption.Points,
		Codes:    redemption.Codes,
		Recorded: redemption.Recorded,
	})

	return redemption.Points, nil
}
