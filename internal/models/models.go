package models

import (
	"encoding/hex"
	"time"
)

// UserIDSize is the number of random bytes in a UserID.
const UserIDSize = 16

// UserID identifies a session inside redemption records only.
type UserID [UserIDSize]byte

// String returns the lower-case hex form used in records.
func (id UserID) String() string {
	return hex.EncodeToString(id[:])
}

// UserState is the whole session. It travels inside the token on every
// request; the server keeps none of it between requests.
type UserState struct {
	ID      UserID
	Answers map[string][]bool // quiz name -> one entry per answered question
	Wheels  map[string]uint32 // wheel name -> points drawn
}

// NewUserState returns an empty state for the given id.
func NewUserState(id UserID) UserState {
	return UserState{
		ID:      id,
		Answers: make(map[string][]bool),
		Wheels:  make(map[string]uint32),
	}
}

// Quiz is a named, ordered list of questions worth Points on a perfect score.
type Quiz struct {
	Name      string         `toml:"name" json:"name"`
	Points    uint32         `toml:"points" json:"points"`
	Questions []QuizQuestion `toml:"questions" json:"questions"`
}

// QuizQuestion holds the prompt and its answer sets. Matching is exact and
// case-sensitive against Correct only.
type QuizQuestion struct {
	Question  string   `toml:"question" json:"question"`
	Correct   []string `toml:"correct" json:"correct"`
	Incorrect []string `toml:"incorrect" json:"incorrect"`
}

// Code is a promotional code redeemable inside [ValidFrom, ValidTo].
type Code struct {
	Code      string    `toml:"code" json:"code"`
	Points    uint32    `toml:"points" json:"points"`
	ValidFrom time.Time `toml:"valid_from" json:"valid_from"`
	ValidTo   time.Time `toml:"valid_to" json:"valid_to"`
}

// ActiveAt reports whether now falls inside the inclusive validity window.
func (c Code) ActiveAt(now time.Time) bool {
	return !now.Before(c.ValidFrom) && !now.After(c.ValidTo)
}

// Wheel is a named one-shot prize wheel.
type Wheel struct {
	Name string `toml:"name" json:"name"`
}

// UserRecord is appended once per redemption and never read back.
type UserRecord struct {
	ID      string    `json:"id"`    // hex of UserID
	Email   string    `json:"email"`
	Points  uint32    `json:"points"`
	Codes   string    `json:"codes"` // sorted, space-joined
	Consent bool      `json:"consent"`
	Time    time.Time `json:"time"`
}

// QuizQuestionResponse is returned by GET /quiz/{name}.
type QuizQuestionResponse struct {
	Question string   `json:"question"`
	Choices  []string `json:"choices"`
	Token    string   `json:"token"`
}

// QuizAnswerRequest is the body of POST /quiz/{name}.
type QuizAnswerRequest struct {
	Answer string `json:"answer"`
}

// QuizAnswerResponse is returned by POST /quiz/{name}.
type QuizAnswerResponse struct {
	IsCorrect bool     `json:"is_correct"`
	Correct   []string `json:"correct"`
	Token     string   `json:"token"`
}

// WheelSpinResponse is returned by POST /wheel/{name}.
type WheelSpinResponse struct {
	Points uint32 `json:"points"`
	Token  string `json:"token"`
}

// CheckoutRequest is the body of POST /checkout.
type CheckoutRequest struct {
	Codes   []string `json:"codes"`
	Email   string   `json:"email"`
	Consent bool     `json:"consent"`
}

// CheckoutResponse is returned by POST /checkout.
type CheckoutResponse struct {
	Points uint32 `json:"points"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	TotalPoints uint32 `json:"total_points"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Error codes carried in ErrorResponse.
const (
	ErrorCodeNotFound     = "NotFound"
	ErrorCodeUnauthorized = "Unauthorized"
	ErrorCodeBadRequest   = "BadRequest"
	ErrorCodeInternal     = "Internal"
)
