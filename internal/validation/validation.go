package validation

import (
	"fmt"
	"regexp"
	"strings"

	"quiz-rewards-api/internal/models"
)

var (
	secretKeyRegex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
)

const maxEmailLength = 254

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidateEmail applies the checkout boundary rule: at least three
// characters and an '@'. Deliverability is not checked.
func ValidateEmail(email string) error {
	if email == "" {
		return &ValidationError{
			Field:   "email",
			Message: "is required",
		}
	}

	if len(email) < 3 || !strings.Contains(email, "@") {
		return &ValidationError{
			Field:   "email",
			Message: "must be a valid email address",
		}
	}

	if len(email) > maxEmailLength {
		return &ValidationError{
			Field:   "email",
			Message: fmt.Sprintf("cannot exceed %d characters", maxEmailLength),
		}
	}

	return nil
}

// ValidateSecretKey checks the hex form of the token signing key.
func ValidateSecretKey(hexKey string) error {
	if !secretKeyRegex.MatchString(hexKey) {
		return &ValidationError{
			Field:   "secret_key",
			Message: "must be 64 hex characters (32 bytes)",
		}
	}
	return nil
}

func ValidateQuiz(quiz models.Quiz) error {
	if strings.TrimSpace(quiz.Name) == "" {
		return &ValidationError{
			Field:   "quiz.name",
			Message: "is required",
		}
	}

	if len(quiz.Questions) == 0 {
		return &ValidationError{
			Field:   fmt.Sprintf("quiz[%s].questions", quiz.Name),
			Message: "must contain at least one question",
		}
	}

	for i, q := range quiz.Questions {
		if strings.TrimSpace(q.Question) == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("quiz[%s].questions[%d].question", quiz.Name, i),
				Message: "is required",
			}
		}
		if len(q.Correct) == 0 {
			return &ValidationError{
				Field:   fmt.Sprintf("quiz[%s].questions[%d].correct", quiz.Name, i),
				Message: "must contain at least one answer",
			}
		}
	}

	return nil
}

func ValidateCode(code models.Code) error {
	if NormalizeCode(code.Code) == "" {
		return &ValidationError{
			Field:   "code.code",
			Message: "is required",
		}
	}

	if code.ValidFrom.IsZero() {
		return &ValidationError{
			Field:   fmt.Sprintf("code[%s].valid_from", code.Code),
			Message: "is required",
		}
	}

	if code.ValidTo.IsZero() {
		return &ValidationError{
			Field:   fmt.Sprintf("code[%s].valid_to", code.Code),
			Message: "is required",
		}
	}

	if code.ValidTo.Before(code.ValidFrom) {
		return &ValidationError{
			Field:   fmt.Sprintf("code[%s].valid_from", code.Code),
			Message: "must not be after valid_to",
		}
	}

	return nil
}

func ValidateWheel(wheel models.Wheel) error {
	if strings.TrimSpace(wheel.Name) == "" {
		return &ValidationError{
			Field:   "wheel.name",
			Message: "is required",
		}
	}
	return nil
}

// NormalizeCode returns the lookup form of a promotional code.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
