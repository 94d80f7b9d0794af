// Package catalog holds the quizzes, promotional codes and wheels loaded
// once at startup. A Catalog has no mutation path after construction and is
// safe for concurrent use without locking.
package catalog

import (
	"fmt"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	"quiz-rewards-api/internal/models"
	"quiz-rewards-api/internal/validation"
)

// Document is the on-disk shape of the catalog file.
type Document struct {
	Quiz  []models.Quiz  `toml:"quiz"`
	Code  []models.Code  `toml:"code"`
	Wheel []models.Wheel `toml:"wheel"`
}

// Catalog is the immutable lookup table set.
type Catalog struct {
	quizzes map[string]models.Quiz
	codes   map[string]models.Code // keyed by normalized code
	wheels  map[string]struct{}
}

// Load reads and validates a TOML catalog file.
func Load(path string) (*Catalog, error) {
	var doc Document
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return New(doc.Quiz, doc.Code, doc.Wheel)
}

// Parse decodes a TOML catalog held in memory.
func Parse(data string) (*Catalog, error) {
	var doc Document
	if _, err := toml.Decode(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(doc.Quiz, doc.Code, doc.Wheel)
}

// New builds a Catalog, deep-copying its inputs so callers cannot reach
// the internal tables.
func New(quizzes []models.Quiz, codes []models.Code, wheels []models.Wheel) (*Catalog, error) {
	c := &Catalog{
		quizzes: make(map[string]models.Quiz, len(quizzes)),
		codes:   make(map[string]models.Code, len(codes)),
		wheels:  make(map[string]struct{}, len(wheels)),
	}

	for _, q := range quizzes {
		if err := validation.ValidateQuiz(q); err != nil {
			return nil, err
		}
		if _, dup := c.quizzes[q.Name]; dup {
			return nil, &validation.ValidationError{Field: "quiz.name", Message: fmt.Sprintf("duplicate quiz %q", q.Name)}
		}
		c.quizzes[q.Name] = copyQuiz(q)
	}

	for _, code := range codes {
		if err := validation.ValidateCode(code); err != nil {
			return nil, err
		}
		key := validation.NormalizeCode(code.Code)
		if _, dup := c.codes[key]; dup {
			return nil, &validation.ValidationError{Field: "code.code", Message: fmt.Sprintf("duplicate code %q", code.Code)}
		}
		c.codes[key] = code
	}

	for _, w := range wheels {
		if err := validation.ValidateWheel(w); err != nil {
			return nil, err
		}
		if _, dup := c.wheels[w.Name]; dup {
			return nil, &validation.ValidationError{Field: "wheel.name", Message: fmt.Sprintf("duplicate wheel %q", w.Name)}
		}
		c.wheels[w.Name] = struct{}{}
	}

	return c, nil
}

// Quiz returns the named quiz. The returned value shares question slices
// with the catalog and must be treated as read-only.
func (c *Catalog) Quiz(name string) (models.Quiz, bool) {
	q, ok := c.quizzes[name]
	return q, ok
}

// Code looks a code up by its normalized form.
func (c *Catalog) Code(code string) (models.Code, bool) {
	found, ok := c.codes[validation.NormalizeCode(code)]
	return found, ok
}

func (c *Catalog) HasWheel(name string) bool {
	_, ok := c.wheels[name]
	return ok
}

// Quizzes returns a sorted copy of all quizzes.
func (c *Catalog) Quizzes() []models.Quiz {
	out := make([]models.Quiz, 0, len(c.quizzes))
	for _, q := range c.quizzes {
		out = append(out, copyQuiz(q))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Codes returns all codes sorted by code string.
func (c *Catalog) Codes() []models.Code {
	out := make([]models.Code, 0, len(c.codes))
	for _, code := range c.codes {
		out = append(out, code)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ActiveCodes returns the codes redeemable at now, sorted by code string.
func (c *Catalog) ActiveCodes(now time.Time) []models.Code {
	var out []models.Code
	for _, code := range c.Codes() {
		if code.ActiveAt(now) {
			out = append(out, code)
		}
	}
	return out
}

func (c *Catalog) Wheels() []string {
	out := make([]string, 0, len(c.wheels))
	for name := range c.wheels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func copyQuiz(q models.Quiz) models.Quiz {
	questions := make([]models.QuizQuestion, len(q.Questions))
	for i, question := range q.Questions {
		questions[i] = models.QuizQuestion{
			Question:  question.Question,
			Correct:   append([]string(nil), question.Correct...),
			Incorrect: append([]string(nil), question.Incorrect...),
		}
	}
	q.Questions = questions
	return q
}
