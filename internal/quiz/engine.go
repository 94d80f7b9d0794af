// Package quiz implements question sequencing, answer checking, scoring and
// wheel spins as plain functions over a catalog and a caller-owned state.
//
// Progress through a quiz is implicit: the next question is the one at
// index len(state.Answers[quiz]). Answers are only ever appended.
package quiz

import (
	"math/rand/v2"
	"slices"

	"quiz-rewards-api/internal/models"
)

// Catalog is the read-only view the engine needs.
type Catalog interface {
	Quiz(name string) (models.Quiz, bool)
	HasWheel(name string) bool
}

// Rand is the randomness source for wheel draws and choice shuffling.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

type globalRand struct{}

func (globalRand) IntN(n int) int                     { return rand.IntN(n) }
func (globalRand) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }

// DefaultRand uses the goroutine-safe math/rand/v2 top-level source.
var DefaultRand Rand = globalRand{}

// WheelPrize is one slot of the prize wheel.
type WheelPrize struct {
	Points uint32
	Weight int
}

// WheelPrizes is the fixed wheel distribution.
var WheelPrizes = []WheelPrize{
	{Points: 20, Weight: 3},
	{Points: 40, Weight: 2},
	{Points: 60, Weight: 1},
}

// NextQuestion returns the first unanswered question of quizName, or false
// if the quiz is unknown or already complete.
func NextQuestion(cat Catalog, quizName string, state models.UserState) (models.QuizQuestion, bool) {
	quiz, ok := cat.Quiz(quizName)
	if !ok {
		return models.QuizQuestion{}, false
	}

	index := len(state.Answers[quizName])
	if index >= len(quiz.Questions) {
		return models.QuizQuestion{}, false
	}
	return quiz.Questions[index], true
}

// AnswerQuestion checks answer against the next question of quizName and
// appends the result to state. It returns whether the answer was correct
// and the question answered; found is false, and state untouched, when
// there is no next question.
func AnswerQuestion(cat Catalog, quizName string, state *models.UserState, answer string) (correct bool, question models.QuizQuestion, found bool) {
	question, found = NextQuestion(cat, quizName, *state)
	if !found {
		return false, models.QuizQuestion{}, false
	}

	correct = slices.Contains(question.Correct, answer)

	if state.Answers == nil {
		state.Answers = make(map[string][]bool)
	}
	state.Answers[quizName] = append(state.Answers[quizName], correct)

	return correct, question, true
}

// SpinWheel draws a prize for wheelName and records it in state. A wheel
// can be spun once per session: unknown or already spun wheels return
// false and leave state untouched.
func SpinWheel(cat Catalog, rng Rand, wheelName string, state *models.UserState) (uint32, bool) {
	if !cat.HasWheel(wheelName) {
		return 0, false
	}
	if _, spun := state.Wheels[wheelName]; spun {
		return 0, false
	}

	points := drawPrize(rng)

	if state.Wheels == nil {
		state.Wheels = make(map[string]uint32)
	}
	state.Wheels[wheelName] = points

	return points, true
}

func drawPrize(rng Rand) uint32 {
	total := 0
	for _, p := range WheelPrizes {
		total += p.Weight
	}

	n := rng.IntN(total)
	for _, p := range WheelPrizes {
		if n < p.Weight {
			return p.Points
		}
		n -= p.Weight
	}
	return WheelPrizes[len(WheelPrizes)-1].Points
}

// Points totals the state's score.
//
// Each known quiz contributes quiz.Points * correct / len(quiz.Questions),
// truncated. The denominator is the full question count even when the user
// stopped early, so 2 correct out of 4 questions scores half. Quizzes no
// longer in the catalog contribute nothing. Wheel prizes are added as is.
func Points(cat Catalog, state models.UserState) uint32 {
	var total uint32

	for quizName, answers := range state.Answers {
		quiz, ok := cat.Quiz(quizName)
		if !ok || len(quiz.Questions) == 0 {
			continue
		}

		var correct uint64
		for _, a := range answers {
			if a {
				correct++
			}
		}
		total += uint32(uint64(quiz.Points) * correct / uint64(len(quiz.Questions)))
	}

	for _, points := range state.Wheels {
		total += points
	}

	return total
}

// Choices returns the correct and incorrect answers of question in random
// order.
func Choices(rng Rand, question models.QuizQuestion) []string {
	choices := make([]string, 0, len(question.Correct)+len(question.Incorrect))
	choices = append(choices, question.Correct...)
	choices = append(choices, question.Incorrect...)

	rng.Shuffle(len(choices), func(i, j int) {
		choices[i], choices[j] = choices[j], choices[i]
	})
	return choices
}
