package quiz

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-rewards-api/internal/catalog"
	"quiz-rewards-api/internal/models"
)

func question(text string, correct ...string) models.QuizQuestion {
	return models.QuizQuestion{Question: text, Correct: correct, Incorrect: []string{"wrong-" + text}}
}

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(
		[]models.Quiz{
			{Name: "four", Points: 100, Questions: []models.QuizQuestion{
				question("q1", "a1"),
				question("q2", "a2", "A2"),
				question("q3", "a3"),
				question("q4", "a4"),
			}},
			{Name: "three", Points: 10, Questions: []models.QuizQuestion{
				question("t1", "x"), question("t2", "x"), question("t3", "x"),
			}},
		},
		nil,
		[]models.Wheel{{Name: "booth"}, {Name: "lobby"}},
	)
	require.NoError(t, err)
	return c
}

func newState() models.UserState {
	return models.NewUserState(models.UserID{42})
}

func TestNextQuestion(t *testing.T) {
	cat := newTestCatalog(t)
	state := newState()

	q, ok := NextQuestion(cat, "four", state)
	require.True(t, ok)
	assert.Equal(t, "q1", q.Question)

	state.Answers["four"] = []bool{true, false}
	q, ok = NextQuestion(cat, "four", state)
	require.True(t, ok)
	assert.Equal(t, "q3", q.Question)

	state.Answers["four"] = []bool{true, false, true, true}
	_, ok = NextQuestion(cat, "four", state)
	assert.False(t, ok, "complete quiz has no next question")

	_, ok = NextQuestion(cat, "unknown", state)
	assert.False(t, ok)
}

func TestAnswerQuestion_MatchesExactly(t *testing.T) {
	cat := newTestCatalog(t)
	state := newState()

	correct, q, found := AnswerQuestion(cat, "four", &state, "A1")
	require.True(t, found)
	assert.False(t, correct, "matching is case-sensitive")
	assert.Equal(t, "q1", q.Question)

	correct, q, found = AnswerQuestion(cat, "four", &state, "A2")
	require.True(t, found)
	assert.True(t, correct, "any correct string matches")
	assert.Equal(t, "q2", q.Question)

	correct, _, found = AnswerQuestion(cat, "four", &state, "wrong-q3")
	require.True(t, found)
	assert.False(t, correct, "incorrect choices never match")

	assert.Equal(t, []bool{false, true, false}, state.Answers["four"])
}

func TestAnswerQuestion_MonotonicProgress(t *testing.T) {
	cat := newTestCatalog(t)
	state := newState()

	for i := 1; i <= 3; i++ {
		_, _, found := AnswerQuestion(cat, "three", &state, "x")
		require.True(t, found)
		assert.Len(t, state.Answers["three"], i)
	}

	before := append([]bool(nil), state.Answers["three"]...)
	for i := 0; i < 3; i++ {
		_, _, found := AnswerQuestion(cat, "three", &state, "x")
		assert.False(t, found, "answering past the end is not found")
	}
	assert.Equal(t, before, state.Answers["three"])
}

func TestAnswerQuestion_UnknownQuizLeavesStateUntouched(t *testing.T) {
	cat := newTestCatalog(t)
	state := newState()

	_, _, found := AnswerQuestion(cat, "nope", &state, "x")
	assert.False(t, found)
	assert.Empty(t, state.Answers)
}

func TestAnswerQuestion_NilMaps(t *testing.T) {
	cat := newTestCatalog(t)
	state := models.UserState{}

	_, _, found := AnswerQuestion(cat, "three", &state, "x")
	require.True(t, found)
	assert.Equal(t, []bool{true}, state.Answers["three"])
}

func TestSpinWheel_ExactlyOnce(t *testing.T) {
	cat := newTestCatalog(t)
	rng := rand.New(rand.NewPCG(1, 2))
	state := newState()

	points, ok := SpinWheel(cat, rng, "booth", &state)
	require.True(t, ok)
	assert.Contains(t, []uint32{20, 40, 60}, points)
	assert.Equal(t, points, state.Wheels["booth"])

	for i := 0; i < 10; i++ {
		_, ok = SpinWheel(cat, rng, "booth", &state)
		assert.False(t, ok, "second spin is refused")
	}
	assert.Equal(t, points, state.Wheels["booth"], "first prize is preserved")

	_, ok = SpinWheel(cat, rng, "lobby", &state)
	assert.True(t, ok, "other wheels are independent")
	assert.Len(t, state.Wheels, 2)
}

func TestSpinWheel_UnknownWheel(t *testing.T) {
	cat := newTestCatalog(t)
	state := newState()

	_, ok := SpinWheel(cat, DefaultRand, "nope", &state)
	assert.False(t, ok)
	assert.Empty(t, state.Wheels)
}

// fixedRand returns a scripted IntN result.
type fixedRand struct{ n int }

func (f fixedRand) IntN(int) int                 { return f.n }
func (fixedRand) Shuffle(int, func(i, j int)) {}

func TestDrawPrize_Weights(t *testing.T) {
	want := []uint32{20, 20, 20, 40, 40, 60}
	for n, points := range want {
		assert.Equal(t, points, drawPrize(fixedRand{n: n}), "draw %d", n)
	}
}

func TestDrawPrize_Distribution(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	counts := map[uint32]int{}
	const draws = 60000
	for i := 0; i < draws; i++ {
		counts[drawPrize(rng)]++
	}

	assert.InDelta(t, draws*3/6, counts[20], draws*0.02)
	assert.InDelta(t, draws*2/6, counts[40], draws*0.02)
	assert.InDelta(t, draws*1/6, counts[60], draws*0.02)
}

func TestPoints(t *testing.T) {
	cat := newTestCatalog(t)

	tests := []struct {
		name    string
		answers map[string][]bool
		wheels  map[string]uint32
		want    uint32
	}{
		{"empty", nil, nil, 0},
		{"three of four correct", map[string][]bool{"four": {true, true, false, true}}, nil, 75},
		{"two answered, both correct", map[string][]bool{"four": {true, true}}, nil, 50},
		{"perfect", map[string][]bool{"four": {true, true, true, true}}, nil, 100},
		{"truncates", map[string][]bool{"three": {true, false}}, nil, 3},
		{"stale quiz ignored", map[string][]bool{"removed": {true, true}}, nil, 0},
		{"wheels added", map[string][]bool{"four": {true}}, map[string]uint32{"booth": 40, "lobby": 60}, 125},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := models.UserState{Answers: tt.answers, Wheels: tt.wheels}
			assert.Equal(t, tt.want, Points(cat, state))
		})
	}
}

func TestPoints_FollowsAnswers(t *testing.T) {
	cat := newTestCatalog(t)
	state := newState()

	for _, answer := range []string{"a1", "a2", "nope", "a4"} {
		_, _, found := AnswerQuestion(cat, "four", &state, answer)
		require.True(t, found)
	}
	assert.Equal(t, uint32(75), Points(cat, state))
}

func TestChoices(t *testing.T) {
	q := models.QuizQuestion{Question: "?", Correct: []string{"a", "b"}, Incorrect: []string{"c", "d", "e"}}
	rng := rand.New(rand.NewPCG(3, 4))

	choices := Choices(rng, q)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, choices)
	assert.Equal(t, []string{"a", "b"}, q.Correct, "question is not modified")
}
