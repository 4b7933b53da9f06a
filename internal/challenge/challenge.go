package challenge

import (
	"strings"
	"time"
)

// Difficulty tiers for challenges
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Challenge is a single practice exercise. The id is derived from the title
// at creation time and stays stable afterwards; sessions snapshot the full
// challenge, so edits never affect sessions already in flight.
type Challenge struct {
	ID          string     `json:"id"`
	Topic       string     `json:"topic"`
	Title       string     `json:"title"`
	Difficulty  Difficulty `json:"difficulty"`
	Description string     `json:"description"`
	Boilerplate string     `json:"boilerplate"`
	Examples    []Example  `json:"examples,omitempty"`
	Hints       []string   `json:"hints,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Example is a display-only input/output pair shown alongside the prompt.
type Example struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// TestCase is a hidden grading case. Input holds the ordered argument
// values passed to the submitted function; Expected may be a number,
// string or boolean and is compared after stringification.
type TestCase struct {
	Input    []any `json:"input"`
	Expected any   `json:"expected"`
}

// Slugify derives a challenge id from its title: lowercase, whitespace
// collapsed to hyphens. Collisions are last-write-wins by design.
func Slugify(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), "-")
}

// Update holds a partial set of challenge fields for a shallow merge.
// Nil pointers leave the existing value untouched.
type Update struct {
	Topic       *string    `json:"topic,omitempty"`
	Title       *string    `json:"title,omitempty"`
	Difficulty  *string    `json:"difficulty,omitempty"`
	Description *string    `json:"description,omitempty"`
	Boilerplate *string    `json:"boilerplate,omitempty"`
	Examples    []Example  `json:"examples,omitempty"`
	Hints       []string   `json:"hints,omitempty"`
	TestCases   []TestCase `json:"testCases,omitempty"`
}
