// Package caption wraps the external caption generator the completion
// ledger consults when publishing an atom. The generator is allowed to fail
// or return nothing; callers must substitute Fallback rather than surface
// the failure.
package caption

import (
	"context"
	"fmt"
	"strings"
)

// Request carries the habit context the generator builds a caption from.
type Request struct {
	HabitTitle   string
	CategoryName string
	Occurrence   string
	Notes        string
}

// Generator produces a social caption for a habit completion.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Fallback is the deterministic caption used when the generator fails or
// returns an empty string.
func Fallback(habitTitle, categoryName string) string {
	return fmt.Sprintf("Completed my %s habit! #%s", habitTitle, strings.ToLower(categoryName))
}
