// Package fixture provides the built-in example diagram served for the
// reserved EXAMPLE input.
package fixture

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/starford/minto/internal/models"
	"github.com/starford/minto/internal/schema"
)

// Keyword is the reserved input that selects the example.
const Keyword = "EXAMPLE"

// Title is the history title recorded for the example.
const Title = "The Pyramid Principle"

//go:embed example.json
var exampleJSON []byte

// IsExampleInput reports whether s is the reserved keyword, ignoring case
// and surrounding whitespace. Anything else, including "examples", is not.
func IsExampleInput(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), Keyword)
}

// Example returns a fresh copy of the example synthesis. It is already laid
// out top to bottom and is served unchanged.
func Example() (models.Synthesis, error) {
	s, err := schema.DecodeSynthesis(exampleJSON)
	if err != nil {
		return models.Synthesis{}, fmt.Errorf("fixture: decode example: %w", err)
	}
	return s, nil
}

// Raw returns the embedded example document.
func Raw() []byte {
	out := make([]byte, len(exampleJSON))
	copy(out, exampleJSON)
	return out
}
