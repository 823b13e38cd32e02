// Package generation talks to the language model that produces synthesis
// diagrams and expansions. Generators return raw payloads; decoding and
// validation belong to the schema package.
package generation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/starford/minto/internal/apperr"
	"github.com/starford/minto/internal/models"
)

// Prompt is a synthesis request: a title, a document, or both.
type Prompt struct {
	Title    string
	Document *Document
}

// Document is an uploaded source to synthesise.
type Document struct {
	Data     []byte
	Filename string
	MIMEType string
}

// Empty reports whether the prompt carries no input at all.
func (p Prompt) Empty() bool {
	return p.Title == "" && (p.Document == nil || len(p.Document.Data) == 0)
}

// Generator produces raw {reasoningSteps, nodes, edges} payloads.
type Generator interface {
	Synthesize(ctx context.Context, p Prompt) ([]byte, error)
	Expand(ctx context.Context, nodeLabel string, current models.Graph) ([]byte, error)
}

// Disabled is a Generator that fails every call. It backs deployments
// without model credentials; the EXAMPLE fixture, history, layout and
// imports keep working.
type Disabled struct{}

// Synthesize always fails.
func (Disabled) Synthesize(context.Context, Prompt) ([]byte, error) {
	return nil, apperr.New(apperr.ErrGeneration, "", "generation is disabled")
}

// Expand always fails.
func (Disabled) Expand(context.Context, string, models.Graph) ([]byte, error) {
	return nil, apperr.New(apperr.ErrGeneration, "", "generation is disabled")
}

const synthesisSystemPrompt = `Given the title of a book, publication, article, or other content, synthesise the key insight by taking the following steps:

- Identify the important ideas. Ensure each idea is MECE (mutually exclusive and comprehensively exhaustive).
- Group the same kinds of ideas into logical categories. Ensure each idea is ordered logically either deductively, chronologically, structurally, or comparatively.
- For each grouping, summarise the ideas into a single sentence. This is the label for each group. These labels form the key line.
- Synthesise these labels into a single sentence that provides a new perspective based on insights and implications of these ideas.
- Present your key insight as a Minto Pyramid tree: one synthesis node at the top, the key line in the middle, and the ideas at the bottom.

Respond with a JSON object with the fields reasoningSteps (the steps you took), nodes (each {"id", "data": {"label"}}) and edges (each {"id", "source", "target"}, pointing from parent to child). Node and edge ids must be unique.`

const expandSystemPrompt = `Given a node from a concept map and its context, expand on the node by going one level deeper.
Return only the additional nodes and their connections to the parent node.
Ensure that all node IDs remain unique within the scope of the entire diagram.
Respond with a JSON object with the fields reasoningSteps, nodes and edges.`

func synthesisUserPrompt(title, document string) string {
	switch {
	case document == "":
		return title
	case title == "":
		return "Synthesise the following document.\n\n" + document
	default:
		return fmt.Sprintf("Title: %s\n\nSynthesise the following document.\n\n%s", title, document)
	}
}

func expandUserPrompt(nodeLabel string, current models.Graph) (string, error) {
	ctxJSON, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return "", fmt.Errorf("generation: encode diagram context: %w", err)
	}
	return fmt.Sprintf(`Further expand on this node: %s

Go one level deeper.
Return only the additional nodes.
Ensure that all ids remain unique within the scope of the entire diagram.
Make sure the additional nodes are connected to the parent node.

Current diagram context:
%s`, nodeLabel, ctxJSON), nil
}
