package parser

import (
	"errors"
	"testing"
)

func TestParse_FrontmatterAndFencedPayload(t *testing.T) {
	input := []byte("---\ntitle: Deep Work\nid: dw-1\ndirection: lr\n---\n# Ignored heading\n\n```json\n{\"nodes\":[],\"edges\":[]}\n```\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Title != "Deep Work" {
		t.Errorf("title = %q, want %q", r.Title, "Deep Work")
	}
	if r.ID != "dw-1" || r.Direction != "LR" {
		t.Errorf("id/direction = %q/%q", r.ID, r.Direction)
	}
	if string(r.Payload) != `{"nodes":[],"edges":[]}` {
		t.Errorf("payload = %q", r.Payload)
	}
}

func TestParse_HeadingTitle(t *testing.T) {
	input := []byte("# Just a heading\n```\n{\"nodes\":[]}\n```\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter, got %v", r.Frontmatter)
	}
	if r.Title != "Just a heading" {
		t.Errorf("title = %q, want %q", r.Title, "Just a heading")
	}
}

func TestParse_PlainJSON(t *testing.T) {
	input := []byte(`{"nodes":[{"id":"a"}],"edges":[]}`)
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(r.Payload) != string(input) {
		t.Errorf("payload = %q", r.Payload)
	}
	if r.Title != "" {
		t.Errorf("title = %q, want empty", r.Title)
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	input := []byte("---\n: invalid: yaml: {{{\n---\n{\"nodes\":[]}\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
}

func TestExtractPayload(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"prose around", "Here you go:\n{\"a\":1}\nEnjoy.", `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"first fence without object skipped", "```mermaid\ngraph TD\n```\ntext\n```json\n{\"b\":2}\n```", `{"b":2}`},
		{"crlf fence", "```json\r\n{\"a\":1}\r\n```", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractPayload(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractPayload_None(t *testing.T) {
	_, err := ExtractPayload("graph TD\nA-->B")
	if !errors.Is(err, ErrNoPayload) {
		t.Fatalf("err = %v, want ErrNoPayload", err)
	}
}
