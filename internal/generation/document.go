package generation

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/starford/minto/internal/apperr"
)

// DetectMIME returns the media type of d, preferring the declared type,
// then the file extension, then content sniffing.
func DetectMIME(d Document) string {
	if d.MIMEType != "" && d.MIMEType != "application/octet-stream" {
		if mt, _, err := mime.ParseMediaType(d.MIMEType); err == nil {
			return mt
		}
	}
	switch strings.ToLower(filepath.Ext(d.Filename)) {
	case ".pdf":
		return "application/pdf"
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(d.Data))
	return mt
}

// DocumentText extracts plain text from a PDF or text document, truncated
// to maxChars runes when maxChars > 0.
func DocumentText(d Document, maxChars int) (string, error) {
	var (
		text string
		err  error
	)
	switch mt := DetectMIME(d); {
	case mt == "application/pdf":
		text, err = pdfText(d.Data)
		if err != nil {
			return "", apperr.Wrap(apperr.ErrValidation, err, "read pdf %q", d.Filename)
		}
	case strings.HasPrefix(mt, "text/"):
		if !utf8.Valid(d.Data) {
			return "", apperr.Validation("file", "document %q is not valid UTF-8", d.Filename)
		}
		text = string(d.Data)
	default:
		return "", apperr.Validation("file", "unsupported document type %q", mt)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.New(apperr.ErrMissingInput, "file", "document %q contains no text", d.Filename)
	}
	if maxChars > 0 && utf8.RuneCountInString(text) > maxChars {
		text = string([]rune(text)[:maxChars])
	}
	return text, nil
}

func pdfText(data []byte) (text string, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return string(b), nil
}
