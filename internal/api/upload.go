package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/starford/minto/internal/apperr"
	"github.com/starford/minto/internal/generation"
)

const maxUploadBytes = 50 << 20 // 50 MB

// isMultipart reports whether r carries a multipart form.
func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// readUpload parses a multipart synthesize request: optional "title" and
// "direction" fields and an optional "file" part.
func readUpload(w http.ResponseWriter, r *http.Request) (SynthesizeRequest, *generation.Document, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return SynthesizeRequest{}, nil, err
		}
		return SynthesizeRequest{}, nil, apperr.Wrap(apperr.ErrValidation, err, "invalid multipart form")
	}

	req := SynthesizeRequest{
		Title:     r.FormValue("title"),
		Direction: r.FormValue("direction"),
	}
	if err := validateRequest(&req); err != nil {
		return SynthesizeRequest{}, nil, err
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil, nil
	}
	if err != nil {
		return SynthesizeRequest{}, nil, apperr.Wrap(apperr.ErrValidation, err, "read %q field", "file")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return SynthesizeRequest{}, nil, apperr.Wrap(apperr.ErrValidation, err, "read uploaded file")
	}
	return req, &generation.Document{
		Data:     data,
		Filename: safeName(header.Filename),
		MIMEType: header.Header.Get("Content-Type"),
	}, nil
}

// safeName strips any directory part a client sent with the filename.
func safeName(name string) string {
	name = filepath.Base(filepath.Clean(strings.ReplaceAll(name, `\`, "/")))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
