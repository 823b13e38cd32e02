package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/starford/minto/internal/apperr"
	"github.com/starford/minto/internal/session"
)

const maxBodyBytes = 10 << 20 // 10 MB

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	ID    string `json:"id,omitempty" example:"e1"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// decodeJSON reads a JSON body into v and checks its validate tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return apperr.Wrap(apperr.ErrValidation, err, "invalid JSON body")
	}
	return validateRequest(v)
}

func validateRequest(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperr.Validation(jsonName(fieldErrs[0]), "%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := jsonName(fe)
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// jsonName lower-cases the first letter of the Go field name, which matches
// the JSON names of every request type.
func jsonName(fe validator.FieldError) string {
	f := fe.Field()
	if f == "" {
		return f
	}
	return strings.ToLower(f[:1]) + f[1:]
}

// statusFor maps an error to its HTTP status. Generation failures are checked
// before validation because an invalid generated payload wraps both.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, apperr.ErrGenerationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, apperr.ErrGenerationUnavailable), errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperr.ErrGeneration):
		return http.StatusInternalServerError
	case errors.Is(err, apperr.ErrMissingInput), errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrReferentialIntegrity),
		errors.Is(err, apperr.ErrCyclicGraph),
		errors.Is(err, apperr.ErrUnknownAnchor):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrDuplicateID), errors.Is(err, apperr.ErrExpansionInProgress):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes the error response for err. Server-side failures are
// logged here and nowhere else.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	body := errResponse{Error: err.Error(), ID: apperr.OffendingID(err)}

	var domain *apperr.Error
	if status >= http.StatusInternalServerError {
		slog.Error(op+" failed",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Int("status", status),
			slog.String("error", err.Error()))
		if !errors.As(err, &domain) && !errors.Is(err, session.ErrClosed) {
			body = errorBody("internal error")
		}
	}
	writeJSON(w, status, body)
}
