package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/render"

	mfaerrors "github.com/ninjaportal/portal-mfa/pkg/errors"
)

// Response is the envelope every MFA endpoint answers with.
type Response struct {
	Success bool                `json:"success"`
	Status  int                 `json:"status"`
	Message string              `json:"message"`
	Data    interface{}         `json:"data,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
	Meta    interface{}         `json:"meta"`
}

// ValidationErrors maps request fields to their messages.
type ValidationErrors map[string][]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(v[f], " "))
	}
	return strings.Join(parts, "; ")
}

func (v ValidationErrors) add(field, message string) {
	v[field] = append(v[field], message)
}

func (v ValidationErrors) orNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

var errMalformedBody = errors.New("malformed request body")

func writeSuccess(w http.ResponseWriter, r *http.Request, status int, message string, data interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	render.Status(r, status)
	render.JSON(w, r, Response{Success: true, Status: status, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, r *http.Request, status int, message string, errs ValidationErrors) {
	render.Status(r, status)
	render.JSON(w, r, Response{Status: status, Message: message, Errors: errs})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errMalformedBody) {
		writeFailure(w, r, http.StatusBadRequest, "Invalid request body.", nil)
		return
	}

	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		writeFailure(w, r, http.StatusUnprocessableEntity, "Validation failed.", verrs)
		return
	}

	e, ok := mfaerrors.As(err)
	if !ok {
		slog.Error("Unhandled MFA request error", "path", r.URL.Path, "err", err)
		writeFailure(w, r, http.StatusInternalServerError, "Server error.", nil)
		return
	}

	switch status := e.HTTPStatusCode(); status {
	case http.StatusUnprocessableEntity:
		field := e.Field
		if field == "" {
			field = "mfa"
		}
		writeFailure(w, r, status, "Validation failed.", ValidationErrors{field: {e.Message}})
	case http.StatusUnauthorized, http.StatusNotFound, http.StatusTooManyRequests:
		writeFailure(w, r, status, e.Message, nil)
	default:
		slog.Error("MFA request failed", "path", r.URL.Path, "code", e.Code, "err", err)
		writeFailure(w, r, http.StatusInternalServerError, "Server error.", nil)
	}
}

// WriteRateLimited renders a rate limiter rejection in the envelope.
func WriteRateLimited(w http.ResponseWriter, r *http.Request, err *mfaerrors.Error) {
	writeError(w, r, err)
}
