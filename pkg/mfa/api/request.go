package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/render"

	"github.com/ninjaportal/portal-mfa/pkg/mfa"
)

const (
	minTokenLength  = 32
	maxTokenLength  = 255
	minCodeLength   = 4
	maxCodeLength   = 16
	maxDriverLength = 64
	maxLabelLength  = 120
)

// decode reads a JSON object body. An empty body decodes to the zero value.
func decode(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	if err := render.DecodeJSON(r.Body, v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return nil
}

// humanize turns "challenge_token" into "challenge token".
func humanize(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}

func requireString(errs ValidationErrors, field, value string, min, max int) {
	n := utf8.RuneCountInString(value)
	switch {
	case value == "":
		errs.add(field, fmt.Sprintf("The %s field is required.", humanize(field)))
	case n < min:
		errs.add(field, fmt.Sprintf("The %s field must be at least %d characters.", humanize(field), min))
	case n > max:
		errs.add(field, fmt.Sprintf("The %s field must not be greater than %d characters.", humanize(field), max))
	}
}

func limitString(errs ValidationErrors, field, value string, max int) {
	if utf8.RuneCountInString(value) > max {
		errs.add(field, fmt.Sprintf("The %s field must not be greater than %d characters.", humanize(field), max))
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (req loginRequest) validate() error {
	errs := ValidationErrors{}
	if strings.TrimSpace(req.Email) == "" {
		errs.add("email", "The email field is required.")
	}
	if req.Password == "" {
		errs.add("password", "The password field is required.")
	}
	return errs.orNil()
}

type challengeRequest struct {
	ChallengeToken string `json:"challenge_token"`
	Code           string `json:"code"`
}

func (req challengeRequest) validate(withCode bool) error {
	errs := ValidationErrors{}
	requireString(errs, "challenge_token", req.ChallengeToken, minTokenLength, maxTokenLength)
	if withCode {
		requireString(errs, "code", req.Code, minCodeLength, maxCodeLength)
	}
	return errs.orNil()
}

type codeRequest struct {
	Code string `json:"code"`
}

func (req codeRequest) validate() error {
	errs := ValidationErrors{}
	requireString(errs, "code", req.Code, minCodeLength, maxCodeLength)
	return errs.orNil()
}

type setupRequest struct {
	Label *string `json:"label"`
}

func (req setupRequest) validate() error {
	errs := ValidationErrors{}
	if req.Label != nil {
		limitString(errs, "label", *req.Label, maxLabelLength)
	}
	return errs.orNil()
}

func (req setupRequest) label() string {
	if req.Label == nil {
		return ""
	}
	return *req.Label
}

// decodeSettingsUpdate distinguishes an absent preferred_driver (keep) from
// an explicit null (clear).
func decodeSettingsUpdate(r *http.Request) (mfa.SettingsUpdate, error) {
	var raw map[string]json.RawMessage
	if err := decode(r, &raw); err != nil {
		return mfa.SettingsUpdate{}, err
	}

	var update mfa.SettingsUpdate
	errs := ValidationErrors{}

	if v, ok := raw["is_enabled"]; ok {
		if b, ok := parseBool(v); ok {
			update.IsEnabled = &b
		} else {
			errs.add("is_enabled", "The is enabled field must be true or false.")
		}
	}

	if v, ok := raw["preferred_driver"]; ok {
		var driver *string
		if err := json.Unmarshal(v, &driver); err != nil {
			errs.add("preferred_driver", "The preferred driver field must be a string.")
		} else {
			if driver == nil {
				driver = new(string)
			}
			limitString(errs, "preferred_driver", *driver, maxDriverLength)
			update.PreferredDriver = driver
		}
	}

	if err := errs.orNil(); err != nil {
		return mfa.SettingsUpdate{}, err
	}
	return update, nil
}

// parseBool accepts true, false, 1, 0, "1" and "0".
func parseBool(raw json.RawMessage) (bool, bool) {
	switch strings.TrimSpace(string(raw)) {
	case "true", "1", `"1"`:
		return true, true
	case "false", "0", `"0"`:
		return false, true
	}
	return false, false
}
