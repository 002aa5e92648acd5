package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/Golden-Age-Club/server/internal/apperr"
	"github.com/Golden-Age-Club/server/internal/infra/logging"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}

		return name
	})

	return v
}

type errorBody struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(ctx context.Context, logg *logging.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		logg.Error(ctx, "encode json response", err)
	}
}

// writeError renders err through the apperr taxonomy. Untyped errors become
// a 500 without leaking their text.
func writeError(ctx context.Context, logg *logging.Logger, w http.ResponseWriter, err error) {
	typed := apperr.As(err)
	if typed == nil {
		typed = apperr.Wrap(apperr.CodeInternal, err, "unexpected error")
	}

	meta := apperr.MetadataFor(typed.Code())
	body := apiError{Code: string(typed.Code()), Message: meta.PublicMessage}

	if meta.HTTPStatus < http.StatusInternalServerError && typed.Message() != "" {
		body.Message = typed.Message()
	}

	var verr *validationError
	if errors.As(err, &verr) {
		body.Details = verr.fields
	}

	ctx = logg.WithField(ctx, "error_code", string(typed.Code()))
	if meta.HTTPStatus >= http.StatusInternalServerError {
		logg.Error(ctx, "request failed", err)
	} else {
		logg.Info(logg.WithField(ctx, "error", err.Error()), "request rejected")
	}

	writeJSON(ctx, logg, w, meta.HTTPStatus, errorBody{Error: body})
}

type validationError struct {
	fields map[string]string
}

func (e *validationError) Error() string {
	parts := make([]string, 0, len(e.fields))
	for k, v := range e.fields {
		parts = append(parts, k+" "+v)
	}

	return strings.Join(parts, "; ")
}

// decodeJSONBody reads one JSON object, rejecting unknown fields, and runs
// the struct's validate tags.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, false)
}

// decodeOptionalJSONBody is decodeJSONBody for endpoints whose body may be omitted.
func decodeOptionalJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	switch {
	case errors.Is(err, io.EOF) && optional:
	case errors.Is(err, io.EOF):
		return apperr.New(apperr.CodeValidation, "empty body")
	case err != nil:
		return apperr.Wrap(apperr.CodeValidation, err, "invalid JSON body")
	}

	err = validate.Struct(dst)
	if err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			return apperr.Wrap(apperr.CodeValidation, err, "validation failed")
		}

		verr := &validationError{fields: make(map[string]string, len(errs))}
		for _, fe := range errs {
			verr.fields[fe.Field()] = validationMessage(fe)
		}

		return apperr.Wrap(apperr.CodeValidation, verr, "validation failed")
	}

	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "url":
		return "must be a valid URL"
	default:
		return "is invalid"
	}
}
