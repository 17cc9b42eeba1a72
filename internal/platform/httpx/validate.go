package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationProblem extends ProblemDetail with per-field messages.
type ValidationProblem struct {
	ProblemDetail
	Fields map[string]string `json:"fields,omitempty"`
}

// FieldErrors flattens validator errors into field -> tag messages.
func FieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return out
}

// RespondValidation writes a 400 problem describing a failed decode or validation.
func RespondValidation(w http.ResponseWriter, err error) {
	fields := FieldErrors(err)
	detail := err.Error()
	if len(fields) > 0 {
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		detail = "invalid fields: " + strings.Join(names, ", ")
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(ValidationProblem{
		ProblemDetail: ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Detail: detail,
			Error:  detail,
		},
		Fields: fields,
	})
}
