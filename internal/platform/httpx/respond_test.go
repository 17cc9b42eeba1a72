package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("role: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("email: %w", ErrDuplicate), http.StatusConflict},
		{fmt.Errorf("users assigned: %w", ErrConflict), http.StatusConflict},
		{fmt.Errorf("name: %w", ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("super admin only: %w", ErrForbidden), http.StatusForbidden},
		{ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}

func TestProblemCarriesErrorField(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("Only Super Admins can delete users: %w", ErrForbidden))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusForbidden, body.Status)
	assert.Contains(t, body.Error, "Only Super Admins")
}

func TestInternalErrorHidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pq: password authentication failed"))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Detail)
	assert.Equal(t, "Internal Error", body.Error)
}
