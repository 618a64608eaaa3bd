package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var errMissing = errors.New("missing")

func TestRespondErrorUsesFirstMatchingRule(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("load: %w", errMissing),
		Rule{Target: ErrBadRequest, Status: http.StatusBadRequest, Title: "Bad Request"},
		Rule{Target: errMissing, Status: http.StatusNotFound, Title: "Not Found"},
	)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Not Found", body.Title)
	require.Equal(t, "load: missing", body.Detail)
}

func TestRespondErrorFallsBackToInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("db exploded"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "db exploded")
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	require.Equal(t, "ok", dst.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nam":"typo"}`))
	require.ErrorIs(t, DecodeJSON(req, &dst), ErrBadRequest)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"} {"name":"b"}`))
	require.ErrorIs(t, DecodeJSON(req, &dst), ErrBadRequest)
}
