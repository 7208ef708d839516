package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signIn struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func decode(t *testing.T, body, contentType string) (signIn, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	var out signIn
	err := DecodeJSON(httptest.NewRecorder(), req, &out)
	return out, err
}

func TestDecodeJSON(t *testing.T) {
	got, err := decode(t, `{"email":"kim@example.com","password":"x"}`, "application/json; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "kim@example.com", got.Email)
}

func TestDecodeJSONRejections(t *testing.T) {
	cases := map[string]struct {
		body, contentType, want string
	}{
		"unknown field": {`{"email":"a","admin":true}`, "", `unknown field "admin"`},
		"wrong type":    {`{"email":42}`, "", `field "email" has the wrong type`},
		"trailing data": {`{"email":"a"}{"email":"b"}`, "", "single JSON object"},
		"empty":         {``, "", "must be a JSON object"},
		"syntax":        {`{"email":}`, "", "malformed JSON at offset"},
		"form post":     {`email=a`, "application/x-www-form-urlencoded", "content type"},
		"too large":     {`{"email":"` + strings.Repeat("a", MaxBodyBytes) + `"}`, "", "must not exceed"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decode(t, tc.body, tc.contentType)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestProblemWithCode(t *testing.T) {
	rec := httptest.NewRecorder()
	ProblemWithCode(rec, http.StatusBadRequest, "Validation Failed", "check the form", "VALIDATION_ERROR", map[string]string{"email": "required"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "VALIDATION_ERROR", p.Code)
	assert.Equal(t, "required", p.Errors["email"])
}

func TestWriteProblemDefaults(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteProblem(rec, ProblemDetail{})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Internal Server Error"`)
}
