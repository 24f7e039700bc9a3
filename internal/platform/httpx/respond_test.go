package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Quantity string `json:"quantity" validate:"required"`
	Reason   string `json:"reason" validate:"required,max=5"`
}

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: item", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: qty", ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: stock", ErrUnprocessable), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: number", ErrConflict), http.StatusConflict},
		{fmt.Errorf("database is down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code, tc.err.Error())
	}

	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("secret dsn leaked"))
	require.NotContains(t, rr.Body.String(), "secret")
}

func TestDecodeAndValidate(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":"","reason":"too long"}`))
	rr := httptest.NewRecorder()
	var body sampleRequest
	require.False(t, DecodeAndValidate(rr, req, &body))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, "required", problem.Fields["quantity"])
	require.Equal(t, "max", problem.Fields["reason"])

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":"5","reason":"ok","extra":1}`))
	rr = httptest.NewRecorder()
	require.False(t, DecodeAndValidate(rr, req, &body))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":"5","reason":"ok"}`))
	rr = httptest.NewRecorder()
	require.True(t, DecodeAndValidate(rr, req, &body))
	require.Equal(t, "5", body.Quantity)
}
