package common_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-paytr/internal/common"
)

type errorResponse struct {
	Error common.ErrorBody `json:"error"`
}

func TestWriteErrorUsesAppErrorStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, common.NewAppError("CART_NOT_FOUND", "cart missing", http.StatusNotFound, errors.New("no rows")))

	require.Equal(t, http.StatusNotFound, rr.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "CART_NOT_FOUND", body.Error.Code)
	require.Equal(t, "cart missing", body.Error.Message)
}

func TestWriteErrorHidesUnknownErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, errors.New("dial tcp 10.0.0.3:5432: connection refused"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "10.0.0.3")
}

func TestAppErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := common.NewAppError("X", "x", http.StatusTeapot, base)
	require.ErrorIs(t, err, base)
	require.Equal(t, "boom", err.Error())
}

func TestText(t *testing.T) {
	rr := httptest.NewRecorder()
	common.Text(rr, http.StatusOK, "OK")
	require.Equal(t, "OK", rr.Body.String())
	require.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded first valid", headers: map[string]string{"X-Forwarded-For": "unknown, 203.0.113.9, 10.0.0.1"}, remote: "10.0.0.2:80", want: "203.0.113.9"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.4"}, remote: "10.0.0.2:80", want: "198.51.100.4"},
		{name: "remote addr", remote: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "remote without port", remote: "192.0.2.1", want: "192.0.2.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tc.want, common.ClientIP(req))
		})
	}
}

func TestSha256Hex(t *testing.T) {
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", common.Sha256Hex(""))
}
