package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestHealthBypassesAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newRouter("test", "secret")

	w := serve(r, http.MethodGet, healthPath, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "true")
}

func TestAuthMiddlewareRejections(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name     string
		token    string
		headers  map[string]string
		wantCode int
		wantBody string
	}{
		{
			name:     "missing caller id",
			token:    "secret",
			headers:  nil,
			wantCode: http.StatusBadRequest,
			wantBody: callerIdHeader + " header is missing",
		},
		{
			name:     "missing auth token",
			token:    "secret",
			headers:  map[string]string{callerIdHeader: "test-caller"},
			wantCode: http.StatusBadRequest,
			wantBody: AuthTokenHeader + " header is missing",
		},
		{
			name:  "wrong auth token",
			token: "secret",
			headers: map[string]string{
				callerIdHeader:  "test-caller",
				AuthTokenHeader: "not-secret",
			},
			wantCode: http.StatusUnauthorized,
			wantBody: "Invalid auth token",
		},
		{
			name:  "empty configured token rejects all callers",
			token: "",
			headers: map[string]string{
				callerIdHeader:  "test-caller",
				AuthTokenHeader: "anything",
			},
			wantCode: http.StatusUnauthorized,
			wantBody: "Invalid auth token",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter("test", tc.token)
			w := serve(r, http.MethodPost, "/api/v1/state/decode", tc.headers)
			assert.Equal(t, tc.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tc.wantBody)
		})
	}
}
