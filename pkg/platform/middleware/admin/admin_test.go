package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireAdminToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name     string
		expected string
		header   string
		status   int
	}{
		{name: "matching token", expected: "s3cret", header: "s3cret", status: http.StatusNoContent},
		{name: "missing token", expected: "s3cret", status: http.StatusUnauthorized},
		{name: "wrong token", expected: "s3cret", header: "guess", status: http.StatusUnauthorized},
		{name: "guard disabled", expected: "", status: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPatch, "/admin/promises/P1", nil)
			if tt.header != "" {
				req.Header.Set(TokenHeader, tt.header)
			}
			rr := httptest.NewRecorder()
			RequireAdminToken(tt.expected, logger)(ok).ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}
