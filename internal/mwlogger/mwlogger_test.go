package mwlogger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMWLogger(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
	}{
		{name: "keeps incoming id", incoming: "req-42"},
		{name: "generates id", incoming: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hasLogger bool
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hasLogger = r.Context().Value(loggerWithRequestID{}) != nil
				w.WriteHeader(http.StatusAccepted)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			NewMWLogger(next).ServeHTTP(w, req)

			require.True(t, hasLogger)
			require.Equal(t, http.StatusAccepted, w.Code)
			if tt.incoming != "" {
				require.Equal(t, tt.incoming, w.Header().Get(RequestIDHeader))
			} else {
				require.NotEmpty(t, w.Header().Get(RequestIDHeader))
			}
		})
	}
}

func TestLoggerFromContext_Fallback(t *testing.T) {
	require.NotPanics(t, func() {
		l := LoggerFromContext(context.Background())
		l.Info().Msg("fallback logger works")
	})
}
