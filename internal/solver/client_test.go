package solver_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demograb/demograb/internal/solver"
)

func solutionPayload() map[string]any {
	return map[string]any{
		"status": "ok",
		"solution": map[string]any{
			"response":  "<html><body>cleared</body></html>",
			"userAgent": "Mozilla/5.0 test-agent",
			"cookies": []map[string]string{
				{"name": "cf_clearance", "value": "abc123", "domain": ".example.org", "path": "/"},
			},
		},
	}
}

func TestSolve(t *testing.T) {
	var gotBody map[string]any

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(solutionPayload())
	}))
	defer ts.Close()

	client := solver.NewClient(ts.URL, 60*time.Second, "http://proxy.local:3128", 3, time.Millisecond)

	material, err := client.Solve(context.Background(), "https://www.example.org/download/demo/98531")
	require.NoError(t, err)

	assert.Equal(t, "Mozilla/5.0 test-agent", material.UserAgent)
	assert.Contains(t, material.Markup, "cleared")
	require.Len(t, material.Cookies, 1)
	assert.Equal(t, "cf_clearance", material.Cookies[0].Name)
	assert.Equal(t, ".example.org", material.Cookies[0].Domain)

	assert.Equal(t, "request.get", gotBody["cmd"])
	assert.Equal(t, "https://www.example.org/download/demo/98531", gotBody["url"])
	assert.Equal(t, float64(60000), gotBody["maxTimeout"])
	assert.Equal(t, map[string]any{"url": "http://proxy.local:3128"}, gotBody["proxy"])
}

func TestSolve_RetriesUntilExhausted(t *testing.T) {
	tests := []struct {
		name         string
		statusCode   int
		responseBody string
	}{
		{"http error", http.StatusInternalServerError, `{"status":"error"}`},
		{"solver status not ok", http.StatusOK, `{"status":"error","message":"challenge not solved"}`},
		{"payload missing solution", http.StatusOK, `{"status":"ok","solution":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts int

			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts++
				w.WriteHeader(tt.statusCode)
				fmt.Fprint(w, tt.responseBody)
			}))
			defer ts.Close()

			client := solver.NewClient(ts.URL, time.Second, "", 3, time.Millisecond)

			material, err := client.Solve(context.Background(), "https://www.example.org/download/demo/1")
			assert.Error(t, err)
			assert.Nil(t, material)
			assert.Equal(t, 3, attempts)
		})
	}
}

func TestSolve_RecoversOnLaterAttempt(t *testing.T) {
	var attempts int

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(solutionPayload())
	}))
	defer ts.Close()

	client := solver.NewClient(ts.URL, time.Second, "", 3, time.Millisecond)

	material, err := client.Solve(context.Background(), "https://www.example.org/download/demo/1")
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.NotEmpty(t, material.Markup)
}

func TestSolve_TransportError(t *testing.T) {
	// Point at a closed server so every attempt fails at the transport level.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	client := solver.NewClient(ts.URL, time.Second, "", 2, time.Millisecond)

	_, err := client.Solve(context.Background(), "https://www.example.org/download/demo/1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "exhausted 2 attempts")
}
