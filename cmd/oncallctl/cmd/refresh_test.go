package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, server *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--server", server.URL))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRefreshCommand(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/refresh-tickets", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"success":true,"outcome":"ok","message":"Fetched 2 tickets, 1 new, 1 notified","last_check":"2024-06-10 20:05:00","ticket_count":1,"notified_count":1}`))
		}))
		defer server.Close()

		out, err := runCLI(t, server, "refresh")

		require.NoError(t, err)
		assert.Contains(t, out, "[ok] Fetched 2 tickets, 1 new, 1 notified")
		assert.Contains(t, out, "2024-06-10 20:05:00")
	})

	t.Run("InProgress", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"success":false,"message":"A ticket refresh is already in progress"}`))
		}))
		defer server.Close()

		_, err := runCLI(t, server, "refresh")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "already in progress")
	})

	t.Run("SkippedCycle", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"success":false,"outcome":"skipped","message":"Cycle skipped","error":"ticket source API key is not configured"}`))
		}))
		defer server.Close()

		out, err := runCLI(t, server, "refresh")

		require.Error(t, err)
		assert.Contains(t, out, "[skipped]")
		assert.Contains(t, err.Error(), "API key")
	})
}

func TestStatusCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/business-hours/status":
			_, _ = w.Write([]byte(`{"within_business_hours":false,"current_time":"2024-06-10 20:00:00","timezone":"UTC","holiday":{"name":"Test Day"},"on_call":[{"name":"Alice","phone":"+15551110001"}]}`))
		case "/worker/stats":
			_, _ = w.Write([]byte(`{"runs":3,"rejected":1,"running":false,"interval":"5m0s","last_outcome":"ok","last_duration":"1.2s","last_check":"2024-06-10 19:55:00"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	out, err := runCLI(t, server, "status")

	require.NoError(t, err)
	assert.Contains(t, out, "Business hours:  false")
	assert.Contains(t, out, "Holiday:         Test Day")
	assert.Contains(t, out, "Alice +15551110001")
	assert.Contains(t, out, "3 run, 1 rejected")
}
