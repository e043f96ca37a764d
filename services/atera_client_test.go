package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAteraClient_FetchOpenTickets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/tickets", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("itemsInPage"))
		assert.Equal(t, "Open", r.URL.Query().Get("ticketStatus"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"TicketID": 1042, "TicketTitle": "Printer down", "FirstComment": "Floor 2",
			 "TicketStatus": "Open", "TicketPriority": "High", "CustomerName": "Acme",
			 "EndUserFirstName": "Jane", "EndUserLastName": "Doe",
			 "TicketCreatedDate": "2025-04-16T16:34:41Z"},
			{"TicketID": "A-7", "TicketTitle": null}
		]}`))
	}))
	defer server.Close()

	client := NewAteraClient(server.URL, 0, 0, zap.NewNop())
	tickets, err := client.FetchOpenTickets(context.Background(), "test-key")
	require.NoError(t, err)
	require.Len(t, tickets, 2)

	assert.Equal(t, ExternalID("1042"), tickets[0].TicketID)
	assert.Equal(t, "Printer down", tickets[0].TicketTitle)
	assert.Equal(t, "Acme", tickets[0].CustomerName)
	assert.Equal(t, "2025-04-16T16:34:41Z", tickets[0].TicketCreatedDate)

	assert.Equal(t, ExternalID("A-7"), tickets[1].TicketID)
	assert.Empty(t, tickets[1].TicketTitle)
}

func TestAteraClient_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"Message":"invalid api key"}`))
	}))
	defer server.Close()

	client := NewAteraClient(server.URL, 25, time.Second, zap.NewNop())
	tickets, err := client.FetchOpenTickets(context.Background(), "bad-key")

	assert.Nil(t, tickets)
	var statusErr *SourceStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "invalid api key")
}

func TestAteraClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewAteraClient(server.URL, 50, 50*time.Millisecond, zap.NewNop())
	_, err := client.FetchOpenTickets(context.Background(), "key")

	assert.Error(t, err)
}

func TestAteraClient_MissingKey(t *testing.T) {
	client := NewAteraClient("http://127.0.0.1:1", 50, time.Second, zap.NewNop())
	_, err := client.FetchOpenTickets(context.Background(), "")

	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestExternalID_Unmarshal(t *testing.T) {
	var v struct {
		ID ExternalID `json:"id"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"id": 12}`), &v))
	assert.Equal(t, ExternalID("12"), v.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id": " T-9 "}`), &v))
	assert.Equal(t, ExternalID("T-9"), v.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id": null}`), &v))
	assert.Equal(t, ExternalID(""), v.ID)

	assert.Error(t, json.Unmarshal([]byte(`{"id": true}`), &v))
}
