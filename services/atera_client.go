package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/phonginreallife/oncall-notifier/internal/logger"
)

const (
	DefaultAteraBaseURL  = "https://app.atera.com"
	DefaultAteraPageSize = 50
	DefaultAteraTimeout  = 30 * time.Second

	ateraTicketsPath = "/api/v3/tickets"
)

var ErrMissingAPIKey = errors.New("ticket source API key is not configured")

// TicketSource lists open tickets from the external ticketing system
type TicketSource interface {
	FetchOpenTickets(ctx context.Context, apiKey string) ([]AteraTicket, error)
}

// AteraTicket is one item of the Atera v3 tickets listing
type AteraTicket struct {
	TicketID          ExternalID `json:"TicketID"`
	TicketTitle       string     `json:"TicketTitle"`
	FirstComment      string     `json:"FirstComment"`
	TicketStatus      string     `json:"TicketStatus"`
	TicketPriority    string     `json:"TicketPriority"`
	CustomerName      string     `json:"CustomerName"`
	EndUserFirstName  string     `json:"EndUserFirstName"`
	EndUserLastName   string     `json:"EndUserLastName"`
	TicketCreatedDate string     `json:"TicketCreatedDate"`
}

type ateraTicketPage struct {
	Items []AteraTicket `json:"items"`
}

// ExternalID decodes an identifier sent either as a JSON number or string
type ExternalID string

func (id *ExternalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ExternalID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("ticket id must be a string or number: %w", err)
	}
	*id = ExternalID(n.String())
	return nil
}

// SourceStatusError is returned when the ticket source answers with a
// non-200 status
type SourceStatusError struct {
	StatusCode int
	Body       string
}

func (e *SourceStatusError) Error() string {
	return fmt.Sprintf("ticket source returned status %d: %s", e.StatusCode, e.Body)
}

// AteraClient reads open tickets from the Atera REST API
type AteraClient struct {
	httpClient *resty.Client
	pageSize   int
	logger     *zap.Logger
}

// NewAteraClient creates the client. Failed requests are not retried; the
// next scheduled cycle is the retry.
func NewAteraClient(baseURL string, pageSize int, timeout time.Duration, log *zap.Logger) *AteraClient {
	if baseURL == "" {
		baseURL = DefaultAteraBaseURL
	}
	if pageSize <= 0 {
		pageSize = DefaultAteraPageSize
	}
	if timeout <= 0 {
		timeout = DefaultAteraTimeout
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &AteraClient{
		httpClient: client,
		pageSize:   pageSize,
		logger:     logger.OrNop(log),
	}
}

// FetchOpenTickets returns the first page of open tickets
func (c *AteraClient) FetchOpenTickets(ctx context.Context, apiKey string) ([]AteraTicket, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	var page ateraTicketPage
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", apiKey).
		SetQueryParams(map[string]string{
			"page":         "1",
			"itemsInPage":  strconv.Itoa(c.pageSize),
			"ticketStatus": "Open",
		}).
		ForceContentType("application/json").
		SetResult(&page).
		Get(ateraTicketsPath)
	if err != nil {
		c.logger.Error("Ticket source request failed", zap.Error(err))
		return nil, fmt.Errorf("failed to call ticket source: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		body := resp.String()
		if len(body) > 512 {
			body = body[:512]
		}
		c.logger.Error("Ticket source returned error status",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", body),
		)
		return nil, &SourceStatusError{StatusCode: resp.StatusCode(), Body: body}
	}

	c.logger.Debug("Fetched open tickets", zap.Int("count", len(page.Items)))
	return page.Items, nil
}
