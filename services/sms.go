package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/phonginreallife/oncall-notifier/internal/logger"
)

// FailureCategory classifies a rejected SMS submission
type FailureCategory string

const (
	FailureInvalidDestination FailureCategory = "invalid_destination"
	FailurePermission         FailureCategory = "permission"
	FailureMessageTooLong     FailureCategory = "message_too_long"
	FailureAuthentication     FailureCategory = "authentication"
	FailureNotConfigured      FailureCategory = "not_configured"
	FailureGeneric            FailureCategory = "generic"
)

// Twilio REST error codes
const (
	twilioCodeInvalidTo      = 21211
	twilioCodeTooLong        = 21608
	twilioCodeNoPermission   = 21612
	twilioCodeAuthentication = 20003
)

var ErrSMSNotConfigured = errors.New("sms credentials are not configured")

// SMSSender submits a text message and returns the provider message id
type SMSSender interface {
	Send(ctx context.Context, from, to, body string) (string, error)
}

// CredentialsProvider supplies SMS account credentials at send time
type CredentialsProvider interface {
	TwilioCredentials(ctx context.Context) TwilioCredentials
}

// SendError is a classified transport rejection
type SendError struct {
	Category FailureCategory
	Code     int
	Status   int
	Message  string
	Err      error
}

func (e *SendError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("sms rejected (%s, code %d): %s", e.Category, e.Code, e.Message)
	}
	return fmt.Sprintf("sms rejected (%s): %s", e.Category, e.Message)
}

func (e *SendError) Unwrap() error { return e.Err }

// ClassifySendError maps a transport error to its failure category
func ClassifySendError(err error) FailureCategory {
	if err == nil {
		return ""
	}
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Category
	}
	if errors.Is(err, ErrSMSNotConfigured) {
		return FailureNotConfigured
	}
	return FailureGeneric
}

func categoryForTwilioCode(code int) FailureCategory {
	switch code {
	case twilioCodeInvalidTo:
		return FailureInvalidDestination
	case twilioCodeNoPermission:
		return FailurePermission
	case twilioCodeTooLong:
		return FailureMessageTooLong
	case twilioCodeAuthentication:
		return FailureAuthentication
	default:
		return FailureGeneric
	}
}

// messageCreator is the slice of the Twilio API the sender uses
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// TwilioSender sends SMS through the Twilio Messages API. Credentials are
// resolved on every send so settings changes apply without a restart.
type TwilioSender struct {
	credentials CredentialsProvider
	timeout     time.Duration
	logger      *zap.Logger
	newClient   func(creds TwilioCredentials, timeout time.Duration) messageCreator
}

func NewTwilioSender(credentials CredentialsProvider, timeout time.Duration, log *zap.Logger) *TwilioSender {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TwilioSender{
		credentials: credentials,
		timeout:     timeout,
		logger:      logger.OrNop(log),
		newClient:   newTwilioAPI,
	}
}

func newTwilioAPI(creds TwilioCredentials, timeout time.Duration) messageCreator {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: creds.AccountSID,
		Password: creds.AuthToken,
	})
	client.SetTimeout(timeout)
	return client.Api
}

func (s *TwilioSender) Send(ctx context.Context, from, to, body string) (string, error) {
	creds := s.credentials.TwilioCredentials(ctx)
	if creds.AccountSID == "" || creds.AuthToken == "" {
		return "", ErrSMSNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(body)

	msg, err := s.newClient(creds, s.timeout).CreateMessage(params)
	if err != nil {
		return "", classifyTwilioError(err)
	}

	sid := ""
	if msg != nil && msg.Sid != nil {
		sid = *msg.Sid
	}
	s.logger.Info("SMS accepted by provider", zap.String("to", to), zap.String("sid", sid))
	return sid, nil
}

func classifyTwilioError(err error) *SendError {
	var restErr *twclient.TwilioRestError
	if errors.As(err, &restErr) {
		return &SendError{
			Category: categoryForTwilioCode(restErr.Code),
			Code:     restErr.Code,
			Status:   restErr.Status,
			Message:  restErr.Message,
			Err:      err,
		}
	}
	return &SendError{Category: FailureGeneric, Message: err.Error(), Err: err}
}
