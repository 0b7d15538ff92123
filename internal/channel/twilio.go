package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	BaseURL    string // redirects API calls, for tests; empty uses the SDK's host
}

func (c TwilioConfig) Complete() bool {
	return strings.TrimSpace(c.AccountSID) != "" &&
		strings.TrimSpace(c.AuthToken) != "" &&
		strings.TrimSpace(c.FromNumber) != ""
}

// Twilio sends SMS through the Twilio Messages REST resource.
type Twilio struct {
	cfg  TwilioConfig
	log  logx.Logger
	base *url.URL
	next http.RoundTripper
}

func NewTwilio(cfg TwilioConfig, log logx.Logger) (*Twilio, error) {
	if !cfg.Complete() {
		return nil, errors.New("twilio account_sid, auth_token and from_number are required")
	}
	t := &Twilio{cfg: cfg, log: log, next: http.DefaultTransport}
	if raw := strings.TrimSpace(cfg.BaseURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("twilio base_url: invalid %q", raw)
		}
		t.base = u
	}
	if t.log.IsZero() {
		t.log = logx.Nop()
	}
	return t, nil
}

// restClient builds an SDK client whose requests carry ctx. The SDK's
// request methods take no context, so cancellation rides on the transport.
func (t *Twilio) restClient(ctx context.Context) *twilio.RestClient {
	c := &client.Client{
		Credentials: client.NewCredentials(t.cfg.AccountSID, t.cfg.AuthToken),
		HTTPClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: twilioTransport{ctx: ctx, base: t.base, next: t.next},
		},
	}
	c.SetAccountSid(t.cfg.AccountSID)
	return twilio.NewRestClientWithParams(twilio.ClientParams{Client: c})
}

func (t *Twilio) Send(ctx context.Context, destination, message string) (reminder.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return reminder.Delivery{}, err
	}
	params := &openapi.CreateMessageParams{}
	params.SetPathAccountSid(t.cfg.AccountSID)
	params.SetTo(destination)
	params.SetFrom(t.cfg.FromNumber)
	params.SetBody(message)

	resp, err := t.restClient(ctx).Api.CreateMessage(params)
	if err != nil {
		var apiErr *client.TwilioRestError
		if errors.As(err, &apiErr) {
			return reminder.Delivery{}, fmt.Errorf("twilio %d: %s (code %d)", apiErr.Status, apiErr.Message, apiErr.Code)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return reminder.Delivery{}, ctxErr
		}
		return reminder.Delivery{}, err
	}
	if resp == nil || resp.Sid == nil || *resp.Sid == "" {
		return reminder.Delivery{}, errors.New("twilio response missing sid")
	}
	t.log.Debug("sms accepted", logx.String("to", destination), logx.String("sid", *resp.Sid), logx.Any("status", resp.Status))
	return reminder.Delivery{ID: *resp.Sid}, nil
}

type twilioTransport struct {
	ctx  context.Context
	base *url.URL
	next http.RoundTripper
}

func (t twilioTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(t.ctx)
	if t.base != nil {
		r.URL.Scheme = t.base.Scheme
		r.URL.Host = t.base.Host
		r.Host = ""
	}
	return t.next.RoundTrip(r)
}
