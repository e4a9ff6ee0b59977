package mailer

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// DefaultResendURL is the public Resend API endpoint.
const DefaultResendURL = "https://api.resend.com"

// APIError is a non-2xx response from the email API.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "email api: " + http.StatusText(e.StatusCode)
	}
	return "email api: " + e.Message
}

var _ Sender = (*ResendSender)(nil)

// ResendSender delivers email through the Resend HTTP API, or any service
// that speaks the same POST /emails contract.
type ResendSender struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// ResendOption configures a ResendSender.
type ResendOption func(*ResendSender)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) ResendOption {
	return func(s *ResendSender) { s.client = c }
}

// NewResendSender creates a ResendSender. An empty baseURL selects
// DefaultResendURL.
func NewResendSender(baseURL, apiKey string, opts ...ResendOption) *ResendSender {
	if baseURL == "" {
		baseURL = DefaultResendURL
	}
	s := &ResendSender{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func encodeEmail(e Email) []byte {
	var enc jx.Encoder
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("from", func(enc *jx.Encoder) { enc.Str(e.From) })
		enc.Field("to", func(enc *jx.Encoder) {
			enc.Arr(func(enc *jx.Encoder) {
				for _, to := range e.To {
					enc.Str(to)
				}
			})
		})
		enc.Field("subject", func(enc *jx.Encoder) { enc.Str(e.Subject) })
		enc.Field("text", func(enc *jx.Encoder) { enc.Str(e.Text) })
	})
	return enc.Bytes()
}

// Send posts e and returns an *APIError for rejected requests.
func (s *ResendSender) Send(ctx context.Context, e Email) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(encodeEmail(e)))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send email")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
			switch string(key) {
			case "message":
				v, err := d.Str()
				apiErr.Message = v
				return err
			case "name":
				v, err := d.Str()
				apiErr.Name = v
				return err
			default:
				return d.Skip()
			}
		})
		return apiErr
	}

	var id string
	if err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "id" {
			return d.Skip()
		}
		v, err := d.Str()
		id = v
		return err
	}); err != nil {
		return errors.Wrap(err, "decode response")
	}

	zctx.From(ctx).Debug("Email accepted", zap.String("email_id", id), zap.Strings("to", e.To))
	return nil
}
