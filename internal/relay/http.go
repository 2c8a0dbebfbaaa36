package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"securechat/internal/domain"
	"securechat/internal/wire"
)

// HTTP is a RelayClient speaking the relay's HTTP API.
type HTTP struct {
	Base  string
	HTTP  *http.Client
	Codec wire.Codec
}

// NewHTTP returns a client for the relay at base. A nil client or codec falls
// back to http.DefaultClient and JSON.
func NewHTTP(base string, hc *http.Client, codec wire.Codec) *HTTP {
	if hc == nil {
		hc = http.DefaultClient
	}
	if codec == nil {
		codec = wire.JSON{}
	}
	return &HTTP{Base: strings.TrimRight(base, "/"), HTTP: hc, Codec: codec}
}

// PublishBundle uploads one bundle for the device named by its registration id.
func (c *HTTP) PublishBundle(ctx context.Context, user domain.ContactID, b domain.PreKeyBundle) error {
	path := "/bundles/" + url.PathEscape(string(user)) + "/" + strconv.FormatUint(uint64(b.RegistrationID), 10)
	return c.do(ctx, http.MethodPost, path, b, nil)
}

// FetchBundles returns one bundle per published device of user. An unknown
// user yields no bundles.
func (c *HTTP) FetchBundles(ctx context.Context, user domain.ContactID) ([]domain.PreKeyBundle, error) {
	var out []domain.PreKeyBundle
	err := c.do(ctx, http.MethodGet, "/bundles/"+url.PathEscape(string(user)), nil, &out)
	if isNotFound(err) {
		return nil, nil
	}
	return out, err
}

// SendMessage enqueues env in the recipient's mailbox.
func (c *HTTP) SendMessage(ctx context.Context, env domain.Envelope) error {
	return c.do(ctx, http.MethodPost, "/msg/"+url.PathEscape(string(env.To)), env, nil)
}

// FetchMessages returns up to limit queued envelopes; limit <= 0 means all.
func (c *HTTP) FetchMessages(ctx context.Context, user domain.ContactID, limit int) ([]domain.Envelope, error) {
	path := "/msg/" + url.PathEscape(string(user))
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var envs []domain.Envelope
	if err := c.do(ctx, http.MethodGet, path, nil, &envs); err != nil {
		return nil, err
	}
	return envs, nil
}

// AckMessages drops the envelopes with the given ids from user's mailbox.
func (c *HTTP) AckMessages(ctx context.Context, user domain.ContactID, ids []string) error {
	return c.do(ctx, http.MethodPost, "/msg/"+url.PathEscape(string(user))+"/ack", ackRequest{IDs: ids}, nil)
}

type ackRequest struct {
	IDs []string `json:"ids"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	URL    string
	Status int
	Text   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay %s %s: %d %s", e.Method, e.URL, e.Status, e.Text)
}

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

func (c *HTTP) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := c.Codec.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	u := c.Base + path
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", c.Codec.ContentType())
	}
	req.Header.Set("Accept", c.Codec.ContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, URL: u, Status: resp.StatusCode, Text: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return wire.ForContentType(resp.Header.Get("Content-Type")).Unmarshal(b, out)
}

var _ domain.RelayClient = (*HTTP)(nil)
