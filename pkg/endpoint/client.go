// Package endpoint talks to the remote inference endpoint.
//
// The endpoint takes a single JSON object `{"prompt": "..."}` and answers with
// `{"response": "..."}`. Every call is independent: there is no session,
// authentication, retry or streaming.
package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/medchat/pkg/conversation"
)

const DefaultURL = "http://localhost:3001/api/gemini"

// Request is the outbound payload.
type Request struct {
	Prompt string `json:"prompt"`
}

// Response is the expected reply body.
type Response struct {
	Response string `json:"response"`
}

type Client struct {
	url        string
	httpClient *http.Client
}

var _ conversation.Completer = &Client{}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithTimeout bounds every call. Zero leaves calls unbounded.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			hc := *cl.httpClient
			hc.Timeout = d
			cl.httpClient = &hc
		}
	}
}

func NewClient(rawURL string, opts ...Option) (*Client, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		rawURL = DefaultURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid endpoint url %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("endpoint url %q must use http or https", rawURL)
	}
	if u.Host == "" {
		return nil, errors.Errorf("endpoint url %q has no host", rawURL)
	}

	c := &Client{
		url:        u.String(),
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) URL() string {
	return c.url
}

// Complete posts the prompt and returns the response text. A body without a
// response field yields an empty string and no error.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(Request{Prompt: prompt})
	if err != nil {
		return "", &Error{Kind: KindEncode, URL: c.url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindEncode, URL: c.url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Kind: KindNetwork, URL: c.url, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: KindNetwork, URL: c.url, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "read body")}
	}

	log.Debug().
		Str("component", "endpoint").
		Str("url", c.url).
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("endpoint call finished")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{
			Kind:       KindStatus,
			URL:        c.url,
			StatusCode: resp.StatusCode,
			Err:        errors.Errorf("unexpected status %s", resp.Status),
		}
	}

	return decodeReply(data, c.url, resp.StatusCode)
}

// decodeReply extracts the response text. Any JSON value other than null is
// accepted; a body that is not an object, or whose response is missing, not a
// string or empty, yields "" and the caller shows the fallback text.
func decodeReply(data []byte, url string, status int) (string, error) {
	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		return "", &Error{Kind: KindDecode, URL: url, StatusCode: status, Err: err}
	}
	if body == nil {
		return "", &Error{Kind: KindDecode, URL: url, StatusCode: status, Err: errors.New("reply body is null")}
	}
	obj, ok := body.(map[string]any)
	if !ok {
		return "", nil
	}
	text, _ := obj["response"].(string)
	return text, nil
}
