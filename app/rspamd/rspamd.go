// Package rspamd is a client for rspamd http api. It scans telegram messages converted to emails
// with the normal worker (checkv2) and trains bayes and fuzzy storages via the controller worker.
package rspamd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-pkgz/repeater"
)

// MinFuzzyWords is the minimal number of words in a text accepted by fuzzy storage
const MinFuzzyWords = 8

// ErrTooShort returned when a text is too short to be taught to fuzzy storage
var ErrTooShort = errors.New("text is too short")

// HTTPClient is a subset of http.Client used by rspamd client
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Params defines rspamd connection parameters
type Params struct {
	URL         string        // controller url, i.e. http://127.0.0.1:11334
	Password    string        // controller password
	Timeout     time.Duration // http timeout
	Retries     int           // number of attempts for each request
	FuzzyFlag   int           // fuzzy storage flag
	FuzzyWeight int           // fuzzy storage weight
	LocalIP     string        // ip for Received header, detected if empty
	HTTPClient  HTTPClient    // custom http client, optional
}

// Client makes requests to rspamd
type Client struct {
	Params
	scanURL string
}

// Reply is a result of checkv2 request
type Reply struct {
	Score         float64           `json:"score"`
	RequiredScore float64           `json:"required_score"`
	Action        string            `json:"action"`
	IsSkipped     bool              `json:"is_skipped"`
	Symbols       map[string]Symbol `json:"symbols"`
	MessageID     string            `json:"message-id,omitempty"`
}

// Symbol is a single rule triggered by rspamd
type Symbol struct {
	Name        string   `json:"name"`
	Score       float64  `json:"score"`
	MetricScore float64  `json:"metric_score"`
	Description string   `json:"description,omitempty"`
	Options     []string `json:"options,omitempty"`
}

// Has checks if reply contains a symbol
func (r Reply) Has(name string) bool {
	_, ok := r.Symbols[name]
	return ok
}

// SymbolNames returns names of all symbols with non-zero score
func (r Reply) SymbolNames() []string {
	res := make([]string, 0, len(r.Symbols))
	for name, s := range r.Symbols {
		if s.Score == 0 {
			continue
		}
		res = append(res, name)
	}
	return res
}

// NewClient makes rspamd client. Scan url is derived from the controller url by replacing port 11334 with 11333,
// which are the default ports of rspamd controller and normal workers.
func NewClient(params Params) *Client {
	if params.Retries <= 0 {
		params.Retries = 1
	}
	if params.Timeout == 0 {
		params.Timeout = 10 * time.Second
	}
	if params.HTTPClient == nil {
		params.HTTPClient = &http.Client{Timeout: params.Timeout}
	}
	if params.LocalIP == "" {
		params.LocalIP = localIPv4()
	}
	params.URL = strings.TrimSuffix(params.URL, "/")
	return &Client{Params: params, scanURL: scanURL(params.URL)}
}

// Check scans the message and returns rspamd reply
func (c *Client) Check(ctx context.Context, msg Message) (Reply, error) {
	var reply Reply
	body := Email(msg, c.LocalIP, time.Now())
	headers := map[string]string{"Content-Type": "message/rfc822"}
	if c.Password != "" {
		headers["Password"] = c.Password
	}
	respBody, err := c.post(ctx, c.scanURL+"/checkv2", headers, body)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to check message %d: %w", msg.ID, err)
	}
	if err := json.Unmarshal(respBody, &reply); err != nil {
		return Reply{}, fmt.Errorf("can't decode rspamd reply: %w", err)
	}
	for name, s := range reply.Symbols {
		if s.Name == "" {
			s.Name = name
			reply.Symbols[name] = s
		}
	}
	log.Printf("[DEBUG] rspamd reply for msg %d: score %.2f/%.2f, action %q, symbols %v",
		msg.ID, reply.Score, reply.RequiredScore, reply.Action, reply.SymbolNames())
	return reply, nil
}

// LearnSpam teaches rspamd bayes classifier the message is spam
func (c *Client) LearnSpam(ctx context.Context, msg Message) error {
	return c.learn(ctx, "learnspam", msg)
}

// LearnHam teaches rspamd bayes classifier the message is ham
func (c *Client) LearnHam(ctx context.Context, msg Message) error {
	return c.learn(ctx, "learnham", msg)
}

// FuzzyAdd adds the text to fuzzy storage with configured flag and weight
func (c *Client) FuzzyAdd(ctx context.Context, text string) error {
	if len(strings.Fields(text)) < MinFuzzyWords {
		return ErrTooShort
	}
	headers := map[string]string{
		"Password": c.Password,
		"Flag":     fmt.Sprintf("%d", c.FuzzyFlag),
		"Weight":   fmt.Sprintf("%d", c.FuzzyWeight),
	}
	if _, err := c.post(ctx, c.URL+"/fuzzyadd", headers, []byte(text)); err != nil {
		return fmt.Errorf("failed to add fuzzy hash: %w", err)
	}
	return nil
}

func (c *Client) learn(ctx context.Context, endpoint string, msg Message) error {
	headers := map[string]string{"Password": c.Password, "Content-Type": "message/rfc822"}
	_, err := c.post(ctx, c.URL+"/"+endpoint, headers, Email(msg, c.LocalIP, time.Now()))
	var se *StatusError
	if errors.As(err, &se) && strings.Contains(strings.ToLower(se.Body), "already learned") {
		log.Printf("[DEBUG] message %d already learned by %s", msg.ID, endpoint)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", endpoint, err)
	}
	return nil
}

// StatusError returned for non-2xx responses
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// post sends body to the url with retries. Status errors are not retried.
func (c *Client) post(ctx context.Context, reqURL string, headers map[string]string, body []byte) ([]byte, error) {
	var respBody []byte
	var statusErr *StatusError
	err := repeater.NewDefault(c.Retries, 500*time.Millisecond).Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to make request %s: %w", reqURL, err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request %s: %w", reqURL, err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr = &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
			return nil // not retried
		}
		respBody = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	if statusErr != nil {
		return nil, statusErr
	}
	return respBody, nil
}

func scanURL(controller string) string {
	u, err := url.Parse(controller)
	if err != nil || u.Port() != "11334" {
		return controller
	}
	u.Host = net.JoinHostPort(u.Hostname(), "11333")
	return u.String()
}
