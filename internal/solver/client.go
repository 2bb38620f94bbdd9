// Package solver talks to a FlareSolverr-compatible challenge solving
// service and hands back the validated session material a browser needs to
// pass bot mitigation.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/demograb/demograb/internal/browser"
	"github.com/demograb/demograb/internal/logctx"
)

// SessionMaterial is the result of a successful challenge solve: the cookie
// set, the user agent the solver browsed with, and the markup it saw. The
// markup may be reused to skip a second fetch of the target page.
type SessionMaterial struct {
	Cookies   []browser.Cookie
	UserAgent string
	Markup    string
}

type solveRequest struct {
	Cmd        string        `json:"cmd"`
	URL        string        `json:"url"`
	MaxTimeout int64         `json:"maxTimeout"`
	Proxy      *proxyOptions `json:"proxy,omitempty"`
}

type proxyOptions struct {
	URL string `json:"url"`
}

type solveResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Solution struct {
		Response  string `json:"response"`
		UserAgent string `json:"userAgent"`
		Cookies   []struct {
			Name   string `json:"name"`
			Value  string `json:"value"`
			Domain string `json:"domain"`
			Path   string `json:"path"`
		} `json:"cookies"`
	} `json:"solution"`
}

type Client struct {
	endpoint   string
	httpClient *http.Client
	maxWait    time.Duration
	proxyURL   string
	retryCount int
	retryDelay time.Duration
}

// NewClient builds a solver client for the given /v1 endpoint. maxWait is
// forwarded to the solver as the challenge budget; the HTTP call itself is
// bounded by maxWait plus a small grace period.
func NewClient(endpoint string, maxWait time.Duration, proxyURL string, retryCount int, retryDelay time.Duration) *Client {
	if retryCount < 1 {
		retryCount = 1
	}

	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: maxWait + 10*time.Second},
		maxWait:    maxWait,
		proxyURL:   proxyURL,
		retryCount: retryCount,
		retryDelay: retryDelay,
	}
}

// Solve asks the challenge solver to fetch url past its bot mitigation.
// Every failure mode (transport error, non-200 status, a payload whose
// status is not "ok" or that is missing markup, cookies, or user agent) is
// retried with a fixed delay between attempts. After the configured number of
// attempts the last error is returned; nothing escapes this boundary
// uncaught.
func (c *Client) Solve(ctx context.Context, url string) (*SessionMaterial, error) {
	logger := logctx.LoggerFromContext(ctx).With("solver", c.endpoint, "url", url)

	attempt := 0
	operation := func() (*SessionMaterial, error) {
		attempt++

		material, err := c.attempt(ctx, url)
		if err != nil {
			logger.Warn("challenge solve attempt failed", "attempt", attempt, "err", err)

			return nil, err
		}

		logger.Info("challenge solved", "attempt", attempt, "cookies", len(material.Cookies))

		return material, nil
	}

	material, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryDelay)),
		backoff.WithMaxTries(uint(c.retryCount)),
	)
	if err != nil {
		return nil, fmt.Errorf("challenge solve exhausted %d attempts: %w", c.retryCount, err)
	}

	return material, nil
}

func (c *Client) attempt(ctx context.Context, url string) (*SessionMaterial, error) {
	payload := solveRequest{
		Cmd:        "request.get",
		URL:        url,
		MaxTimeout: c.maxWait.Milliseconds(),
	}
	if c.proxyURL != "" {
		payload.Proxy = &proxyOptions{URL: c.proxyURL}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode solve request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build solve request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("solver request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)

		return nil, fmt.Errorf("solver returned HTTP %d: %s", resp.StatusCode, string(b))
	}

	var result solveResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode solver response: %w", err)
	}

	if result.Status != "ok" {
		return nil, fmt.Errorf("solver status %q: %s", result.Status, result.Message)
	}

	if result.Solution.Response == "" || result.Solution.UserAgent == "" || len(result.Solution.Cookies) == 0 {
		return nil, fmt.Errorf("solver payload incomplete: markup=%t cookies=%d user_agent=%t",
			result.Solution.Response != "", len(result.Solution.Cookies), result.Solution.UserAgent != "")
	}

	material := &SessionMaterial{
		UserAgent: result.Solution.UserAgent,
		Markup:    result.Solution.Response,
		Cookies:   make([]browser.Cookie, 0, len(result.Solution.Cookies)),
	}

	for _, cookie := range result.Solution.Cookies {
		material.Cookies = append(material.Cookies, browser.Cookie{
			Name:   cookie.Name,
			Value:  cookie.Value,
			Domain: cookie.Domain,
			Path:   cookie.Path,
		})
	}

	return material, nil
}
