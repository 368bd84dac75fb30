// Package api is the REST client for the conversation backend. Reads retry
// with exponential backoff; sends, edits and deletes are issued exactly once
// because the server does not deduplicate them.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chatsync/internal/apperr"
)

type ClientConfig struct {
	BaseURL         string
	Token           string
	Timeout         time.Duration
	RetryMaxElapsed time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

type Client struct {
	http    *http.Client
	conf    ClientConfig
	breaker *gobreaker.CircuitBreaker
	log     *zap.SugaredLogger
}

func NewClient(conf ClientConfig, log *zap.SugaredLogger) *Client {
	if conf.Timeout == 0 {
		conf.Timeout = 15 * time.Second
	}
	if conf.RetryMaxElapsed == 0 {
		conf.RetryMaxElapsed = 10 * time.Second
	}
	if conf.MaxIdleConns == 0 {
		conf.MaxIdleConns = 32
	}
	if conf.IdleConnTimeout == 0 {
		conf.IdleConnTimeout = 90 * time.Second
	}
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    conf.MaxIdleConns,
		IdleConnTimeout: conf.IdleConnTimeout,
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "chat-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		http:    &http.Client{Transport: tr, Timeout: conf.Timeout},
		conf:    conf,
		breaker: cb,
		log:     log,
	}
}

// tokenExpired parses the bearer token without verifying its signature, only
// to fail fast on a token the server will reject anyway. Signature checks
// belong to the server.
func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Now().After(exp.Time)
}

type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.status, e.body)
}

func mapStatus(err error) error {
	he, ok := err.(*httpError)
	if !ok {
		return fmt.Errorf("%w: %v", apperr.ErrNetwork, err)
	}
	switch {
	case he.status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %v", apperr.ErrUnauthorized, he)
	case he.status == http.StatusForbidden:
		return fmt.Errorf("%w: %v", apperr.ErrPermissionDenied, he)
	case he.status == http.StatusNotFound || he.status == http.StatusGone:
		return fmt.Errorf("%w: %v", apperr.ErrNotFoundOrExpired, he)
	case he.status >= 500:
		return fmt.Errorf("%w: %v", apperr.ErrNetwork, he)
	default:
		return he
	}
}

// do runs one request through the breaker. GETs are retried with exponential
// backoff on transient failures; everything else goes out exactly once.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if tokenExpired(c.conf.Token) {
		return fmt.Errorf("%w: bearer token expired", apperr.ErrUnauthorized)
	}
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = b
	}

	attempt := func() error {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.conf.BaseURL+path, rd)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.conf.Token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			he := &httpError{status: resp.StatusCode, body: string(b)}
			if resp.StatusCode >= 500 {
				return he // retryable for reads
			}
			return backoff.Permanent(he)
		}
		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	run := func() error {
		if method != http.MethodGet {
			return attempt()
		}
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = c.conf.RetryMaxElapsed
		return backoff.Retry(attempt, backoff.WithContext(b, ctx))
	}

	_, err := c.breaker.Execute(func() (any, error) {
		return nil, run()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return fmt.Errorf("%w: %v", apperr.ErrNetwork, err)
		}
		var pe *backoff.PermanentError
		if errors.As(err, &pe) {
			err = pe.Err
		}
		c.log.Debugw("request failed", "method", method, "path", path, "err", err)
		return mapStatus(err)
	}
	return nil
}
