// Package graphql is the CRM transport: a POST of {query, variables} that
// answers {data, errors}. Mutations pass through a write limiter so bulk
// migrations stay under the CRM's rate limit.
package graphql

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"golang.org/x/time/rate"

	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/httpclient"
	"github.com/omniaagent/crmsync/internal/logger"
)

// DefaultWriteInterval is the minimum spacing between two mutations.
const DefaultWriteInterval = 20 * time.Millisecond

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 512

// Executor runs GraphQL documents. *Client implements it; tests substitute fakes.
type Executor interface {
	Query(ctx context.Context, query string, vars map[string]any) (*jason.Object, error)
	Mutate(ctx context.Context, query string, vars map[string]any) (*jason.Object, error)
}

// Client posts GraphQL documents to a single endpoint.
type Client struct {
	http     *httpclient.Client
	endpoint string
	limiter  *rate.Limiter
	log      logger.Logger
	observe  func(time.Duration, error)
}

// Option configures a Client.
type Option func(*Client)

// WithWriteInterval spaces mutations at least d apart. Zero disables limiting.
func WithWriteInterval(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithWriteObserver registers fn to receive the duration and result of every mutation.
func WithWriteObserver(fn func(time.Duration, error)) Option {
	return func(c *Client) { c.observe = fn }
}

// NewClient returns a client for endpoint, e.g. https://crm.example.com/graphql.
func NewClient(hc *httpclient.Client, endpoint string, opts ...Option) *Client {
	c := &Client{
		http:     hc,
		endpoint: endpoint,
		limiter:  rate.NewLimiter(rate.Every(DefaultWriteInterval), 1),
		log:      GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the URL the client posts to.
func (c *Client) Endpoint() string { return c.endpoint }

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Query executes a read and returns the response's data object.
func (c *Client) Query(ctx context.Context, query string, vars map[string]any) (*jason.Object, error) {
	return c.do(ctx, query, vars)
}

// Mutate waits on the write limiter and then executes the document.
func (c *Client) Mutate(ctx context.Context, query string, vars map[string]any) (*jason.Object, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.New(err).
				Component("graphql").
				Category(errors.CategoryCancellation).
				Context("operation", "write_limiter").
				Build()
		}
	}

	start := time.Now()
	data, err := c.do(ctx, query, vars)
	if c.observe != nil {
		c.observe(time.Since(start), err)
	}
	return data, err
}

func (c *Client) do(ctx context.Context, query string, vars map[string]any) (*jason.Object, error) {
	start := time.Now()
	resp, err := c.http.Post(ctx, c.endpoint, "application/json", request{Query: query, Variables: vars})
	if err != nil {
		category := errors.CategoryNetwork
		if ctx.Err() != nil {
			category = errors.CategoryCancellation
		}
		return nil, errors.New(err).
			Component("graphql").
			Category(category).
			NetworkContext(c.endpoint, c.http.Timeout()).
			Timing("graphql_request", time.Since(start)).
			Build()
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, errors.Newf("CRM API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body))).
			Component("graphql").
			Category(errors.CategoryHTTP).
			Context("operation", "graphql_request").
			Context("status_code", resp.StatusCode).
			Build()
	}

	obj, err := jason.NewObjectFromReader(resp.Body)
	if err != nil {
		return nil, errors.New(fmt.Errorf("decode graphql response: %w", err)).
			Component("graphql").
			Category(errors.CategoryIntegration).
			Context("operation", "graphql_decode").
			Build()
	}

	if rerr := responseErrors(obj); rerr != nil {
		c.log.Debug("graphql errors in response", logger.String("error", rerr.Error()))
		return nil, errors.New(rerr).
			Component("graphql").
			Category(errors.CategoryIntegration).
			Context("operation", "graphql_request").
			Build()
	}

	data, err := obj.GetObject("data")
	if err != nil {
		return nil, errors.New(fmt.Errorf("graphql response has no data: %w", err)).
			Component("graphql").
			Category(errors.CategoryIntegration).
			Context("operation", "graphql_decode").
			Build()
	}
	return data, nil
}

// ResponseError carries the messages of a non-empty `errors` array.
type ResponseError struct {
	Messages []string
}

func (e *ResponseError) Error() string {
	return "CRM GraphQL error: " + strings.Join(e.Messages, "; ")
}

func responseErrors(obj *jason.Object) *ResponseError {
	items, err := obj.GetObjectArray("errors")
	if err != nil || len(items) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(items))
	for _, item := range items {
		msg, err := item.GetString("message")
		if err != nil || msg == "" {
			msg = "unknown error"
		}
		msgs = append(msgs, msg)
	}
	return &ResponseError{Messages: msgs}
}
