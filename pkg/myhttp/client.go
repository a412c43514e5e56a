package myhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

/*
	Define an HTTP Client with suitable defaults and some helpers:
	   - User agent
	   - Rate limiter
	   - Remote size probe

*/

type Logger interface {
	Printf(fmt string, a ...interface{})
}

type nullLogger struct{}

func (nullLogger) Printf(string, ...interface{}) {}

// DefaultUserAgent is sent when none is configured
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

type Client struct {
	http.Client

	logger    Logger
	userAgent string
	limiter   *rate.Limiter
}

type Error struct {
	Err        error  // Original error
	StatusCode int    // HTTP error
	Message    string // Error context
}

func (e Error) Error() string {
	return fmt.Sprintf("%s (%v,%d,%s)", e.Message, e.Err, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e Error) Unwrap() error { return e.Err }

// ErrUnknownSize is returned when the server doesn't tell the size of the resource
var ErrUnknownSize = errors.New("unknown size")

func WithLogger(logger Logger) func(c *Client) {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithUserAgent(ua string) func(c *Client) {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLimiter limits the number of requests sent to servers
func WithLimiter(l *rate.Limiter) func(c *Client) {
	return func(c *Client) {
		c.limiter = l
	}
}

func WithTimeout(d time.Duration) func(c *Client) {
	return func(c *Client) {
		c.Client.Timeout = d
	}
}

func NewClient(confFn ...func(c *Client)) *Client {
	c := Client{
		logger:    nullLogger{},
		userAgent: DefaultUserAgent,
	}
	for _, fn := range confFn {
		fn(&c)
	}
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Every(300*time.Millisecond), 5)
	}
	return &c
}

func (c *Client) NewRequest(ctx context.Context, method string, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// Do waits for the limiter and sends the request. HTTP errors are returned as Error.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	c.logger.Printf("[HTTPCLIENT] %s %s", req.Method, req.URL)
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err = Error{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(b)),
		}
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// Get sends a GET request
func (c *Client) Get(ctx context.Context, u string) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, u)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// ContentLength asks the server the size of the resource.
// When HEAD isn't answered, a one byte range request is tried.
func (c *Client) ContentLength(ctx context.Context, u string) (int64, error) {
	req, err := c.NewRequest(ctx, http.MethodHead, u)
	if err != nil {
		return 0, err
	}
	resp, err := c.Do(req)
	if err == nil {
		resp.Body.Close()
		if resp.ContentLength > 0 {
			return resp.ContentLength, nil
		}
	} else if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	req, err = c.NewRequest(ctx, http.MethodGet, u)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err = c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusPartialContent {
		return parseContentRange(resp.Header.Get("Content-Range"))
	}
	if resp.ContentLength > 0 {
		return resp.ContentLength, nil
	}
	return 0, ErrUnknownSize
}

// parseContentRange reads the total size of "bytes 0-0/12345"
func parseContentRange(h string) (int64, error) {
	i := strings.LastIndexByte(h, '/')
	if i < 0 || h[i+1:] == "*" {
		return 0, ErrUnknownSize
	}
	n, err := strconv.ParseInt(h[i+1:], 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrUnknownSize
	}
	return n, nil
}

// ProbeSizes gets the sizes of several resources, at most width at a time.
// Sizes that can't be known are reported as 0.
func (c *Client) ProbeSizes(ctx context.Context, urls []string, width int) ([]int64, error) {
	sizes := make([]int64, len(urls))
	g, ctx := errgroup.WithContext(ctx)
	if width > 0 {
		g.SetLimit(width)
	}
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			n, err := c.ContentLength(ctx, u)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Printf("[HTTPCLIENT] Can't get the size of %s: %s", u, err)
				return nil
			}
			sizes[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sizes, nil
}
