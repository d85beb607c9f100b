package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/logging"
	"github.com/dmitrijs2005/praylist/internal/wire"
)

// DefaultTimeout applies when the configured request timeout is zero.
const DefaultTimeout = 15 * time.Second

// TokenSource supplies the session credentials. *keys.Session implements it.
type TokenSource interface {
	Account() string
	AuthHeader() string
	Generation() uint64
	// Ready reports whether an account key is loaded.
	Ready() bool
}

// HTTPClient is the remote store client.
type HTTPClient struct {
	baseURL string
	hc      *http.Client
	auth    TokenSource
	log     logging.Logger

	inFlight atomic.Int64

	mu           sync.Mutex
	expiredFired bool
	expiredGen   uint64
	onExpired    func(ctx context.Context, err *common.SessionExpiredError)
}

func NewHTTPClient(baseURL string, timeout time.Duration, auth TokenSource, log logging.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: timeout},
		auth:    auth,
		log:     log.With("module", "client"),
	}
}

// OnSessionExpired registers the hook run when the server rejects the
// session. It fires at most once per negotiated session.
func (c *HTTPClient) OnSessionExpired(fn func(ctx context.Context, err *common.SessionExpiredError)) {
	c.mu.Lock()
	c.onExpired = fn
	c.mu.Unlock()
}

// InFlight is the number of requests currently outstanding.
func (c *HTTPClient) InFlight() int64 {
	return c.inFlight.Load()
}

type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	authed bool
}

// do performs one request and decodes the JSON reply into out. Non-2xx
// replies are decoded into out as well when they carry a body, so callers
// can inspect per-item details of a 409. Authed requests fail with
// common.ErrNotInitialised before touching the network while no key is loaded.
func (c *HTTPClient) do(ctx context.Context, r request, out any) (status int, err error) {
	if r.authed && !c.auth.Ready() {
		return 0, common.ErrNotInitialised
	}

	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)

	defer func() {
		if err != nil {
			c.log.Warn(ctx, "request failed", "op", r.op, "status", status, "error", err)
			err = &common.RequestError{Op: r.op, Status: status, Message: common.UserFacingRequestMessage, Err: err}
		}
	}()

	var body io.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.authed {
		if h := c.auth.AuthHeader(); h != "" {
			req.Header.Set(common.AuthorizationHeaderName, h)
		}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 || resp.StatusCode == http.StatusConflict {
		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return resp.StatusCode, fmt.Errorf("%w: %v", ErrBadResponse, err)
			}
		}
		return resp.StatusCode, nil
	}

	return resp.StatusCode, c.statusError(ctx, resp.StatusCode, raw)
}

func (c *HTTPClient) statusError(ctx context.Context, status int, raw []byte) error {
	var sr wire.StatusResponse
	_ = json.Unmarshal(raw, &sr)
	detail := sr.Error
	if detail == "" {
		detail = http.StatusText(status)
	}

	switch {
	case status == http.StatusForbidden:
		return c.sessionExpired(ctx)
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, detail)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", common.ErrorNotFound, detail)
	case status == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s", common.ErrSizeLimit, detail)
	case status >= 500:
		return fmt.Errorf("%w: %s", ErrUnavailable, detail)
	default:
		return errors.New(detail)
	}
}

func (c *HTTPClient) sessionExpired(ctx context.Context) error {
	gen := c.auth.Generation()
	expired := &common.SessionExpiredError{Account: c.auth.Account()}

	c.mu.Lock()
	fire := !c.expiredFired || c.expiredGen != gen
	if fire {
		c.expiredFired = true
		c.expiredGen = gen
	}
	hook := c.onExpired
	c.mu.Unlock()

	if fire && hook != nil {
		hook(ctx, expired)
	}
	return expired
}

func (c *HTTPClient) accountPath(suffix string) string {
	return "/" + url.PathEscape(c.auth.Account()) + suffix
}

// Ping checks that the server answers.
func (c *HTTPClient) Ping(ctx context.Context) error {
	_, err := c.do(ctx, request{op: "ping", method: http.MethodGet, path: "/healthz"}, nil)
	return err
}
