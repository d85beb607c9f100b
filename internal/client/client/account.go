package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/wire"
)

// CreateAccount registers a new account and returns its id.
func (c *HTTPClient) CreateAccount(ctx context.Context, salt []byte, fingerprint string) (string, error) {
	var resp wire.CreateAccountResponse
	_, err := c.do(ctx, request{
		op:     "create account",
		method: http.MethodPost,
		path:   "/account",
		body:   wire.CreateAccountRequest{Salt: base64.StdEncoding.EncodeToString(salt), AuthToken: fingerprint},
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Account == "" {
		return "", badResponse("create account")
	}
	return resp.Account, nil
}

// GetSalt returns the key-derivation salt of account.
func (c *HTTPClient) GetSalt(ctx context.Context, account string) ([]byte, error) {
	var resp wire.SaltResponse
	_, err := c.do(ctx, request{op: "get salt", method: http.MethodGet, path: "/" + url.PathEscape(account) + "/salt"}, &resp)
	if err != nil {
		return nil, err
	}
	salt, err := base64.StdEncoding.DecodeString(resp.Salt)
	if err != nil {
		return nil, &common.RequestError{Op: "get salt", Message: common.UserFacingRequestMessage, Err: fmt.Errorf("%w: salt: %v", ErrBadResponse, err)}
	}
	return salt, nil
}

// Login exchanges the auth fingerprint for a session token.
func (c *HTTPClient) Login(ctx context.Context, account, fingerprint string) (string, error) {
	var resp wire.LoginResponse
	_, err := c.do(ctx, request{
		op:     "login",
		method: http.MethodPost,
		path:   "/" + url.PathEscape(account) + "/login",
		body:   wire.LoginRequest{AuthToken: fingerprint},
	}, &resp)
	if err != nil {
		return "", err
	}
	if !resp.Success || resp.Session == "" {
		return "", badResponse("login")
	}
	return resp.Session, nil
}

// GetSubscription returns the stored push subscription blob, or
// common.ErrorNotFound.
func (c *HTTPClient) GetSubscription(ctx context.Context, id string) (json.RawMessage, error) {
	var resp wire.SubscriptionResponse
	_, err := c.do(ctx, request{op: "get subscription", method: http.MethodGet, path: c.accountPath("/subscriptions/" + url.PathEscape(id)), authed: true}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Subscription, nil
}

func (c *HTTPClient) PutSubscription(ctx context.Context, id string, data json.RawMessage) error {
	var resp wire.StatusResponse
	_, err := c.do(ctx, request{
		op:     "put subscription",
		method: http.MethodPut,
		path:   c.accountPath("/subscriptions/" + url.PathEscape(id)),
		body:   wire.SubscriptionRequest{Subscription: data},
		authed: true,
	}, &resp)
	return err
}

func (c *HTTPClient) DeleteSubscription(ctx context.Context, id string) error {
	var resp wire.StatusResponse
	_, err := c.do(ctx, request{op: "delete subscription", method: http.MethodDelete, path: c.accountPath("/subscriptions/" + url.PathEscape(id)), authed: true}, &resp)
	return err
}

func badResponse(op string) error {
	return &common.RequestError{Op: op, Message: common.UserFacingRequestMessage, Err: ErrBadResponse}
}
