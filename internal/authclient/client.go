// Package authclient talks to the rfpdesk token API and implements the
// session store's Provider for command line clients.
package authclient

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
	"time"

	"github.com/rfpdesk/rfpdesk/internal/auth"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/platform/events"
	"github.com/rfpdesk/rfpdesk/internal/platform/httpx"
	"github.com/rfpdesk/rfpdesk/internal/session"
	"github.com/rfpdesk/rfpdesk/internal/users"
)

// Client is an HTTP identity provider client.
type Client struct {
	base   *url.URL
	http   *http.Client
	tokens TokenStore
	events *events.Broker[identity.Event]
}

var _ session.Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.http = c } }

// New returns a Client for the server at baseURL.
func New(baseURL string, tokens TokenStore, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https, got %q", baseURL)
	}
	if tokens == nil {
		tokens = &MemoryStore{}
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 15 * time.Second},
		tokens: tokens,
		events: events.NewBroker[identity.Event](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// OnAuthStateChange subscribes to session changes made through this client.
func (c *Client) OnAuthStateChange(fn func(identity.Event)) func() {
	return c.events.Subscribe(fn)
}

// SignUp registers an account.
func (c *Client) SignUp(ctx context.Context, req auth.SignUpRequest) (auth.User, error) {
	var out struct {
		User auth.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", "", req, &out); err != nil {
		return auth.User{}, err
	}
	return out.User, nil
}

// SignInWithPassword exchanges credentials for a session and stores it.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (identity.Session, error) {
	var sess identity.Session
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/token?grant_type=password", "", body, &sess); err != nil {
		return identity.Session{}, err
	}
	if err := c.tokens.Save(sess); err != nil {
		return identity.Session{}, err
	}
	c.publish(identity.EventSignedIn, &sess)
	return sess, nil
}

// SignOut revokes the stored session and forgets it locally, even when the
// server cannot be reached.
func (c *Client) SignOut(ctx context.Context) error {
	sess, err := c.tokens.Load()
	if err != nil || sess == nil {
		return c.tokens.Clear()
	}
	remoteErr := c.do(ctx, http.MethodPost, "/api/auth/logout", sess.AccessToken, nil, nil)
	if err := c.tokens.Clear(); err != nil {
		return err
	}
	c.publish(identity.EventSignedOut, nil)
	return remoteErr
}

// GetSession returns the stored session, or nil.
func (c *Client) GetSession(context.Context) (*identity.Session, error) {
	return c.tokens.Load()
}

// GetUser asks the server who the stored session belongs to.
func (c *Client) GetUser(ctx context.Context) (identity.Identity, error) {
	sess, err := c.tokens.Load()
	if err != nil {
		return identity.Identity{}, err
	}
	if sess == nil {
		return identity.Identity{}, auth.ErrSessionExpired
	}
	var id identity.Identity
	if err := c.do(ctx, http.MethodGet, "/api/auth/user", sess.AccessToken, nil, &id); err != nil {
		return identity.Identity{}, err
	}
	return id, nil
}

// RefreshSession rotates the stored refresh token. A rejected token clears
// the stored session.
func (c *Client) RefreshSession(ctx context.Context) (*identity.Session, error) {
	stored, err := c.tokens.Load()
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.RefreshToken == "" {
		return nil, auth.ErrSessionExpired
	}
	var sess identity.Session
	body := map[string]string{"refresh_token": stored.RefreshToken}
	if err := c.do(ctx, http.MethodPost, "/api/auth/token?grant_type=refresh_token", "", body, &sess); err != nil {
		if errors.Is(err, auth.ErrSessionExpired) {
			_ = c.tokens.Clear()
		}
		return nil, err
	}
	if err := c.tokens.Save(sess); err != nil {
		return nil, err
	}
	c.publish(identity.EventTokenRefreshed, &sess)
	return &sess, nil
}

// ResetPasswordForEmail requests a recovery email.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	body := map[string]string{"email": email, "redirect_to": redirectTo}
	return c.do(ctx, http.MethodPost, "/api/auth/recover", "", body, nil)
}

// UpdateUser changes account attributes of the stored session's user.
func (c *Client) UpdateUser(ctx context.Context, attrs auth.UserAttributes) error {
	sess, err := c.requireSession()
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "/api/auth/user", sess.AccessToken, attrs, nil)
}

// UpdateProfile edits the stored session's profile.
func (c *Client) UpdateProfile(ctx context.Context, upd users.ProfileUpdate) (identity.Identity, error) {
	sess, err := c.requireSession()
	if err != nil {
		return identity.Identity{}, err
	}
	var id identity.Identity
	if err := c.do(ctx, http.MethodPut, "/api/auth/profile", sess.AccessToken, upd, &id); err != nil {
		return identity.Identity{}, err
	}
	sess.Identity = id
	if err := c.tokens.Save(*sess); err != nil {
		return identity.Identity{}, err
	}
	return id, nil
}

func (c *Client) requireSession() (*identity.Session, error) {
	sess, err := c.tokens.Load()
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, auth.ErrSessionExpired
	}
	return sess, nil
}

func (c *Client) publish(t identity.EventType, sess *identity.Session) {
	ev := identity.Event{Type: t, Session: sess, At: time.Now()}
	if sess != nil {
		ev.UserID = sess.Identity.ID
	}
	c.events.Publish(ev)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	target, err := c.base.Parse(c.base.Path + path)
	if err != nil {
		return auth.Wrap(auth.ErrUnknown, err)
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return auth.Wrap(auth.ErrUnknown, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return auth.Wrap(auth.ErrUnknown, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return auth.MapError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeProblem(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return auth.Wrap(auth.ErrUnknown, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func decodeProblem(resp *http.Response) error {
	var problem httpx.ProblemDetail
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &problem); err != nil {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return auth.Wrap(auth.ErrNetwork, fmt.Errorf("server returned %s", resp.Status))
		}
		return auth.Wrap(auth.ErrUnknown, fmt.Errorf("server returned %s", resp.Status))
	}
	if problem.Code == "VALIDATION_ERROR" || (problem.Code == "" && len(problem.Errors) > 0) {
		return &auth.ValidationError{Fields: problem.Errors}
	}
	if problem.Code == "" {
		if resp.StatusCode == http.StatusUnauthorized {
			return auth.ErrSessionExpired
		}
		return auth.Wrap(auth.ErrUnknown, fmt.Errorf("server returned %s: %s", resp.Status, problem.Detail))
	}
	return auth.ErrorFromCode(auth.Code(problem.Code), problem.Detail)
}
