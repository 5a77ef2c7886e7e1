// Package identity is the protocol layer for the remote identity service.
// It translates the fixed JSON contract into typed results and typed
// errors; retry and recovery policy live with the session manager, not
// here.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/users"
)

const defaultTimeout = 10 * time.Second

// TokenResult holds the payload of a successful login or refresh.
type TokenResult struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	User         users.Profile `json:"user_info"`
}

// Client issues authentication requests against the identity service.
type Client interface {
	Login(ctx context.Context, username, password string) (*TokenResult, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenResult, error)
	WhoAmI(ctx context.Context, accessToken string) (*users.Profile, error)
	Logout(ctx context.Context, accessToken string, allDevices bool) error
	ChangePassword(ctx context.Context, accessToken, currentPassword, newPassword string) error
}

// HTTPClient is the production implementation speaking JSON over HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// HTTPClientOption customizes the HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithTimeout overrides the transport timeout.
func WithTimeout(timeout time.Duration) HTTPClientOption {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient substitutes the underlying http.Client (primarily for testing).
func WithHTTPClient(hc *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient returns a client rooted at baseURL (e.g. "https://id.example.com").
func NewHTTPClient(baseURL string, options ...HTTPClientOption) *HTTPClient {
	client := &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range options {
		opt(client)
	}
	return client
}

func (c *HTTPClient) Login(ctx context.Context, username, password string) (*TokenResult, error) {
	body := map[string]string{"username": username, "password": password}

	result := &TokenResult{}
	if err := c.call(ctx, http.MethodPost, "/auth/login", "", body, result, apperrors.ErrInvalidCredentials); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (*TokenResult, error) {
	body := map[string]string{"refresh_token": refreshToken}

	result := &TokenResult{}
	if err := c.call(ctx, http.MethodPost, "/auth/refresh", "", body, result, apperrors.ErrInvalidRefreshToken); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *HTTPClient) WhoAmI(ctx context.Context, accessToken string) (*users.Profile, error) {
	profile := &users.Profile{}
	if err := c.call(ctx, http.MethodGet, "/auth/me", accessToken, nil, profile, apperrors.ErrUnauthorized); err != nil {
		return nil, err
	}
	return profile, nil
}

func (c *HTTPClient) Logout(ctx context.Context, accessToken string, allDevices bool) error {
	path := "/auth/logout"
	if allDevices {
		path = "/auth/logout-all"
	}
	return c.call(ctx, http.MethodPost, path, accessToken, nil, nil, apperrors.ErrUnauthorized)
}

func (c *HTTPClient) ChangePassword(ctx context.Context, accessToken, currentPassword, newPassword string) error {
	body := map[string]string{
		"current_password": currentPassword,
		"new_password":     newPassword,
	}
	return c.call(ctx, http.MethodPut, "/auth/change-password", accessToken, body, nil, apperrors.ErrInvalidCredentials)
}

// call runs one request/response cycle. authErrKind is the sentinel used
// for 401/403 responses, which differs per operation (a 401 on login means
// bad credentials, a 401 on /auth/me means an expired access token).
func (c *HTTPClient) call(ctx context.Context, method, path, accessToken string, body, result any, authErrKind error) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrapf(err, "[call] encode request body")
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return apperrors.Wrapf(err, "[call] create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewAPIError(apperrors.ErrNetwork, err.Error(), 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFromResponse(resp, authErrKind)
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return apperrors.NewAPIError(apperrors.ErrServer, "malformed response from identity service", resp.StatusCode)
	}
	return nil
}

// errorFromResponse maps a non-2xx response onto the error taxonomy and
// surfaces the server's detail/error message verbatim when present.
func (c *HTTPClient) errorFromResponse(resp *http.Response, authErrKind error) error {
	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	message := ""
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
		message = payload.Detail
		if message == "" {
			message = payload.Error
		}
	}
	if message == "" {
		message = "identity service error"
	}

	var kind error
	switch {
	case resp.StatusCode >= 500:
		kind = apperrors.ErrServer
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = authErrKind
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		kind = apperrors.ErrValidation
	default:
		kind = apperrors.ErrNetwork
	}

	return apperrors.NewAPIError(kind, message, resp.StatusCode)
}
