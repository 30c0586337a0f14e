package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"vmnotify/internal/types"
)

// tokenHeader carries the issued bearer token on the token-exchange response.
const tokenHeader = "X-Subject-Token"

// authHeader carries the bearer token on authenticated lookups.
const authHeader = "X-Auth-Token"

// User is a directory user record. Email is optional in the directory and
// may be empty.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Role is a role assignment name, e.g. "admin".
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client is the identity-directory query contract consumed by the Resolver.
// Implemented by KeystoneClient; tests substitute fakes.
type Client interface {
	// Authenticate performs the password-grant token exchange and returns
	// a bearer token.
	Authenticate(ctx context.Context) (string, error)

	// GetUser fetches a single user record by id.
	GetUser(ctx context.Context, token, userID string) (User, error)

	// ListUsers enumerates all directory users.
	ListUsers(ctx context.Context, token string) ([]User, error)

	// ListUserRolesOnProject lists the roles a user holds scoped to a
	// project.
	ListUserRolesOnProject(ctx context.Context, token, projectID, userID string) ([]Role, error)
}

// KeystoneClientConfig holds the endpoint and the service credentials used
// for the password grant.
type KeystoneClientConfig struct {
	// URL is the versioned identity API base, e.g. http://keystone:5000/v3.
	URL           string
	Username      string
	Password      types.SecretString
	Project       string
	UserDomain    string
	ProjectDomain string
}

// KeystoneClient implements Client over the Keystone v3 HTTP API.
type KeystoneClient struct {
	base *baseClient
	cfg  KeystoneClientConfig
}

// NewKeystoneClient creates a KeystoneClient using the given http client for
// transport. The http client's timeout bounds each request.
func NewKeystoneClient(httpClient *http.Client, cfg KeystoneClientConfig) *KeystoneClient {
	cfg.URL = strings.TrimSuffix(cfg.URL, "/")
	return &KeystoneClient{
		base: newBaseClient(httpClient),
		cfg:  cfg,
	}
}

// Authenticate issues the password-grant token exchange: user name/password
// scoped by domain, with project scope for the resulting token. The token is
// returned from the response header, not the body.
func (k *KeystoneClient) Authenticate(ctx context.Context) (string, error) {
	reqBody := map[string]any{
		"auth": map[string]any{
			"identity": map[string]any{
				"methods": []string{"password"},
				"password": map[string]any{
					"user": map[string]any{
						"name":     k.cfg.Username,
						"domain":   map[string]string{"name": k.cfg.UserDomain},
						"password": k.cfg.Password.Unmask(),
					},
				},
			},
			"scope": map[string]any{
				"project": map[string]any{
					"name":   k.cfg.Project,
					"domain": map[string]string{"name": k.cfg.ProjectDomain},
				},
			},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.cfg.URL+"/auth/tokens", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := k.base.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange rejected with status %d", resp.StatusCode)
	}

	token := resp.Header.Get(tokenHeader)
	if token == "" {
		return "", fmt.Errorf("token exchange response missing %s header", tokenHeader)
	}
	return token, nil
}

// GetUser fetches one user record by id.
func (k *KeystoneClient) GetUser(ctx context.Context, token, userID string) (User, error) {
	var out struct {
		User User `json:"user"`
	}
	path := "/users/" + url.PathEscape(userID)
	if err := k.getJSON(ctx, token, path, &out); err != nil {
		return User{}, err
	}
	return out.User, nil
}

// ListUsers enumerates all directory users.
func (k *KeystoneClient) ListUsers(ctx context.Context, token string) ([]User, error) {
	var out struct {
		Users []User `json:"users"`
	}
	if err := k.getJSON(ctx, token, "/users", &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// ListUserRolesOnProject lists the roles a user holds on a project.
func (k *KeystoneClient) ListUserRolesOnProject(ctx context.Context, token, projectID, userID string) ([]Role, error) {
	var out struct {
		Roles []Role `json:"roles"`
	}
	path := "/projects/" + url.PathEscape(projectID) + "/users/" + url.PathEscape(userID) + "/roles"
	if err := k.getJSON(ctx, token, path, &out); err != nil {
		return nil, err
	}
	return out.Roles, nil
}

// getJSON performs an authenticated GET and decodes the JSON response into v.
func (k *KeystoneClient) getJSON(ctx context.Context, token, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.cfg.URL+path, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set(authHeader, token)
	req.Header.Set("Accept", "application/json")

	resp, err := k.base.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response for %s: %w", path, err)
	}
	return nil
}

// drainAndClose consumes any remaining body so the underlying connection can
// be reused, then closes it.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
