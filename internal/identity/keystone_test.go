package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vmnotify/internal/types"
)

func testKeystone(t *testing.T, handler http.Handler) *KeystoneClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewKeystoneClient(
		&http.Client{Timeout: 2 * time.Second},
		KeystoneClientConfig{
			URL:           srv.URL,
			Username:      "admin",
			Password:      types.SecretString("secret"),
			Project:       "admin",
			UserDomain:    "Default",
			ProjectDomain: "Default",
		},
	)
}

func TestAuthenticate(t *testing.T) {
	var captured map[string]any

	k := testKeystone(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/auth/tokens", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("X-Subject-Token", "tok-123")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"token":{}}`))
	}))

	token, err := k.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)

	// The password grant must scope by user domain and project domain.
	auth := captured["auth"].(map[string]any)
	identity := auth["identity"].(map[string]any)
	password := identity["password"].(map[string]any)
	user := password["user"].(map[string]any)
	assert.Equal(t, "admin", user["name"])
	assert.Equal(t, "secret", user["password"])
	assert.Equal(t, map[string]any{"name": "Default"}, user["domain"])

	scope := auth["scope"].(map[string]any)
	project := scope["project"].(map[string]any)
	assert.Equal(t, "admin", project["name"])
}

func TestAuthenticate_Rejected(t *testing.T) {
	k := testKeystone(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := k.Authenticate(context.Background())
	assert.ErrorContains(t, err, "401")
}

func TestAuthenticate_MissingTokenHeader(t *testing.T) {
	k := testKeystone(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	_, err := k.Authenticate(context.Background())
	assert.ErrorContains(t, err, "X-Subject-Token")
}

func TestGetUser(t *testing.T) {
	k := testKeystone(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/u-77", r.URL.Path)
		require.Equal(t, "tok-123", r.Header.Get("X-Auth-Token"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{"id": "u-77", "name": "alice", "email": "alice@example.com"},
		})
	}))

	user, err := k.GetUser(context.Background(), "tok-123", "u-77")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
}

func TestGetUser_EmailAbsent(t *testing.T) {
	k := testKeystone(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{"id": "u-77", "name": "alice"},
		})
	}))

	user, err := k.GetUser(context.Background(), "tok", "u-77")
	require.NoError(t, err)
	assert.Empty(t, user.Email, "email attribute is optional in the directory")
}

func TestListUsersAndRoles(t *testing.T) {
	k := testKeystone(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"users": []map[string]any{
					{"id": "u-1", "name": "alice", "email": "alice@example.com"},
					{"id": "u-2", "name": "bob"},
				},
			})
		case "/projects/p-11/users/u-1/roles":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"roles": []map[string]any{{"id": "r-1", "name": "Admin"}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	ctx := context.Background()
	users, err := k.ListUsers(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, users, 2)

	roles, err := k.ListUserRolesOnProject(ctx, "tok", "p-11", "u-1")
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "Admin", roles[0].Name)
}

func TestBaseClient_ServerErrorsCountAsFailures(t *testing.T) {
	k := testKeystone(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := k.ListUsers(context.Background(), "tok")
	assert.ErrorContains(t, err, "500")
}
