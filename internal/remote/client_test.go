package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	appErrors "github.com/unclebandit/infinite-gateway/internal/errors"
	"github.com/unclebandit/infinite-gateway/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/", 2*time.Second, zaptest.NewLogger(t))
}

func TestGetToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/oauth/getToken", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"username": "svc", "password": "secret"}, body)

		_, _ = w.Write([]byte(`{"access_token":"A1","refresh_token":"R1","token_type":"Bearer","expires_in":300,"refresh_expires_in":3600}`))
	})

	tok, err := c.GetToken(context.Background(), "svc", "secret")
	require.NoError(t, err)
	assert.Equal(t, "A1", tok.AccessToken)
	assert.Equal(t, 3600, tok.RefreshExpiresIn)
}

func TestRefreshToken_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/oauth/refreshToken", r.URL.Path)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	})

	_, err := c.RefreshToken(context.Background(), "R1")
	var up *appErrors.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, http.StatusUnauthorized, up.Status)
	assert.Contains(t, up.Body, "invalid_grant")
}

func TestAddUsers_SendsEnvelopeAndHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/user/add", r.URL.Path)
		assert.Equal(t, "Bearer A1", r.Header.Get("Authorization"))

		var body struct {
			Users []map[string]any `json:"users"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Users, 1)
		assert.Equal(t, "+998901112233", body.Users[0]["phone"])
		assert.Equal(t, "1990-05-01", body.Users[0]["date_birth"])

		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	users := []model.Customer{{
		Phone: "+998901112233", FirstName: "Ali", LastName: "Valiyev",
		Language: "ru", ServiceLevel: "BASIC", DateBirth: model.NewDate(1990, time.May, 1),
	}}
	out, err := c.AddUsers(context.Background(), map[string]string{"Authorization": "Bearer A1"}, users)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(out))
}

func TestUpdateAndCloseUsers_Paths(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := c.UpdateUsers(context.Background(), nil, []model.Customer{{Phone: "+1"}})
	require.NoError(t, err)
	_, err = c.CloseUsers(context.Background(), nil, []model.CustomerClose{{ID: 5}})
	require.NoError(t, err)

	assert.Equal(t, []string{"/api/user/update", "/api/user/close"}, paths)
}

func TestListUsers_OmitsEmptyParams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/user/list", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "10", q.Get("limit"))
		assert.Equal(t, "+998901112233", q.Get("phone"))
		_, hasFrom := q["from"]
		assert.False(t, hasFrom)
		_, _ = w.Write([]byte(`[{"id":1}]`))
	})

	out, err := c.ListUsers(context.Background(), nil, ListParams{Limit: "10", Phone: "+998901112233"})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1}]`, string(out))
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, 20*time.Millisecond, nil)

	_, err := c.GetToken(context.Background(), "svc", "secret")
	var te *appErrors.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "getToken", te.Op)
}

func TestRedactAuth(t *testing.T) {
	assert.Equal(t, "", redactAuth(""))
	assert.Equal(t, "Bearer ****3456", redactAuth("Bearer abcdef123456"))
}
