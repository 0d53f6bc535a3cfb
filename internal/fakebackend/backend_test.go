package fakebackend

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(t *testing.T, h http.Handler, method, target, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestLoginIssuesTokens(t *testing.T) {
	b := New()
	rec, out := call(t, b.Handler(), http.MethodPost, "/api/login", "", map[string]string{"username": "admin", "password": "admin"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, out["access_token"])
	assert.NotEmpty(t, out["refresh_token"])
	assert.EqualValues(t, 300, out["token_lifetime"])

	rec, out = call(t, b.Handler(), http.MethodPost, "/api/login", "", map[string]string{"username": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "login failed", out["message"])
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	b := New()
	rec, _ := call(t, b.Handler(), http.MethodGet, "/api/navigation", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := b.AccessToken("admin")
	require.NoError(t, err)
	rec, out := call(t, b.Handler(), http.MethodGet, "/api/navigation", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Fake Admin", out["name"])
}

func TestListFilterSortPaginate(t *testing.T) {
	b := New()
	token, err := b.AccessToken("admin")
	require.NoError(t, err)

	q := url.Values{"page": {"2"}, "per_page": {"10"}, "sort": {"total;desc"}, "filter": {"total;ge;50"}}
	rec, out := call(t, b.Handler(), http.MethodGet, "/api/resource/order/list?"+q.Encode(), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	pagination := out["pagination"].(map[string]any)
	assert.EqualValues(t, 21, pagination["total"])
	data := out["data"].([]any)
	require.Len(t, data, 10)
	// second page of 250..50 in steps of 10
	assert.EqualValues(t, 150, data[0].([]any)[1])

	applied := out["applied_filters"].([]any)
	require.Len(t, applied, 1)
	assert.Equal(t, "ge", applied[0].(map[string]any)["op"])
}

func TestFailInjection(t *testing.T) {
	b := New()
	token, err := b.AccessToken("admin")
	require.NoError(t, err)

	b.Fail("banner", http.StatusTeapot, "short and stout")
	rec, out := call(t, b.Handler(), http.MethodGet, "/api/banner", token, nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", out["message"])

	b.Fail("banner", 0, "")
	rec, _ = call(t, b.Handler(), http.MethodGet, "/api/banner", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	req, ok := b.LastRequest("banner")
	require.True(t, ok)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Len(t, b.Requests(), 2)
}

func TestActionFailureWithoutReason(t *testing.T) {
	b := New()
	token, err := b.AccessToken("admin")
	require.NoError(t, err)
	rec, out := call(t, b.Handler(), http.MethodPost, "/api/resource/user/detail/1/action/deactivate", token,
		map[string]any{"params": map[string]any{}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["failed"])

	rec, out = call(t, b.Handler(), http.MethodPost, "/api/resource/user/detail/1/action/explode", token,
		map[string]any{"params": map[string]any{}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Invalid action ref: explode", out["message"])
}

func TestGraphRejectsUnknownRangeType(t *testing.T) {
	b := New()
	token, err := b.AccessToken("admin")
	require.NoError(t, err)
	rec, out := call(t, b.Handler(), http.MethodGet, "/api/resource/user/detail/1/graph/logins?range_type=week", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid range type: week", out["message"])
}
