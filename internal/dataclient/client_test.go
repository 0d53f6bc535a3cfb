package dataclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admintable.org/internal/auth"
	"admintable.org/internal/dataclient"
	"admintable.org/internal/fakebackend"
	"admintable.org/internal/querystate"
	"admintable.org/internal/schema"
	"admintable.org/internal/storage"
)

type harness struct {
	backend *fakebackend.Backend
	server  *httptest.Server
	data    *dataclient.Client
	auth    *auth.Client
}

func newHarness(t *testing.T, opts ...fakebackend.Option) *harness {
	t.Helper()
	backend := fakebackend.New(opts...)
	server := httptest.NewServer(backend.Handler())
	t.Cleanup(server.Close)

	base, err := dataclient.New(dataclient.Config{BaseURL: server.URL + fakebackend.APIPrefix}, nil)
	require.NoError(t, err)
	ns := storage.NewNamespace(storage.NewMemory(), "test")
	authClient := auth.NewClient(base.Auth(), ns)
	t.Cleanup(authClient.Close)

	return &harness{
		backend: backend,
		server:  server,
		data:    base.WithAuthenticator(authClient),
		auth:    authClient,
	}
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	_, err := h.auth.Login(context.Background(), "admin", "admin", "")
	require.NoError(t, err)
}

func TestListQueryString(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	st := querystate.Default()
	st.Filters = []querystate.Filter{{Ref: "status", Op: "eq", Val: "active"}}
	st.Sort = &querystate.Sort{Ref: "name", Dir: querystate.Asc}

	list, err := h.data.List(context.Background(), "user", st)
	require.NoError(t, err)

	req, ok := h.backend.LastRequest("resource/user/list")
	require.True(t, ok)
	decoded, err := url.QueryUnescape(req.Query)
	require.NoError(t, err)
	assert.Contains(t, decoded, "filter=status;eq;active")
	assert.Contains(t, decoded, "sort=name;asc")
	assert.Contains(t, decoded, "page=1")
	assert.Contains(t, decoded, "per_page=50")

	require.Len(t, list.Data, 2)
	assert.Equal(t, schema.Scalar{Text: "Ada"}, list.Data[0][1])
	assert.Equal(t, "Users", list.Meta.Title)
	assert.True(t, list.Meta.HasCreate)
	assert.Equal(t, 2, list.Pagination.Total)
}

func TestUnauthorizedClearsSession(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()
	require.True(t, h.auth.IsLoggedIn(ctx))

	h.backend.Fail("navigation", http.StatusUnauthorized, "Unauthorized")
	_, err := h.data.Navigation(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dataclient.ErrUnauthorized))

	assert.Empty(t, h.auth.AuthHeader())
	assert.False(t, h.auth.IsLoggedIn(ctx))
	_, ok := h.auth.Session()
	assert.False(t, ok)
}

func TestAuthorizationHeaderAttached(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	_, err := h.data.UserInfo(context.Background())
	require.NoError(t, err)

	req, ok := h.backend.LastRequest("user")
	require.True(t, ok)
	assert.Equal(t, h.auth.AuthHeader(), req.Header.Get("Authorization"))
	assert.True(t, strings.HasPrefix(req.Header.Get("Authorization"), "Bearer "))
}

func TestErrorNormalisation(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	_, err := h.data.Detail(ctx, "user", "999")
	var apiErr *dataclient.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Resource not found: 999", apiErr.Message)
	assert.True(t, errors.Is(err, dataclient.ErrNotFound))

	h.backend.Fail("banner", http.StatusInternalServerError, "")
	_, err = h.data.Banner(ctx)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "request failed: Internal Server Error", apiErr.Message)
	assert.False(t, errors.Is(err, dataclient.ErrUnauthorized))
}

func TestTransportError(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := h.data.Dashboard(ctx)
	var apiErr *dataclient.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Zero(t, apiErr.Status)
	assert.True(t, strings.HasPrefix(apiErr.Message, "request failed: "))
}

func TestExecuteActionWrapsParams(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	resp, err := h.data.ExecuteAction(context.Background(), "user", "1", "deactivate",
		map[string]any{"reason": "left", "notify": false})
	require.NoError(t, err)
	assert.Equal(t, "User deactivated", resp.Message)
	assert.True(t, resp.Refresh)

	req, ok := h.backend.LastRequest("resource/user/detail/1/action/deactivate")
	require.True(t, ok)
	assert.JSONEq(t, `{"params":{"reason":"left","notify":false}}`, string(req.Body))

	resp, err = h.data.ExecuteAction(context.Background(), "user", "1", "rename", map[string]any{"name": "Ada L"})
	require.NoError(t, err)
	assert.Equal(t, schema.RedirectList{Resource: "user", Filters: []schema.Filter{{Ref: "name", Op: "eq", Val: "Ada L"}}}, resp.Redirect)
}

func TestCreateRedirectsToDetail(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()
	cs, err := h.data.CreateSchema(ctx, "user")
	require.NoError(t, err)
	require.NotNil(t, cs.Schema)
	assert.Equal(t, "name", cs.Schema.Properties[0].Name)

	resp, err := h.data.Create(ctx, "user", map[string]any{"name": "Barbara"})
	require.NoError(t, err)
	assert.Equal(t, schema.RedirectDetail{Resource: "user", ID: "4"}, resp.Redirect)

	detail, err := h.data.Detail(ctx, "user", "4")
	require.NoError(t, err)
	assert.Equal(t, "Users 4", detail.Title)
	require.Len(t, detail.Tables, 1)
	assert.Equal(t, schema.Text("4"), detail.Tables[0].Filter.Val)
}

func TestDetailGraphRange(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	g, err := h.data.DetailGraph(context.Background(), "user", "1", "logins", dataclient.GraphRange{From: from})
	require.NoError(t, err)
	assert.Equal(t, schema.ChartLine, g.Type)
	assert.Len(t, g.Config.Data, 5)

	req, ok := h.backend.LastRequest("resource/user/detail/1/graph/logins")
	require.True(t, ok)
	q, err := url.ParseQuery(req.Query)
	require.NoError(t, err)
	assert.Equal(t, "date", q.Get("range_type"))
	assert.Equal(t, "2024-03-01T00:00:00Z", q.Get("range_from"))
	assert.Empty(t, q.Get("range_to"))
}

func TestPublicInputFormWithoutSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	form, err := h.data.InputForm(ctx, "feedback")
	require.NoError(t, err)
	assert.True(t, form.Public)
	assert.Equal(t, "Feedback", form.Title)

	resp, err := h.data.SubmitInputForm(ctx, "feedback", map[string]any{"message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, schema.RedirectPage{Name: "about"}, resp.Redirect)
	assert.Equal(t, []map[string]any{{"message": "hi"}}, h.backend.Submissions("feedback"))

	_, err = h.data.InputForm(ctx, "invite")
	assert.True(t, errors.Is(err, dataclient.ErrUnauthorized))
}

func TestPagesAndNavigation(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	nav, err := h.data.Navigation(ctx)
	require.NoError(t, err)
	require.Len(t, nav.Navigation, 2)
	assert.Equal(t, "order", nav.Navigation[0].Links[0].Name)

	page, err := h.data.Page(ctx, "about")
	require.NoError(t, err)
	assert.Equal(t, schema.ContentMarkdown, page.Type)

	require.NoError(t, h.data.Ping(ctx))
}

func TestParseBaseURL(t *testing.T) {
	u, err := dataclient.ParseBaseURL("http://localhost:8000/api")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/api/", u.String())

	_, err = dataclient.ParseBaseURL("ftp://example.com")
	assert.Error(t, err)
	_, err = dataclient.ParseBaseURL("")
	assert.Error(t, err)
}
