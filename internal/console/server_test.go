package console

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admintable.org/internal/dataclient"
	"admintable.org/internal/fakebackend"
	"admintable.org/internal/querystate"
	"admintable.org/internal/routes"
	"admintable.org/internal/schema"
	"admintable.org/internal/storage"
)

type harness struct {
	srv     *Server
	backend *fakebackend.Backend
	console *httptest.Server
	client  *http.Client
}

func newHarness(t *testing.T, opts ...fakebackend.Option) *harness {
	t.Helper()
	return newHarnessWith(t, nil, opts...)
}

// newHarnessWith lets configure adjust the server before it starts serving.
func newHarnessWith(t *testing.T, configure func(*Server), opts ...fakebackend.Option) *harness {
	t.Helper()
	backend := fakebackend.New(opts...)
	api := httptest.NewServer(backend.Handler())
	t.Cleanup(api.Close)

	data, err := dataclient.New(dataclient.Config{BaseURL: api.URL + fakebackend.APIPrefix}, nil)
	require.NoError(t, err)
	srv, err := New(Options{
		Data:               data,
		Store:              storage.NewMemory(),
		Version:            "test",
		LiveReconnectDelay: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	if configure != nil {
		configure(srv)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return &harness{srv: srv, backend: backend, console: ts, client: newBrowser(t)}
}

// newBrowser keeps cookies and reports redirects instead of following them.
func newBrowser(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (h *harness) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := h.client.Get(h.console.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (h *harness) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := h.client.PostForm(h.console.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	resp, _ := h.post(t, routes.LoginPath, url.Values{"username": {"admin"}, "password": {"admin"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t)
	resp, body := h.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status":"ok"`)

	resp, _ = h.get(t, "/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginFlow(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.get(t, "/resource/user/list")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, routes.Login("/resource/user/list"), resp.Header.Get("Location"))

	resp, body := h.post(t, routes.Login("/resource/user/list"), url.Values{"username": {"admin"}, "password": {"nope"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Invalid username or password")

	resp, _ = h.post(t, routes.Login("/resource/user/list"), url.Values{"username": {"admin"}, "password": {"admin"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/resource/user/list", resp.Header.Get("Location"))

	resp, body = h.get(t, routes.Dashboard)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Authentication Success")
	assert.Contains(t, body, "Welcome")
	assert.Contains(t, body, "Demo data")
	assert.Contains(t, body, "Administrator")

	// the notification is shown once
	_, body = h.get(t, routes.Dashboard)
	assert.NotContains(t, body, "Authentication Success")

	resp, _ = h.get(t, "/login")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, _ = h.get(t, routes.Logout)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	resp, _ = h.get(t, routes.Dashboard)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestLoginRejectsOffsiteRedirect(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.post(t, "/login?from="+url.QueryEscape("//evil.example/"), url.Values{"username": {"admin"}, "password": {"admin"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestLoginAsksForOneTimePassword(t *testing.T) {
	h := newHarness(t, fakebackend.WithUser(fakebackend.User{ID: "ops", Password: "pw", OTP: "123456"}))

	resp, body := h.post(t, routes.LoginPath, url.Values{"username": {"ops"}, "password": {"pw"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, `name="otp"`)

	resp, _ = h.post(t, routes.LoginPath, url.Values{"username": {"ops"}, "password": {"pw"}, "otp": {"123456"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestListRedirectsToCanonicalState(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	resp, _ := h.get(t, "/resource/user/list")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	canonical := routes.ResourceListState("user", querystate.Default())
	assert.Equal(t, canonical, resp.Header.Get("Location"))

	resp, body := h.get(t, canonical)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, name := range []string{"Ada", "Grace", "Linus"} {
		assert.Contains(t, body, name)
	}
	assert.Contains(t, body, "Page 1 of 1")
}

func TestMutateList(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	canonical := routes.ResourceListState("user", querystate.Default())

	resp, _ := h.post(t, canonical, url.Values{"op": {"filters-add"}, "ref": {"status"}, "fop": {"eq"}, "val": {"active"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, routes.ResourceListBase("user"), loc.Path)
	st := querystate.FromValues(loc.Query())
	assert.Equal(t, []querystate.Filter{{Ref: "status", Op: "eq", Val: "active"}}, st.Filters)
	assert.Equal(t, 1, st.Page)

	resp, body := h.get(t, loc.RequestURI())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Ada")
	assert.NotContains(t, body, "Linus")

	resp, _ = h.post(t, loc.RequestURI(), url.Values{"op": {"sort"}, "ref": {"name"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loc, err = url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	st = querystate.FromValues(loc.Query())
	require.NotNil(t, st.Sort)
	assert.Equal(t, querystate.Sort{Ref: "name", Dir: querystate.Asc}, *st.Sort)
	assert.Len(t, st.Filters, 1)

	resp, _ = h.post(t, loc.RequestURI(), url.Values{"op": {"filters-remove"}, "ref": {"status"}, "fop": {"eq"}, "val": {"active"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loc, err = url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Empty(t, querystate.FromValues(loc.Query()).Filters)

	resp, _ = h.post(t, canonical, url.Values{"op": {"explode"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDetailSections(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	resp, body := h.get(t, routes.ResourceDetail("user", "1")+"?g0from=2024-01-01&g0to=2024-01-31")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Users 1")
	assert.Contains(t, body, "Deactivate")
	assert.Contains(t, body, "Orders placed by the user")
	assert.Contains(t, body, "<svg")
	assert.Contains(t, body, "st0=")
	assert.Contains(t, body, `value="2024-01-01"`)

	req, ok := h.backend.LastRequest("resource/user/detail/1/graph/logins")
	require.True(t, ok)
	q, err := url.ParseQuery(req.Query)
	require.NoError(t, err)
	assert.Equal(t, "date", q.Get("range_type"))
	assert.Equal(t, "2024-01-31T23:59:59Z", q.Get("range_to"))

	sub, ok := h.backend.LastRequest("resource/order/list")
	require.True(t, ok)
	q, err = url.ParseQuery(sub.Query)
	require.NoError(t, err)
	assert.Equal(t, "user_id;eq;1", q.Get("filter"))
	assert.Equal(t, "10", q.Get("per_page"))
}

func TestDetailIDWithSlash(t *testing.T) {
	h := newHarness(t)
	h.backend.AddResource(&fakebackend.Resource{
		Name:    "file",
		Title:   "Files",
		Columns: []fakebackend.Column{{Ref: "id", Display: "Path"}},
		Rows:    []map[string]any{{"id": "docs/readme.md"}},
	})
	h.login(t)

	resp, body := h.get(t, routes.ResourceDetail("file", "docs/readme.md"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "docs/readme.md")
	_, ok := h.backend.LastRequest("resource/file/detail/docs/readme.md")
	assert.True(t, ok)
}

func TestDetailNotFoundReturnsToList(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	resp, body := h.get(t, routes.ResourceDetail("user", "999"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Resource not found: 999")
	assert.Contains(t, body, `http-equiv="refresh"`)
	assert.Contains(t, body, "/resource/user/list")
}

func TestActionSubmission(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	detail := routes.ResourceDetail("user", "1")

	resp, _ := h.post(t, routes.ResourceAction("user", "1", "deactivate"), url.Values{})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = h.post(t, routes.ResourceAction("user", "1", "deactivate"), url.Values{"reason": {"spam"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, detail, resp.Header.Get("Location"))
	_, body := h.get(t, detail)
	assert.Contains(t, body, "User deactivated")

	resp, _ = h.post(t, routes.ResourceAction("user", "1", "rename"), url.Values{"name": {"Ada2"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, routes.ResourceListBase("user"), loc.Path)
	assert.Equal(t, []querystate.Filter{{Ref: "name", Op: "eq", Val: "Ada2"}}, querystate.FromValues(loc.Query()).Filters)

	resp, _ = h.post(t, routes.ResourceAction("user", "1", "missing"), url.Values{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreate(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	resp, body := h.get(t, routes.ResourceCreate("user"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `name="name"`)

	resp, _ = h.post(t, routes.ResourceCreate("user"), url.Values{})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = h.post(t, routes.ResourceCreate("user"), url.Values{"name": {"Barbara"}, "status": {"active"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, routes.ResourceDetail("user", "4"), resp.Header.Get("Location"))
}

func TestUnauthorizedBackendEndsSession(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	canonical := routes.ResourceListState("user", querystate.Default())
	h.backend.Fail("resource/user/list", http.StatusUnauthorized, "token revoked")

	resp, _ := h.get(t, canonical)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, routes.Login(canonical), resp.Header.Get("Location"))

	h.backend.Fail("resource/user/list", 0, "")
	resp, _ = h.get(t, canonical)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body := h.get(t, routes.LoginPath)
	assert.Contains(t, body, "Signed out")
}

func TestDetailSubFetchUnauthorizedEndsSession(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	detail := routes.ResourceDetail("user", "1")
	// The sub-table fails first with an ordinary error; the graph's 401
	// arrives later and must still end the session.
	h.backend.Fail("resource/order/list", http.StatusInternalServerError, "boom")
	h.backend.Fail("resource/user/detail/1/graph/logins", http.StatusUnauthorized, "token revoked")
	h.backend.Delay("resource/user/detail/1/graph/logins", 100*time.Millisecond)

	resp, _ := h.get(t, detail)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, routes.Login(detail), resp.Header.Get("Location"))
}

func TestBackendErrorPage(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.Fail("page/about/view", http.StatusInternalServerError, "")

	resp, body := h.get(t, routes.CustomPage("about"))
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, "request failed: Internal Server Error")
}

func TestCustomPageIsSanitised(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	resp, body := h.get(t, routes.CustomPage("status"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "All systems nominal")
	assert.NotContains(t, body, "alert(1)")
}

func TestInputForms(t *testing.T) {
	h := newHarness(t)

	resp, body := h.get(t, routes.InputForm("feedback")+"?email=a%40b.c")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Tell us what you think.")
	assert.Contains(t, body, `value="a@b.c"`)

	resp, _ = h.post(t, routes.InputForm("feedback"), url.Values{"message": {"hello"}, "rating": {"4"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, routes.CustomPage("about"), resp.Header.Get("Location"))
	subs := h.backend.Submissions("feedback")
	require.Len(t, subs, 1)
	assert.Equal(t, "hello", subs[0]["message"])

	resp, _ = h.get(t, routes.InputForm("invite"))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), routes.LoginPath))
}

func TestInterpretActionResponse(t *testing.T) {
	cases := []struct {
		name   string
		resp   schema.ActionResponse
		flash  Flash
		target string
	}{
		{
			name:   "refresh",
			resp:   schema.ActionResponse{Message: "done", Refresh: true, Redirect: schema.RedirectPage{Name: "x"}},
			flash:  Flash{Title: "Success", Message: "done"},
			target: "/back",
		},
		{
			name:   "failed without redirect",
			resp:   schema.ActionResponse{Message: "nope", Failed: true},
			flash:  Flash{Title: "Failed", Message: "nope", Failed: true},
			target: "/back",
		},
		{
			name:   "detail",
			resp:   schema.ActionResponse{Redirect: schema.RedirectDetail{Resource: "user", ID: "7"}},
			flash:  Flash{Title: "Success"},
			target: "/resource/user/detail/7",
		},
		{
			name:   "page",
			resp:   schema.ActionResponse{Redirect: schema.RedirectPage{Name: "about"}},
			flash:  Flash{Title: "Success"},
			target: "/page/about",
		},
		{
			name:   "list",
			resp:   schema.ActionResponse{Redirect: schema.RedirectList{Resource: "user", Filters: []schema.Filter{{Ref: "id", Op: "eq", Val: "3"}}}},
			flash:  Flash{Title: "Success"},
			target: routes.ResourceList("user", []querystate.Filter{{Ref: "id", Op: "eq", Val: "3"}}, nil),
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			flash, target := interpretActionResponse(tc.resp, "/back")
			assert.Equal(t, tc.flash, flash)
			assert.Equal(t, tc.target, target)
		})
	}
}

func TestLiveStream(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.get(t, routes.Live("load-1", "0", true, "Load"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	h.login(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.console.URL+routes.Live("load-1", "0", true, "Load"), nil)
	require.NoError(t, err)
	resp, err = h.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan liveEvent, 32)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			data, ok := strings.CutPrefix(sc.Text(), "data: ")
			if !ok {
				continue
			}
			var ev liveEvent
			if json.Unmarshal([]byte(data), &ev) == nil {
				events <- ev
			}
		}
	}()

	first := <-events
	assert.Contains(t, string(first.Value), "0")

	require.Eventually(t, func() bool { return h.backend.Subscribers("load-1") == 1 }, 5*time.Second, 10*time.Millisecond)
	h.backend.Publish("load-1", "42")

	for ev := range events {
		if strings.Contains(string(ev.Value), "42") {
			assert.Equal(t, "connected", ev.State)
			assert.NotEmpty(t, ev.History)
			return
		}
	}
	t.Fatal("stream ended before the published value arrived")
}
