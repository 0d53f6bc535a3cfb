package dataclient

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"admintable.org/internal/querystate"
	"admintable.org/internal/schema"
)

func seg(s string) string { return url.PathEscape(s) }

// Ping is an authenticated no-op.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodPost, "ping", nil, struct{}{}, nil)
}

func (c *Client) UserInfo(ctx context.Context) (schema.UserInfo, error) {
	var out schema.UserInfo
	err := c.do(ctx, "user", http.MethodGet, "user", nil, nil, &out)
	return out, err
}

func (c *Client) Navigation(ctx context.Context) (schema.Navigation, error) {
	var out schema.Navigation
	err := c.do(ctx, "navigation", http.MethodGet, "navigation", nil, nil, &out)
	return out, err
}

func (c *Client) Banner(ctx context.Context) (schema.Banner, error) {
	var out schema.Banner
	err := c.do(ctx, "banner", http.MethodGet, "banner", nil, nil, &out)
	return out, err
}

func (c *Client) Dashboard(ctx context.Context) (schema.Dashboard, error) {
	var out schema.Dashboard
	err := c.do(ctx, "dashboard", http.MethodGet, "dashboard", nil, nil, &out)
	return out, err
}

// Page loads a custom page.
func (c *Client) Page(ctx context.Context, name string) (schema.Page, error) {
	var out schema.Page
	err := c.do(ctx, "page", http.MethodGet, "page/"+seg(name)+"/view", nil, nil, &out)
	return out, err
}

// List loads one page of a resource list. The query carries page, per_page,
// sort=ref;dir and one filter=ref;op;val per filter.
func (c *Client) List(ctx context.Context, resource string, st querystate.State) (schema.ListResponse, error) {
	var out schema.ListResponse
	err := c.do(ctx, "list", http.MethodGet, "resource/"+seg(resource)+"/list", st.BackendQuery(), nil, &out)
	return out, err
}

func (c *Client) CreateSchema(ctx context.Context, resource string) (schema.CreateSchema, error) {
	var out schema.CreateSchema
	err := c.do(ctx, "create_schema", http.MethodGet, "resource/"+seg(resource)+"/create", nil, nil, &out)
	return out, err
}

// Create submits a create form. The payload is sent as the request body.
func (c *Client) Create(ctx context.Context, resource string, data map[string]any) (schema.ActionResponse, error) {
	var out schema.ActionResponse
	if data == nil {
		data = map[string]any{}
	}
	err := c.do(ctx, "create", http.MethodPost, "resource/"+seg(resource)+"/create", nil, data, &out)
	return out, err
}

func (c *Client) Detail(ctx context.Context, resource, id string) (schema.DetailResponse, error) {
	var out schema.DetailResponse
	err := c.do(ctx, "detail", http.MethodGet, "resource/"+seg(resource)+"/detail/"+seg(id), nil, nil, &out)
	return out, err
}

// ExecuteAction runs an action; params are wrapped as {"params": {...}}.
func (c *Client) ExecuteAction(ctx context.Context, resource, id, ref string, params map[string]any) (schema.ActionResponse, error) {
	if params == nil {
		params = map[string]any{}
	}
	var out schema.ActionResponse
	path := "resource/" + seg(resource) + "/detail/" + seg(id) + "/action/" + seg(ref)
	err := c.do(ctx, "action", http.MethodPost, path, nil, map[string]any{"params": params}, &out)
	return out, err
}

// GraphRange limits the data of a detail graph. Zero times are left out.
type GraphRange struct {
	From time.Time
	To   time.Time
}

func (r GraphRange) query() url.Values {
	if r.From.IsZero() && r.To.IsZero() {
		return nil
	}
	q := url.Values{"range_type": {"date"}}
	if !r.From.IsZero() {
		q.Set("range_from", r.From.Format(time.RFC3339))
	}
	if !r.To.IsZero() {
		q.Set("range_to", r.To.Format(time.RFC3339))
	}
	return q
}

func (c *Client) DetailGraph(ctx context.Context, resource, id, ref string, rng GraphRange) (schema.GraphResponse, error) {
	var out schema.GraphResponse
	path := "resource/" + seg(resource) + "/detail/" + seg(id) + "/graph/" + seg(ref)
	err := c.do(ctx, "graph", http.MethodGet, path, rng.query(), nil, &out)
	return out, err
}

func (c *Client) InputForm(ctx context.Context, name string) (schema.InputForm, error) {
	var out schema.InputForm
	err := c.do(ctx, "input_form", http.MethodGet, "input_form/"+seg(name), nil, nil, &out)
	return out, err
}

func (c *Client) SubmitInputForm(ctx context.Context, name string, data map[string]any) (schema.ActionResponse, error) {
	if data == nil {
		data = map[string]any{}
	}
	var out schema.ActionResponse
	err := c.do(ctx, "input_form_submit", http.MethodPost, "input_form/"+seg(name), nil, data, &out)
	return out, err
}
