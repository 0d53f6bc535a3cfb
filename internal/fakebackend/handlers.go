package fakebackend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"admintable.org/internal/auth"
	"admintable.org/internal/routes"
	"admintable.org/internal/schema"
)

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(io.LimitReader(r.Body, 1<<20))
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
		path := strings.TrimPrefix(r.URL.Path, APIPrefix)
		b.mu.Lock()
		b.requests = append(b.requests, Request{
			Method: r.Method,
			Path:   path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		f, failing := b.failures[path]
		delay := b.delays[path]
		b.mu.Unlock()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if failing {
			writeMessage(w, f.status, f.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body")
		return
	}
	b.mu.Lock()
	u, ok := b.users[creds.Username]
	b.mu.Unlock()
	if !ok || u.Password != creds.Password {
		writeMessage(w, http.StatusUnauthorized, "login failed")
		return
	}
	if u.OTP != "" && creds.OTP == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "one-time password required", "code": "missing_otp"})
		return
	}
	if u.OTP != "" && u.OTP != creds.OTP {
		writeMessage(w, http.StatusUnauthorized, "login failed")
		return
	}
	sess, err := b.session(u)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body refreshBody
	_ = json.NewDecoder(r.Body).Decode(&body)
	claims, err := b.verify(body.RefreshToken, auth.TokenTypeRefresh)
	b.mu.Lock()
	revoked := b.revoked[body.RefreshToken]
	u, known := User{}, false
	if err == nil {
		u, known = b.users[claims.Subject]
	}
	b.mu.Unlock()
	if err != nil || revoked || !known {
		writeMessage(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	sess, err := b.session(u)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body refreshBody
	_ = json.NewDecoder(r.Body).Decode(&body)
	if _, err := b.verify(body.RefreshToken, auth.TokenTypeRefresh); err != nil {
		writeMessage(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	b.mu.Lock()
	b.revoked[body.RefreshToken] = true
	b.mu.Unlock()
	writeMessage(w, http.StatusOK, "logged out")
}

func (b *Backend) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"message": "pong"})
}

func (b *Backend) handleUser(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"user_id": u.ID, "display": u.Display}})
}

func (b *Backend) handleNavigation(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var resLinks, pageLinks []map[string]any
	for _, name := range sortedKeys(b.resources) {
		resLinks = append(resLinks, map[string]any{"name": name, "display": b.resources[name].Title, "type": "resource"})
	}
	for _, name := range sortedKeys(b.pages) {
		pageLinks = append(pageLinks, map[string]any{"name": name, "display": b.pages[name].Display, "type": "page"})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     "Fake Admin",
		"icon_src": "",
		"version":  "0.0.0",
		"navigation": []any{
			map[string]any{"name": "Data", "icon": "table", "links": resLinks},
			map[string]any{"name": "Pages", "icon": "file", "links": pageLinks},
		},
	})
}

func (b *Backend) handleBanner(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"content": b.banner})
}

func (b *Backend) handleDashboard(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"content": b.dashboard})
}

func (b *Backend) handlePage(w http.ResponseWriter, r *http.Request) {
	name := routes.Param(r, "name")
	b.mu.Lock()
	p, ok := b.pages[name]
	b.mu.Unlock()
	if !ok {
		writeMessage(w, http.StatusNotFound, "Page not found: "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"display": p.Display, "name": name, "content": p.Content, "type": p.Type})
}

func (b *Backend) resource(w http.ResponseWriter, r *http.Request) (*Resource, bool) {
	name := routes.Param(r, "resource")
	res, ok := b.resources[name]
	if !ok {
		writeMessage(w, http.StatusNotFound, "Resource not found: "+name)
	}
	return res, ok
}

func (b *Backend) handleList(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	res, ok := b.resource(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page := atoiDefault(q.Get("page"), 1)
	perPage := atoiDefault(q.Get("per_page"), 50)

	rows := append([]map[string]any(nil), res.Rows...)
	var applied []map[string]any
	for _, raw := range q["filter"] {
		parts := strings.SplitN(raw, ";", 3)
		if len(parts) < 2 {
			writeMessage(w, http.StatusBadRequest, "invalid filter: "+raw)
			return
		}
		ref, op, val := parts[0], parts[1], ""
		if len(parts) == 3 {
			val = parts[2]
		}
		rows = filterRows(rows, ref, op, val)
		applied = append(applied, map[string]any{"ref": ref, "op": op, "val": val, "display": ref})
	}

	currentSort := ""
	if s := q.Get("sort"); s != "" {
		ref, dir, _ := strings.Cut(s, ";")
		currentSort = ref
		sort.SliceStable(rows, func(i, j int) bool {
			c := compare(rows[i][ref], rows[j][ref])
			if dir == "desc" {
				return c > 0
			}
			return c < 0
		})
	}

	total := len(rows)
	start := min((page-1)*perPage, total)
	end := min(start+perPage, total)

	data := make([][]any, 0, end-start)
	for _, row := range rows[start:end] {
		data = append(data, cells(res, row))
	}
	header := make([]map[string]any, 0, len(res.Columns))
	sortDir := sortDirection(q.Get("sort"))
	for _, c := range res.Columns {
		h := head(c)
		if c.Ref == currentSort {
			h["sort"] = sortDir
		}
		header = append(header, h)
	}
	available := make([]map[string]any, 0, len(res.Columns))
	for _, c := range res.Columns {
		if c.Cell == nil {
			available = append(available, map[string]any{"ref": c.Ref, "display": c.Display})
		}
	}
	if applied == nil {
		applied = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"applied_filters":   applied,
		"available_filters": available,
		"data":              data,
		"header":            header,
		"meta":              map[string]any{"title": res.Title, "description": res.Description, "has_create": res.Create != nil},
		"pagination":        map[string]any{"page": page, "per_page": perPage, "total": total},
	})
}

func sortDirection(raw string) string {
	_, dir, _ := strings.Cut(raw, ";")
	if dir == "desc" {
		return "desc"
	}
	return "asc"
}

func head(c Column) map[string]any {
	return map[string]any{"ref": c.Ref, "display": c.Display, "sortable": c.Sortable, "description": c.Description}
}

func cells(res *Resource, row map[string]any) []any {
	out := make([]any, 0, len(res.Columns))
	for _, c := range res.Columns {
		if c.Cell != nil {
			out = append(out, c.Cell(row))
			continue
		}
		out = append(out, row[c.Ref])
	}
	return out
}

func filterRows(rows []map[string]any, ref, op, val string) []map[string]any {
	var out []map[string]any
	for _, row := range rows {
		v, present := row[ref]
		s := ""
		if present && v != nil {
			s = fmt.Sprint(v)
		}
		keep := false
		switch op {
		case "eq":
			keep = s == val
		case "ne":
			keep = s != val
		case "lt":
			keep = compare(v, val) < 0
		case "le":
			keep = compare(v, val) <= 0
		case "gt":
			keep = compare(v, val) > 0
		case "ge":
			keep = compare(v, val) >= 0
		case "in":
			for _, part := range strings.Split(val, ",") {
				if strings.TrimSpace(part) == s {
					keep = true
				}
			}
		case "like":
			keep = strings.Contains(s, strings.Trim(val, "%"))
		case "ilike":
			keep = strings.Contains(strings.ToLower(s), strings.ToLower(strings.Trim(val, "%")))
		case "is_null":
			keep = s == ""
		case "is_not_null":
			keep = s != ""
		}
		if keep {
			out = append(out, row)
		}
	}
	return out
}

// compare orders numbers numerically and everything else as text.
func compare(a, b any) int {
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	af, aerr := strconv.ParseFloat(as, 64)
	bf, berr := strconv.ParseFloat(bs, 64)
	if aerr == nil && berr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(as, bs)
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func (b *Backend) handleCreateSchema(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	res, ok := b.resource(w, r)
	if !ok {
		return
	}
	if res.Create == nil {
		writeMessage(w, http.StatusNotFound, "Create not supported")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema": res.Create})
}

func (b *Backend) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	res, ok := b.resource(w, r)
	if !ok {
		return
	}
	if res.Create == nil {
		writeMessage(w, http.StatusNotFound, "Create not supported")
		return
	}
	if name, _ := payload["name"].(string); res.Name == "user" && strings.TrimSpace(name) == "" {
		writeJSON(w, http.StatusOK, schema.ActionResponse{Message: "Name is required", Failed: true})
		return
	}
	id := res.nextID
	res.nextID++
	payload["id"] = id
	res.Rows = append(res.Rows, payload)
	writeJSON(w, http.StatusOK, schema.ActionResponse{
		Message:  "Created",
		Redirect: schema.RedirectDetail{Resource: res.Name, ID: strconv.Itoa(id)},
	})
}

func (b *Backend) handleDetail(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	res, ok := b.resource(w, r)
	if !ok {
		return
	}
	id := routes.Param(r, "id")
	row, ok := res.find(id)
	if !ok {
		writeMessage(w, http.StatusNotFound, "Resource not found: "+id)
		return
	}
	fields := make([]any, 0, len(res.Columns))
	values := cells(res, row)
	for i, c := range res.Columns {
		fields = append(fields, []any{head(c), values[i]})
	}
	tables := make([]map[string]any, 0, len(res.Tables))
	for _, t := range res.Tables {
		cp := map[string]any{}
		for k, v := range t {
			cp[k] = v
		}
		if f, ok := t["filter"].(map[string]any); ok {
			ff := map[string]any{}
			for k, v := range f {
				ff[k] = v
			}
			if ff["val"] == "{id}" {
				ff["val"] = id
			}
			cp["filter"] = ff
		}
		tables = append(tables, cp)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"title":       fmt.Sprintf("%s %s", res.Title, id),
		"description": res.Description,
		"fields":      fields,
		"actions":     orEmpty(res.Actions),
		"tables":      tables,
		"graphs":      orEmpty(res.Graphs),
	})
}

func orEmpty(v []map[string]any) []map[string]any {
	if v == nil {
		return []map[string]any{}
	}
	return v
}

type actionBody struct {
	Params map[string]any `json:"params"`
}

func (b *Backend) handleAction(w http.ResponseWriter, r *http.Request) {
	var body actionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	res, ok := b.resource(w, r)
	if !ok {
		return
	}
	id, ref := routes.Param(r, "id"), routes.Param(r, "ref")
	row, ok := res.find(id)
	if !ok {
		writeMessage(w, http.StatusNotFound, "Resource not found: "+id)
		return
	}
	switch ref {
	case "deactivate":
		reason, _ := body.Params["reason"].(string)
		if reason == "" {
			writeJSON(w, http.StatusOK, schema.ActionResponse{Message: "Failed calling action: reason is required", Failed: true})
			return
		}
		row["status"] = "inactive"
		writeJSON(w, http.StatusOK, schema.ActionResponse{Message: "User deactivated", Refresh: true})
	case "rename":
		name, _ := body.Params["name"].(string)
		row["name"] = name
		writeJSON(w, http.StatusOK, schema.ActionResponse{
			Message:  "Renamed",
			Redirect: schema.RedirectList{Resource: res.Name, Filters: []schema.Filter{{Ref: "name", Op: "eq", Val: schema.Text(name)}}},
		})
	default:
		writeJSON(w, http.StatusOK, schema.ActionResponse{Message: "Invalid action ref: " + ref, Failed: true})
	}
}

func (b *Backend) handleGraph(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	res, ok := b.resource(w, r)
	if !ok {
		return
	}
	if rt := r.URL.Query().Get("range_type"); rt != "" && rt != "date" {
		writeMessage(w, http.StatusBadRequest, "Invalid range type: "+rt)
		return
	}
	id, ref := routes.Param(r, "id"), routes.Param(r, "ref")
	if _, ok := res.find(id); !ok {
		writeMessage(w, http.StatusNotFound, "Resource not found: "+id)
		return
	}
	if ref != "logins" {
		writeMessage(w, http.StatusNotFound, "Graph "+ref+" not found")
		return
	}
	days := []string{"Mon", "Tue", "Wed", "Thu", "Fri"}
	data := make([]map[string]any, 0, len(days))
	for i, d := range days {
		data = append(data, map[string]any{"day": d, "logins": (i*7)%5 + 1})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"type": "line",
		"config": map[string]any{
			"dataKey": "day",
			"data":    data,
			"series":  []any{map[string]any{"name": "logins", "color": "indigo.6"}},
		},
	})
}

func (b *Backend) formFor(w http.ResponseWriter, r *http.Request) (Form, string, bool) {
	name := routes.Param(r, "name")
	b.mu.Lock()
	f, ok := b.forms[name]
	b.mu.Unlock()
	if !ok {
		writeMessage(w, http.StatusNotFound, "Form not found: "+name)
		return Form{}, name, false
	}
	if !f.Public {
		if _, ok := b.userFromHeader(r.Header.Get("Authorization")); !ok {
			writeMessage(w, http.StatusUnauthorized, "Unauthorized")
			return Form{}, name, false
		}
	}
	return f, name, true
}

func (b *Backend) handleInputForm(w http.ResponseWriter, r *http.Request) {
	f, _, ok := b.formFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"title": f.Title, "public": f.Public, "description": f.Description, "schema": f.Schema,
	})
}

func (b *Backend) handleSubmitInputForm(w http.ResponseWriter, r *http.Request) {
	_, name, ok := b.formFor(w, r)
	if !ok {
		return
	}
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeMessage(w, http.StatusInternalServerError, "error: invalid body")
		return
	}
	b.mu.Lock()
	b.submitted[name] = append(b.submitted[name], payload)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, schema.ActionResponse{Message: "Thank you", Redirect: schema.RedirectPage{Name: "about"}})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
