// Package routes builds the console's URLs.
package routes

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"admintable.org/internal/querystate"
)

const (
	Dashboard = "/"
	LoginPath = "/login"
	Logout    = "/logout"
	LivePath  = "/live"
)

func ResourceCreate(resource string) string {
	return "/resource/" + url.PathEscape(resource) + "/create"
}

func ResourceDetail(resource, id string) string {
	return "/resource/" + url.PathEscape(resource) + "/detail/" + url.PathEscape(id)
}

// ResourceAction is the form target of a detail action.
func ResourceAction(resource, id, ref string) string {
	return ResourceDetail(resource, id) + "/action/" + url.PathEscape(ref)
}

// ResourceListBase is the list route without query state.
func ResourceListBase(resource string) string {
	return "/resource/" + url.PathEscape(resource) + "/list"
}

// ResourceList links to a list on its first page with the given filters and
// optional sort.
func ResourceList(resource string, filters []querystate.Filter, sort *querystate.Sort) string {
	st := querystate.Default()
	st.Filters = append(st.Filters, filters...)
	st.Sort = sort
	return ResourceListState(resource, st)
}

// ResourceListState links to a list showing exactly st.
func ResourceListState(resource string, st querystate.State) string {
	return ResourceListBase(resource) + "?" + st.Values().Encode()
}

func CustomPage(name string) string {
	return "/page/" + url.PathEscape(name)
}

func InputForm(name string) string {
	return "/forms/" + url.PathEscape(name)
}

// Login links to the login page, returning to from afterwards.
func Login(from string) string {
	if from == "" || from == LoginPath {
		return LoginPath
	}
	return LoginPath + "?" + url.Values{"from": {from}}.Encode()
}

// Live is the SSE endpoint of one live value. initial seeds the value shown
// before the first message arrives.
func Live(topic, initial string, history bool, title string) string {
	q := url.Values{"topic": {topic}, "history": {strconv.FormatBool(history)}}
	if initial != "" {
		q.Set("initial", initial)
	}
	if title != "" {
		q.Set("title", title)
	}
	return LivePath + "?" + q.Encode()
}

// SafeRedirect returns target when it is a local path and fallback otherwise.
func SafeRedirect(target, fallback string) string {
	if target == "" {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" || len(u.Path) == 0 || u.Path[0] != '/' {
		return fallback
	}
	if len(target) > 1 && (target[1] == '/' || target[1] == '\\') {
		return fallback
	}
	return target
}

// Param returns the decoded path parameter key. chi routes on RawPath when
// the request has one, so an id like "a%2Fb" comes back still escaped.
func Param(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return raw
	}
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
