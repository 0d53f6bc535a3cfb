package console

import (
	"net/http"
	"net/url"
	"strconv"

	"admintable.org/internal/querystate"
	"admintable.org/internal/render"
	"admintable.org/internal/routes"
	"admintable.org/internal/schema"
)

var operatorLabels = map[string]string{
	"eq":          "=",
	"ne":          "!=",
	"lt":          "<",
	"le":          "<=",
	"gt":          ">",
	"ge":          ">=",
	"in":          "in",
	"like":        "like",
	"ilike":       "ilike",
	"is_null":     "is null",
	"is_not_null": "is not null",
}

var operatorOrder = []string{"eq", "ne", "lt", "le", "gt", "ge", "in", "like", "ilike", "is_null", "is_not_null"}

type operatorView struct {
	Op    string
	Label string
}

type headerView struct {
	Display     string
	Description string
	Sort        string
	Href        string
}

// tableView is one rendered page of a list, shared by list views and the
// sub-tables of detail views.
type tableView struct {
	Headers  []headerView
	Rows     [][]render.FieldView
	Page     int
	Pages    int
	Total    int
	PrevHref string
	NextHref string
}

type listView struct {
	Title          string
	Description    string
	CreateHref     string
	Action         string
	Available      []schema.AvailableFilter
	Applied        []schema.AppliedFilter
	Operators      []operatorView
	PerPage        int
	PerPageChoices []int
	Table          tableView
}

func operators() []operatorView {
	out := make([]operatorView, 0, len(operatorOrder))
	for _, op := range operatorOrder {
		out = append(out, operatorView{Op: op, Label: operatorLabels[op]})
	}
	return out
}

// withState applies f to a store seeded with st and returns the result, so
// links follow the same page-reset rules as form posts.
func withState(st querystate.State, f func(*querystate.Store)) querystate.State {
	store := querystate.NewStore(st.Values())
	f(store)
	return store.State()
}

// buildTable renders list under st. link turns a state into the URL showing it.
func (s *Server) buildTable(list schema.ListResponse, st querystate.State, link func(querystate.State) string) tableView {
	tv := tableView{
		Page:  list.Pagination.Page,
		Pages: list.Pagination.Pages(),
		Total: list.Pagination.Total,
	}
	if tv.Page < 1 {
		tv.Page = st.Page
	}
	for _, h := range list.Header {
		_, display := render.ParseTitle(h.Display)
		hv := headerView{Display: display, Description: h.Description, Sort: h.Sort}
		if st.Sort != nil && st.Sort.Ref == h.Ref {
			hv.Sort = st.Sort.Dir
		}
		if h.Sortable {
			current := ""
			if st.Sort != nil && st.Sort.Ref == h.Ref {
				current = st.Sort.Dir
			}
			next := querystate.NextSort(h.Ref, current)
			hv.Href = link(withState(st, func(qs *querystate.Store) { qs.SetSort(next) }))
		}
		tv.Headers = append(tv.Headers, hv)
	}
	for _, row := range list.Data {
		cells := make([]render.FieldView, 0, len(row))
		for i, cell := range row {
			title := ""
			if i < len(list.Header) {
				title = list.Header[i].Display
			}
			cells = append(cells, s.renderer.Field(cell, title))
		}
		tv.Rows = append(tv.Rows, cells)
	}
	if tv.Page > 1 {
		tv.PrevHref = link(withState(st, func(qs *querystate.Store) { qs.SetPage(tv.Page - 1) }))
	}
	if tv.Page < tv.Pages {
		tv.NextHref = link(withState(st, func(qs *querystate.Store) { qs.SetPage(tv.Page + 1) }))
	}
	return tv
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	name := routes.Param(r, "name")
	store := querystate.NewStore(r.URL.Query())
	st := store.State()

	// the URL always carries the canonical state
	if raw := r.URL.Query().Get(querystate.Param); raw != querystate.Encode(st) {
		http.Redirect(w, r, routes.ResourceListState(name, st), http.StatusSeeOther)
		return
	}

	b := sessionFrom(r.Context())
	list, err := b.data.List(r.Context(), name, st)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view := listView{
		Title:          list.Meta.Title,
		Description:    list.Meta.Description,
		Action:         routes.ResourceListState(name, st),
		Available:      list.AvailableFilters,
		Applied:        list.AppliedFilters,
		Operators:      operators(),
		PerPage:        st.PerPage,
		PerPageChoices: querystate.PerPageChoices,
		Table: s.buildTable(list, st, func(next querystate.State) string {
			return routes.ResourceListState(name, next)
		}),
	}
	if view.Title == "" {
		view.Title = name
	}
	if list.Meta.HasCreate {
		view.CreateHref = routes.ResourceCreate(name)
	}
	s.page(w, r, http.StatusOK, "list", view.Title, view)
}

// mutateList applies one query-state change posted by the list page and
// redirects to the resulting URL.
func (s *Server) mutateList(w http.ResponseWriter, r *http.Request) {
	name := routes.Param(r, "name")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	store := querystate.NewStore(r.URL.Query())
	form := r.PostForm
	switch form.Get("op") {
	case "page":
		store.SetPage(atoi(form.Get("page")))
	case "perPage":
		store.SetPerPage(atoi(form.Get("perPage")))
	case "sort":
		ref := form.Get("ref")
		dir := form.Get("dir")
		if dir != querystate.Asc && dir != querystate.Desc {
			current := ""
			if st := store.State(); st.Sort != nil && st.Sort.Ref == ref {
				current = st.Sort.Dir
			}
			next := querystate.NextSort(ref, current)
			dir = next.Dir
		}
		store.SetSort(querystate.Sort{Ref: ref, Dir: dir})
	case "filters-add":
		f := postedFilter(form)
		if f.Ref == "" || f.Op == "" {
			http.Error(w, "filter needs a column and an operator", http.StatusBadRequest)
			return
		}
		store.AddFilter(f)
	case "filters-remove":
		store.RemoveFilter(postedFilter(form))
	default:
		http.Error(w, "unknown operation", http.StatusBadRequest)
		return
	}
	values, _ := store.URLValues()
	http.Redirect(w, r, routes.ResourceListBase(name)+"?"+values.Encode(), http.StatusSeeOther)
}

func postedFilter(form url.Values) querystate.Filter {
	f := querystate.Filter{Ref: form.Get("ref"), Op: form.Get("fop"), Val: form.Get("val")}
	if f.Op == "is_null" || f.Op == "is_not_null" {
		f.Val = ""
	}
	return f
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
