package console

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"admintable.org/internal/dataclient"
	"admintable.org/internal/querystate"
	"admintable.org/internal/render"
	"admintable.org/internal/routes"
	"admintable.org/internal/schema"
)

const (
	subTablePerPage = 10
	dateLayout      = "2006-01-02"
)

type actionView struct {
	Href        string
	Title       string
	Description string
	Error       string
	Form        template.HTML
}

type subTableView struct {
	Title       string
	Description string
	ListHref    string
	Error       string
	Table       tableView
}

type hiddenInput struct {
	Name  string
	Value string
}

type graphView struct {
	Title       string
	Description string
	Action      string
	Keep        []hiddenInput
	FromParam   string
	From        string
	ToParam     string
	To          string
	Error       string
	Chart       template.HTML
}

type detailView struct {
	Title       string
	Description string
	Fields      []render.FieldView
	Actions     []actionView
	Tables      []subTableView
	Graphs      []graphView
}

func subTableParam(i int) string  { return "st" + strconv.Itoa(i) }
func graphFromParam(i int) string { return "g" + strconv.Itoa(i) + "from" }
func graphToParam(i int) string   { return "g" + strconv.Itoa(i) + "to" }

// subTableState reads the state of sub-table i. Its filter is always the
// table's own link filter.
func subTableState(q url.Values, i int, t schema.SubTable) querystate.State {
	st := querystate.Default()
	st.PerPage = subTablePerPage
	if raw := q.Get(subTableParam(i)); raw != "" {
		st = querystate.Decode(raw)
	}
	st.Filters = []querystate.Filter{subTableFilter(t)}
	return st
}

func subTableFilter(t schema.SubTable) querystate.Filter {
	return querystate.Filter{Ref: t.Filter.Col, Op: t.Filter.Op, Val: t.Filter.Val.String()}
}

// graphRange reads the date inputs of graph i. To covers the whole day.
func graphRange(q url.Values, i int) (dataclient.GraphRange, string, string) {
	var rng dataclient.GraphRange
	from, to := q.Get(graphFromParam(i)), q.Get(graphToParam(i))
	if t, err := time.Parse(dateLayout, from); err == nil {
		rng.From = t
	} else {
		from = ""
	}
	if t, err := time.Parse(dateLayout, to); err == nil {
		rng.To = t.Add(24*time.Hour - time.Second)
	} else {
		to = ""
	}
	return rng, from, to
}

// withParam returns the detail URL with one query parameter replaced.
func withParam(path string, q url.Values, name, value string) string {
	next := url.Values{}
	for k, v := range q {
		next[k] = append([]string(nil), v...)
	}
	next.Set(name, value)
	return path + "?" + next.Encode()
}

func (s *Server) detail(w http.ResponseWriter, r *http.Request) {
	name, id := routes.Param(r, "name"), routes.Param(r, "id")
	b := sessionFrom(r.Context())
	d, err := b.data.Detail(r.Context(), name, id)
	if err != nil {
		if errors.Is(err, dataclient.ErrNotFound) {
			s.notFoundDetail(w, r, name, err)
			return
		}
		s.fail(w, r, err)
		return
	}
	view, err := s.detailView(r, name, id, d, "", nil, nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.page(w, r, http.StatusOK, "detail", view.Title, view)
}

// detailView builds the page. failedRef names an action whose submission
// is echoed back with its errors. A failing sub-table or graph is shown in
// place; only an ended session is returned.
func (s *Server) detailView(r *http.Request, name, id string, d schema.DetailResponse, failedRef string, values url.Values, errs render.FieldErrors) (detailView, error) {
	ctx := r.Context()
	b := sessionFrom(ctx)
	q := r.URL.Query()
	path := routes.ResourceDetail(name, id)

	view := detailView{Title: d.Title, Description: d.Description}
	if view.Title == "" {
		view.Title = id
	}
	for _, f := range d.Fields {
		view.Fields = append(view.Fields, s.renderer.Field(f.Cell, f.Head.Display))
	}
	for _, a := range d.Actions {
		av := actionView{
			Href:        routes.ResourceAction(name, id, a.Ref),
			Title:       a.Title,
			Description: a.Description,
		}
		if a.Ref == failedRef {
			av.Form = render.Form(render.ActionSchema(a), values, errs)
		} else {
			av.Form = render.Form(render.ActionSchema(a), nil, nil)
		}
		view.Actions = append(view.Actions, av)
	}

	view.Tables = make([]subTableView, len(d.Tables))
	view.Graphs = make([]graphView, len(d.Graphs))
	// One slot per sub-fetch; any of them may report the ended session.
	failures := make([]error, len(d.Tables)+len(d.Graphs))
	var g errgroup.Group
	for i, t := range d.Tables {
		i, t := i, t
		g.Go(func() error {
			st := subTableState(q, i, t)
			tv := subTableView{
				Title:       t.Title,
				Description: t.Description,
				ListHref:    routes.ResourceList(t.Resource, st.Filters, nil),
			}
			list, err := b.data.List(ctx, t.Resource, st)
			if err != nil {
				tv.Error = err.Error()
				view.Tables[i] = tv
				failures[i] = err
				return nil
			}
			tv.Table = s.buildTable(list, st, func(next querystate.State) string {
				return withParam(path, q, subTableParam(i), querystate.Encode(next))
			})
			view.Tables[i] = tv
			return nil
		})
	}
	for i, ref := range d.Graphs {
		i, ref := i, ref
		g.Go(func() error {
			rng, from, to := graphRange(q, i)
			gv := graphView{
				Title:       ref.Title,
				Description: ref.Description,
				Action:      path,
				FromParam:   graphFromParam(i),
				From:        from,
				ToParam:     graphToParam(i),
				To:          to,
			}
			for k, vs := range q {
				if k == gv.FromParam || k == gv.ToParam {
					continue
				}
				for _, v := range vs {
					gv.Keep = append(gv.Keep, hiddenInput{Name: k, Value: v})
				}
			}
			resp, err := b.data.DetailGraph(ctx, name, id, ref.Reference, rng)
			if err != nil {
				gv.Error = err.Error()
				view.Graphs[i] = gv
				failures[len(d.Tables)+i] = err
				return nil
			}
			if resp.Config.Title != "" {
				gv.Title = resp.Config.Title
			}
			if resp.Config.Description != "" {
				gv.Description = resp.Config.Description
			}
			gv.Chart = render.Chart(resp)
			view.Graphs[i] = gv
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return view, err
	}
	for _, err := range failures {
		if errors.Is(err, dataclient.ErrUnauthorized) {
			return view, err
		}
	}
	return view, nil
}

// action validates the posted parameters against the action's declaration,
// runs it and follows the response.
func (s *Server) action(w http.ResponseWriter, r *http.Request) {
	name, id, ref := routes.Param(r, "name"), routes.Param(r, "id"), routes.Param(r, "ref")
	ctx := r.Context()
	b := sessionFrom(ctx)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	d, err := b.data.Detail(ctx, name, id)
	if err != nil {
		if errors.Is(err, dataclient.ErrNotFound) {
			s.notFoundDetail(w, r, name, err)
			return
		}
		s.fail(w, r, err)
		return
	}
	var decl *schema.Action
	for i := range d.Actions {
		if d.Actions[i].Ref == ref {
			decl = &d.Actions[i]
			break
		}
	}
	if decl == nil {
		http.Error(w, "unknown action "+ref, http.StatusNotFound)
		return
	}
	params, errs := render.ParseForm(render.ActionSchema(*decl), r.PostForm)
	if errs != nil {
		view, err := s.detailView(r, name, id, d, ref, r.PostForm, errs)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.page(w, r, http.StatusUnprocessableEntity, "detail", view.Title, view)
		return
	}

	back := routes.ResourceDetail(name, id)
	resp, err := b.data.ExecuteAction(ctx, name, id, ref, params)
	if err != nil {
		s.submitFailed(w, r, err, back)
		return
	}
	flash, target := interpretActionResponse(resp, back)
	b.notify(ctx, flash)
	http.Redirect(w, r, target, http.StatusSeeOther)
}
