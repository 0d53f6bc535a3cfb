package console

import (
	"encoding/json"
	"html/template"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"admintable.org/internal/render"
	"admintable.org/internal/routes"
	"admintable.org/internal/schema"
)

type dashboardView struct {
	Banner template.HTML
	Body   template.HTML
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	b := sessionFrom(r.Context())
	var (
		dash   schema.Dashboard
		banner schema.Banner
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		dash, err = b.data.Dashboard(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		if banner, err = b.data.Banner(ctx); err != nil {
			// the banner is decoration; the dashboard still renders
			s.logger.Info("load banner", zap.Error(err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.fail(w, r, err)
		return
	}
	view := dashboardView{Body: render.Markdown(dash.Content)}
	if banner.Content != "" {
		view.Banner = render.Markdown(banner.Content)
	}
	s.page(w, r, http.StatusOK, "dashboard", "Dashboard", view)
}

func (s *Server) customPage(w http.ResponseWriter, r *http.Request) {
	b := sessionFrom(r.Context())
	p, err := b.data.Page(r.Context(), routes.Param(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	title := p.Display
	if title == "" {
		title = p.Name
	}
	s.page(w, r, http.StatusOK, "page", title, pageContent(p))
}

func pageContent(p schema.Page) template.HTML {
	switch p.Type {
	case schema.ContentMarkdown:
		return render.Markdown(p.Content)
	case schema.ContentHTML:
		return render.HTML(p.Content)
	default:
		return template.HTML("<pre>" + template.HTMLEscapeString(p.Content) + "</pre>")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
