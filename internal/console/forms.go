package console

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"

	"admintable.org/internal/dataclient"
	"admintable.org/internal/querystate"
	"admintable.org/internal/render"
	"admintable.org/internal/routes"
	"admintable.org/internal/schema"
)

type formView struct {
	Title       string
	Description string
	Action      string
	Error       string
	Form        template.HTML
	Submit      string
}

// interpretActionResponse turns the backend's answer to an action, create or
// form submission into a notification and the next location. fallback is
// used when the response asks for a refresh or names no target.
func interpretActionResponse(resp schema.ActionResponse, fallback string) (Flash, string) {
	flash := Flash{Title: "Success", Message: resp.Message}
	if resp.Failed {
		flash.Title = "Failed"
		flash.Failed = true
	}
	if resp.Refresh || resp.Redirect == nil {
		return flash, fallback
	}
	switch to := resp.Redirect.(type) {
	case schema.RedirectDetail:
		return flash, routes.ResourceDetail(to.Resource, to.ID)
	case schema.RedirectList:
		filters := make([]querystate.Filter, 0, len(to.Filters))
		for _, f := range to.Filters {
			filters = append(filters, querystate.Filter{Ref: f.Ref, Op: f.Op, Val: f.Val.String()})
		}
		return flash, routes.ResourceList(to.Resource, filters, nil)
	case schema.RedirectPage:
		return flash, routes.CustomPage(to.Name)
	}
	return flash, fallback
}

func (s *Server) createForm(w http.ResponseWriter, r *http.Request) {
	name := routes.Param(r, "name")
	b := sessionFrom(r.Context())
	cs, err := b.data.CreateSchema(r.Context(), name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view := createView(name, cs)
	view.Form = render.Form(cs.Schema, nil, nil)
	s.page(w, r, http.StatusOK, "form", view.Title, view)
}

func createView(name string, cs schema.CreateSchema) formView {
	view := formView{Title: "Create " + name, Action: routes.ResourceCreate(name), Submit: "Create"}
	if cs.Schema != nil {
		if cs.Schema.Title != "" {
			view.Title = cs.Schema.Title
		}
		view.Description = cs.Schema.Description
	}
	return view
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	name := routes.Param(r, "name")
	ctx := r.Context()
	b := sessionFrom(ctx)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	cs, err := b.data.CreateSchema(ctx, name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data, errs := render.ParseForm(cs.Schema, r.PostForm)
	if errs != nil {
		view := createView(name, cs)
		view.Form = render.Form(cs.Schema, r.PostForm, errs)
		s.page(w, r, http.StatusUnprocessableEntity, "form", view.Title, view)
		return
	}
	back := routes.ResourceCreate(name)
	resp, err := b.data.Create(ctx, name, data)
	if err != nil {
		s.submitFailed(w, r, err, back)
		return
	}
	flash, target := interpretActionResponse(resp, back)
	b.notify(ctx, flash)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// submitFailed reports a rejected submission on the page it came from.
func (s *Server) submitFailed(w http.ResponseWriter, r *http.Request, err error, back string) {
	if errors.Is(err, dataclient.ErrUnauthorized) {
		s.fail(w, r, err)
		return
	}
	sessionFrom(r.Context()).notify(r.Context(), failureFlash(err))
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// loadInputForm fetches a form and tells whether the browser may use it.
// Private forms need a session.
func (s *Server) loadInputForm(w http.ResponseWriter, r *http.Request) (schema.InputForm, bool) {
	name := routes.Param(r, "name")
	b := sessionFrom(r.Context())
	form, err := b.data.InputForm(r.Context(), name)
	if err != nil {
		s.fail(w, r, err)
		return form, false
	}
	if !form.Public && b.auth.AuthHeader() == "" {
		http.Redirect(w, r, routes.Login(r.URL.RequestURI()), http.StatusSeeOther)
		return form, false
	}
	return form, true
}

func inputFormView(name string, form schema.InputForm, values url.Values, errs render.FieldErrors) formView {
	view := formView{
		Title:       form.Title,
		Description: form.Description,
		Action:      routes.InputForm(name),
		Form:        render.Form(form.Schema, values, errs),
		Submit:      "Submit",
	}
	if view.Title == "" {
		view.Title = name
	}
	return view
}

// inputForm renders a standalone form. Query parameters prefill it.
func (s *Server) inputForm(w http.ResponseWriter, r *http.Request) {
	form, ok := s.loadInputForm(w, r)
	if !ok {
		return
	}
	view := inputFormView(routes.Param(r, "name"), form, r.URL.Query(), nil)
	s.page(w, r, http.StatusOK, "form", view.Title, view)
}

func (s *Server) submitInputForm(w http.ResponseWriter, r *http.Request) {
	name := routes.Param(r, "name")
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	form, ok := s.loadInputForm(w, r)
	if !ok {
		return
	}
	data, errs := render.ParseForm(form.Schema, r.PostForm)
	if errs != nil {
		view := inputFormView(name, form, r.PostForm, errs)
		s.page(w, r, http.StatusUnprocessableEntity, "form", view.Title, view)
		return
	}
	back := routes.InputForm(name)
	resp, err := sessionFrom(ctx).data.SubmitInputForm(ctx, name, data)
	if err != nil {
		s.submitFailed(w, r, err, back)
		return
	}
	flash, target := interpretActionResponse(resp, back)
	sessionFrom(ctx).notify(ctx, flash)
	http.Redirect(w, r, target, http.StatusSeeOther)
}
