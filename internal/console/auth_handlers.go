package console

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"admintable.org/internal/auth"
	"admintable.org/internal/routes"
)

type loginView struct {
	Action   string
	Username string
	NeedOTP  bool
	Error    string
}

func loginTarget(r *http.Request) string {
	return routes.SafeRedirect(r.URL.Query().Get("from"), routes.Dashboard)
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	b := sessionFrom(r.Context())
	if b.auth.IsLoggedIn(r.Context()) {
		http.Redirect(w, r, loginTarget(r), http.StatusSeeOther)
		return
	}
	s.page(w, r, http.StatusOK, "login", "Login", loginView{Action: r.URL.RequestURI()})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	b := sessionFrom(ctx)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	user := r.PostForm.Get("username")
	view := loginView{Action: r.URL.RequestURI(), Username: user, NeedOTP: r.PostForm.Get("otp") != ""}

	_, err := b.auth.Login(ctx, user, r.PostForm.Get("password"), r.PostForm.Get("otp"))
	switch {
	case err == nil:
		s.sessions.keep(b)
		b.notify(ctx, Flash{Title: "Authentication Success", Message: "You have been successfully authenticated"})
		http.Redirect(w, r, loginTarget(r), http.StatusSeeOther)
	case errors.Is(err, auth.ErrMissingOTP):
		view.NeedOTP = true
		if r.PostForm.Get("otp") != "" {
			view.Error = "Invalid one-time password"
		}
		s.page(w, r, http.StatusUnauthorized, "login", "Login", view)
	case errors.Is(err, auth.ErrInvalidCredentials):
		view.Error = "Invalid username or password"
		s.page(w, r, http.StatusUnauthorized, "login", "Login", view)
	default:
		s.logger.Warn("login failed", zap.String("username", user), zap.Error(err))
		view.Error = "Login failed: " + err.Error()
		s.page(w, r, http.StatusBadGateway, "login", "Login", view)
	}
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	b := sessionFrom(r.Context())
	if err := b.auth.Logout(r.Context()); err != nil {
		s.logger.Warn("logout", zap.Error(err))
	}
	s.sessions.forget(b)
	http.Redirect(w, r, routes.LoginPath, http.StatusSeeOther)
}
