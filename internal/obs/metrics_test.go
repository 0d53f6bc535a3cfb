package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                   "/",
		"/metrics":                           "/metrics",
		"/resource/users/list":               "/resource/:name/list",
		"/resource/users/list?search=%7B%7D": "/resource/:name/list",
		"/resource/users/create":             "/resource/:name/create",
		"/resource/users/detail/42":          "/resource/:name/detail/:id",
		"/resource/users/detail/42/action/disable": "/resource/:name/detail/:id/action/:ref",
		"/resource/users/extra":                    "/resource/users/extra",
		"/page/about":                              "/page/:name",
		"/forms/contact":                           "/forms/:name",
		"/live":                                    "/live",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
