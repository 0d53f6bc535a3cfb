package schema

import "encoding/json"

// Filter is a list filter carried by redirects.
type Filter struct {
	Ref     string `json:"ref"`
	Op      string `json:"op"`
	Val     Text   `json:"val"`
	Display string `json:"display,omitempty"`
}

// Redirect is where the console navigates after an action. It is one of
// RedirectDetail, RedirectList or RedirectPage.
type Redirect interface {
	isRedirect()
}

type RedirectDetail struct {
	Resource string
	ID       string
}

type RedirectList struct {
	Resource string
	Filters  []Filter
}

type RedirectPage struct {
	Name string
}

func (RedirectDetail) isRedirect() {}
func (RedirectList) isRedirect()   {}
func (RedirectPage) isRedirect()   {}

// ActionResponse is returned by actions, creates and form submissions.
type ActionResponse struct {
	Message  string
	Failed   bool
	Refresh  bool
	Redirect Redirect
}

type redirectEnvelope struct {
	Type     string   `json:"type"`
	Resource string   `json:"resource,omitempty"`
	ID       Text     `json:"id,omitempty"`
	Filters  []Filter `json:"filters,omitempty"`
	Name     string   `json:"name,omitempty"`
	Page     string   `json:"page,omitempty"`
}

type actionEnvelope struct {
	Message  string            `json:"message"`
	Failed   bool              `json:"failed"`
	Refresh  bool              `json:"refresh"`
	Redirect *redirectEnvelope `json:"redirect"`
}

func (r *ActionResponse) UnmarshalJSON(data []byte) error {
	var env actionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	*r = ActionResponse{Message: env.Message, Failed: env.Failed, Refresh: env.Refresh}
	if env.Redirect != nil {
		r.Redirect = env.Redirect.decode()
	}
	return nil
}

// decode maps the backend's redirect variants. "table" and "list" are the
// same target, as are "customPage" and "page".
func (e *redirectEnvelope) decode() Redirect {
	switch e.Type {
	case "detail":
		if e.Resource == "" || e.ID == "" {
			return nil
		}
		return RedirectDetail{Resource: e.Resource, ID: string(e.ID)}
	case "list", "table":
		if e.Resource == "" {
			return nil
		}
		return RedirectList{Resource: e.Resource, Filters: e.Filters}
	case "customPage", "page":
		name := e.Name
		if name == "" {
			name = e.Page
		}
		if name == "" {
			return nil
		}
		return RedirectPage{Name: name}
	}
	return nil
}

func (r ActionResponse) MarshalJSON() ([]byte, error) {
	env := actionEnvelope{Message: r.Message, Failed: r.Failed, Refresh: r.Refresh}
	switch v := r.Redirect.(type) {
	case RedirectDetail:
		env.Redirect = &redirectEnvelope{Type: "detail", Resource: v.Resource, ID: Text(v.ID)}
	case RedirectList:
		env.Redirect = &redirectEnvelope{Type: "list", Resource: v.Resource, Filters: v.Filters}
	case RedirectPage:
		env.Redirect = &redirectEnvelope{Type: "customPage", Name: v.Name}
	}
	type wire struct {
		Message  string            `json:"message"`
		Failed   bool              `json:"failed,omitempty"`
		Refresh  bool              `json:"refresh,omitempty"`
		Redirect *redirectEnvelope `json:"redirect,omitempty"`
	}
	return json.Marshal(wire(env))
}
