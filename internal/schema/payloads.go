package schema

import "encoding/json"

// Navigation is the sidebar tree plus application identity.
type Navigation struct {
	Name       string     `json:"name"`
	IconSrc    string     `json:"icon_src"`
	Version    string     `json:"version"`
	Navigation []NavGroup `json:"navigation"`
}

type NavGroup struct {
	Name  string    `json:"name"`
	Icon  string    `json:"icon"`
	Links []NavLink `json:"links"`
}

// Navigation link types.
const (
	LinkResource = "resource"
	LinkPage     = "page"
)

type NavLink struct {
	Name    string `json:"name"`
	Display string `json:"display"`
	Type    string `json:"type"`
}

// Label returns Display, falling back to Name.
func (l NavLink) Label() string {
	if l.Display != "" {
		return l.Display
	}
	return l.Name
}

type AppliedFilter struct {
	Ref     string `json:"ref"`
	Op      string `json:"op"`
	Val     Text   `json:"val"`
	Display string `json:"display"`
}

type AvailableFilter struct {
	Ref     string `json:"ref"`
	Display string `json:"display"`
}

type ListMeta struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	HasCreate   bool   `json:"has_create"`
}

type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
}

// Pages returns the number of pages, at least 1.
func (p Pagination) Pages() int {
	if p.PerPage <= 0 || p.Total <= 0 {
		return 1
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

// ListResponse is one page of a resource list.
type ListResponse struct {
	AppliedFilters   []AppliedFilter   `json:"applied_filters"`
	AvailableFilters []AvailableFilter `json:"available_filters"`
	Data             []Row             `json:"data"`
	Header           []TableHeader     `json:"header"`
	Meta             ListMeta          `json:"meta"`
	Pagination       Pagination        `json:"pagination"`
}

// ActionParam is one input of a detail action.
type ActionParam struct {
	Attr        string  `json:"attr"`
	Title       string  `json:"title"`
	Type        string  `json:"type"` // int, bool or str
	Required    bool    `json:"required"`
	Description *string `json:"description"`
}

type Action struct {
	Title       string        `json:"title"`
	Ref         string        `json:"ref"`
	Description string        `json:"description"`
	Parameters  []ActionParam `json:"parameters"`
}

// SubTable is a related list embedded in a detail view.
type SubTable struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Resource    string     `json:"resource"`
	Filter      LinkFilter `json:"filter"`
}

// GraphRef names a graph of a detail view; its data is fetched separately.
type GraphRef struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Reference   string `json:"reference"`
}

type DetailResponse struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Fields      []Field    `json:"fields"`
	Actions     []Action   `json:"actions"`
	Tables      []SubTable `json:"tables"`
	Graphs      []GraphRef `json:"graphs"`
}

// Chart types.
const (
	ChartLine = "line"
	ChartBar  = "bar"
	ChartArea = "area"
)

type Series struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Label string `json:"label,omitempty"`
}

type GraphConfig struct {
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	Data        []map[string]any `json:"data"`
	DataKey     string           `json:"dataKey"`
	Series      []Series         `json:"series"`
}

type GraphResponse struct {
	Type   string      `json:"type"`
	Config GraphConfig `json:"config"`
}

// Page content types.
const (
	ContentHTML     = "html"
	ContentMarkdown = "markdown"
)

// Page is a custom page.
type Page struct {
	Display string `json:"display"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

type Dashboard struct {
	Content string `json:"content"`
}

type Banner struct {
	Content string `json:"content"`
}

// InputForm is a standalone form; public forms need no session.
type InputForm struct {
	Title       string      `json:"title"`
	Public      bool        `json:"public"`
	Description string      `json:"description"`
	Schema      *JSONSchema `json:"schema"`
}

// CreateSchema describes the create form of a resource.
type CreateSchema struct {
	Schema *JSONSchema `json:"schema"`
}

type User struct {
	UserID    string `json:"user_id"`
	Display   string `json:"display"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarSrc string `json:"avatar_src,omitempty"`
}

// Label returns the best available display name.
func (u User) Label() string {
	for _, s := range []string{u.Display, u.Name, u.Email, u.UserID} {
		if s != "" {
			return s
		}
	}
	return ""
}

type UserInfo struct {
	User *User `json:"user"`
}

// Message is the generic {message} body.
type Message struct {
	Message string `json:"message"`
}

// Raw keeps a value undecoded, e.g. a form submission body.
type Raw = json.RawMessage
