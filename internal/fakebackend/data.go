package fakebackend

import (
	"fmt"
	"strconv"
)

// Column is one list/detail column. Cell builds the JSON cell of a row;
// without it the raw row value is used.
type Column struct {
	Ref         string
	Display     string
	Sortable    bool
	Description string
	Cell        func(row map[string]any) any
}

// Resource is a fake table.
type Resource struct {
	Name        string
	Title       string
	Description string
	Columns     []Column
	Rows        []map[string]any
	Actions     []map[string]any
	Tables      []map[string]any
	Graphs      []map[string]any
	Create      map[string]any // JSON schema; nil disables create
	nextID      int
}

func (r *Resource) find(id string) (map[string]any, bool) {
	for _, row := range r.Rows {
		if fmt.Sprint(row["id"]) == id {
			return row, true
		}
	}
	return nil, false
}

// Page is a custom page.
type Page struct {
	Display string
	Content string
	Type    string
}

// Form is an input form.
type Form struct {
	Title       string
	Public      bool
	Description string
	Schema      map[string]any
}

// AddResource registers or replaces a resource.
func (b *Backend) AddResource(r *Resource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.nextID == 0 {
		r.nextID = len(r.Rows) + 1
	}
	b.resources[r.Name] = r
}

func seed(b *Backend) {
	b.resources = map[string]*Resource{}
	b.dashboard = "# Welcome\n\nThis console manages **users** and **orders**."
	b.banner = "Demo data, changes are kept in memory only."
	b.pages = map[string]Page{
		"about":  {Display: "About", Type: "markdown", Content: "## About\n\n| key | value |\n|---|---|\n| version | 1 |"},
		"status": {Display: "Status", Type: "html", Content: `<h2>Status</h2><p>All systems nominal.</p><script>alert(1)</script>`},
	}
	b.forms = map[string]Form{
		"feedback": {
			Title:       "Feedback",
			Public:      true,
			Description: "Tell us what you think.",
			Schema: map[string]any{
				"type":     "object",
				"required": []any{"message"},
				"properties": map[string]any{
					"email":   map[string]any{"type": "string", "format": "email", "title": "Email"},
					"message": map[string]any{"type": "string", "title": "Message"},
					"rating":  map[string]any{"type": "integer", "minimum": 1, "maximum": 5, "title": "Rating"},
				},
			},
		},
		"invite": {
			Title: "Invite user",
			Schema: map[string]any{
				"type":       "object",
				"required":   []any{"email"},
				"properties": map[string]any{"email": map[string]any{"type": "string", "title": "Email"}},
			},
		},
	}

	users := &Resource{
		Name:        "user",
		Title:       "Users",
		Description: "Registered accounts",
		Columns: []Column{
			{Ref: "id", Display: "ID", Sortable: true},
			{Ref: "name", Display: "Name", Sortable: true},
			{Ref: "status", Display: "Status", Sortable: true, Description: "Account state"},
			{Ref: "token", Display: "Token"},
			{Ref: "bio", Display: "[[markdown]]Bio"},
			{Ref: "orders", Display: "Orders", Cell: func(row map[string]any) any {
				return map[string]any{
					"type": "link", "kind": "table", "resource": "order",
					"value":  "orders",
					"filter": map[string]any{"col": "user_id", "op": "eq", "val": row["id"]},
				}
			}},
			{Ref: "load", Display: "Load", Cell: func(row map[string]any) any {
				return map[string]any{"type": "live", "topic": "load-" + fmt.Sprint(row["id"]), "initial": "0", "history": true}
			}},
		},
		Rows: []map[string]any{
			{"id": 1, "name": "Ada", "status": "active", "token": "3f2504e0-4f89-11d3-9a0c-0305e82c3301", "bio": "Likes *engines*."},
			{"id": 2, "name": "Grace", "status": "active", "token": "9b2d4a1e-0c2f-4b5a-8e6f-1a2b3c4d5e6f", "bio": "Wrote the first compiler and a very long biography."},
			{"id": 3, "name": "Linus", "status": "inactive", "token": "", "bio": ""},
		},
		Actions: []map[string]any{{
			"title": "Deactivate", "ref": "deactivate", "description": "Disable the account",
			"parameters": []any{
				map[string]any{"attr": "reason", "title": "Reason", "type": "str", "required": true, "description": nil},
				map[string]any{"attr": "notify", "title": "Notify", "type": "bool", "required": false, "description": "Send an email"},
			},
		}, {
			"title": "Rename", "ref": "rename", "description": "",
			"parameters": []any{map[string]any{"attr": "name", "title": "Name", "type": "str", "required": true}},
		}},
		Tables: []map[string]any{{
			"title": "Orders", "description": "Orders placed by the user", "resource": "order",
			"filter": map[string]any{"col": "user_id", "op": "eq", "val": "{id}"},
		}},
		Graphs: []map[string]any{{"title": "Logins", "description": "Logins per day", "reference": "logins"}},
		Create: map[string]any{
			"title":    "User",
			"type":     "object",
			"required": []any{"name"},
			"properties": map[string]any{
				"name":   map[string]any{"type": "string", "title": "Name"},
				"status": map[string]any{"type": "string", "enum": []any{"active", "inactive"}, "default": "active"},
			},
		},
	}
	orders := &Resource{
		Name:  "order",
		Title: "Orders",
		Columns: []Column{
			{Ref: "id", Display: "ID", Sortable: true},
			{Ref: "total", Display: "Total", Sortable: true},
			{Ref: "user_id", Display: "User", Cell: func(row map[string]any) any {
				return map[string]any{"type": "link", "kind": "detail", "resource": "user", "id": row["user_id"], "value": "user " + fmt.Sprint(row["user_id"])}
			}},
			{Ref: "payload", Display: "[[json]]Payload"},
		},
	}
	for i := 1; i <= 25; i++ {
		orders.Rows = append(orders.Rows, map[string]any{
			"id": i, "total": i * 10, "user_id": 1 + i%3,
			"payload": `{"items":` + strconv.Itoa(i) + `}`,
		})
	}
	b.AddResource(users)
	b.AddResource(orders)
}
