package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Record is a single entity as returned by the API
type Record map[string]any

// ID returns the record's id field as a string
func (r Record) ID() string {
	if v, ok := r["id"]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// Resource describes one managed entity collection
type Resource struct {
	Name string
	Path string
	// Columns are shown by table output, in order
	Columns []string
	// Searchable fields are matched by free-text search
	Searchable []string
	// Rules are validator tags applied to create/update payloads
	Rules map[string]string
}

var resources = map[string]Resource{
	"users": {
		Name:       "users",
		Path:       "/api/users",
		Columns:    []string{"id", "name", "email", "role"},
		Searchable: []string{"name", "email"},
		Rules: map[string]string{
			"name":  "required",
			"email": "required,email",
			"role":  "required,oneof=admin provider seeker",
		},
	},
	"providers": {
		Name:       "providers",
		Path:       "/api/providers",
		Columns:    []string{"id", "name", "email", "specialty", "status"},
		Searchable: []string{"name", "email", "specialty"},
		Rules: map[string]string{
			"name":   "required",
			"email":  "required,email",
			"status": "omitempty,oneof=pending approved suspended",
		},
	},
	"seekers": {
		Name:       "seekers",
		Path:       "/api/seekers",
		Columns:    []string{"id", "name", "email", "status"},
		Searchable: []string{"name", "email"},
		Rules: map[string]string{
			"name":   "required",
			"email":  "required,email",
			"status": "omitempty,oneof=active suspended",
		},
	},
	"consultations": {
		Name:       "consultations",
		Path:       "/api/consultations",
		Columns:    []string{"id", "provider_id", "seeker_id", "status", "scheduled_at"},
		Searchable: []string{"topic", "provider_id", "seeker_id"},
		Rules: map[string]string{
			"provider_id": "required",
			"seeker_id":   "required",
			"status":      "omitempty,oneof=pending scheduled completed cancelled",
		},
	},
	"payments": {
		Name:       "payments",
		Path:       "/api/payments",
		Columns:    []string{"id", "consultation_id", "amount", "currency", "status"},
		Searchable: []string{"consultation_id", "reference"},
		Rules: map[string]string{
			"consultation_id": "required",
			"amount":          "required,gt=0",
			"currency":        "omitempty,len=3",
			"status":          "omitempty,oneof=pending paid refunded failed",
		},
	},
	"categories": {
		Name:       "categories",
		Path:       "/api/categories",
		Columns:    []string{"id", "name", "description"},
		Searchable: []string{"name", "description"},
		Rules: map[string]string{
			"name": "required",
		},
	},
	"content": {
		Name:       "content",
		Path:       "/api/content",
		Columns:    []string{"id", "slug", "title"},
		Searchable: []string{"slug", "title", "body"},
		Rules: map[string]string{
			"slug":  "required",
			"title": "required",
		},
	},
}

var aliases = map[string]string{
	"user":         "users",
	"provider":     "providers",
	"seeker":       "seekers",
	"consultation": "consultations",
	"payment":      "payments",
	"category":     "categories",
	"pages":        "content",
	"page":         "content",
}

// LookupResource resolves a resource by name or singular alias
func LookupResource(name string) (Resource, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	r, ok := resources[name]
	if !ok {
		return Resource{}, fmt.Errorf("unknown resource %q (available: %s)", name, strings.Join(ResourceNames(), ", "))
	}
	return r, nil
}

// ResourceNames lists the managed resources in alphabetical order
func ResourceNames() []string {
	names := make([]string, 0, len(resources))
	for name := range resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var validate = validator.New()

// ValidatePayload checks rec against the resource rules. When partial is
// set only the fields present in rec are checked, as for an update.
func (r Resource) ValidatePayload(rec Record, partial bool) error {
	rules := make(map[string]any, len(r.Rules))
	for field, rule := range r.Rules {
		if partial {
			if _, ok := rec[field]; !ok {
				continue
			}
		}
		rules[field] = rule
	}

	errs := validate.ValidateMap(rec, rules)
	if len(errs) == 0 {
		return nil
	}

	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, field := range fields {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", field, r.Rules[field]))
	}
	return fmt.Errorf("invalid %s payload: %s", r.Name, strings.Join(msgs, "; "))
}

func (r Resource) itemPath(id string) string {
	return fmt.Sprintf("%s/%s", r.Path, url.PathEscape(id))
}

// List returns every record of the resource
func (c *Client) List(ctx context.Context, r Resource) ([]Record, error) {
	var records []Record
	if err := c.do(ctx, http.MethodGet, r.Path, nil, &records, requestOptions{}); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.Name, err)
	}
	return records, nil
}

// Get returns a single record by id
func (c *Client) Get(ctx context.Context, r Resource, id string) (Record, error) {
	var rec Record
	if err := c.do(ctx, http.MethodGet, r.itemPath(id), nil, &rec, requestOptions{}); err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", r.Name, id, err)
	}
	return rec, nil
}

// Create validates and creates a record, returning the stored version
func (c *Client) Create(ctx context.Context, r Resource, rec Record) (Record, error) {
	if err := r.ValidatePayload(rec, false); err != nil {
		return nil, err
	}
	var created Record
	if err := c.do(ctx, http.MethodPost, r.Path, rec, &created, requestOptions{}); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", r.Name, err)
	}
	return created, nil
}

// Update validates the present fields and updates a record
func (c *Client) Update(ctx context.Context, r Resource, id string, rec Record) (Record, error) {
	if err := r.ValidatePayload(rec, true); err != nil {
		return nil, err
	}
	var updated Record
	if err := c.do(ctx, http.MethodPut, r.itemPath(id), rec, &updated, requestOptions{}); err != nil {
		return nil, fmt.Errorf("failed to update %s %s: %w", r.Name, id, err)
	}
	return updated, nil
}

// Delete removes a record by id
func (c *Client) Delete(ctx context.Context, r Resource, id string) error {
	if err := c.do(ctx, http.MethodDelete, r.itemPath(id), nil, nil, requestOptions{}); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", r.Name, id, err)
	}
	return nil
}
