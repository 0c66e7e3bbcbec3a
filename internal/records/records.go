// Package records defines the source entities owned by the business
// application and the envelope format used to feed them to the indexer.
package records

import (
	"time"

	"github.com/dshills/recordindex/pkg/types"
)

// Entity is a source record that can be normalized into a document
type Entity interface {
	RecordType() types.RecordType
	Key() string
	Tenant() string
}

// Ref identifies a source record without its body, e.g. after deletion
type Ref struct {
	Type     types.RecordType `json:"type"`
	Key      string           `json:"key"`
	TenantID string           `json:"tenant_id,omitempty"`
}

// DocumentID returns the deterministic document ID for the reference
func (r Ref) DocumentID() string {
	return types.NewDocumentID(r.Type, r.Key)
}

// RefOf builds a Ref for an entity
func RefOf(e Entity) Ref {
	return Ref{Type: e.RecordType(), Key: e.Key(), TenantID: e.Tenant()}
}

// Company is a customer or prospect organization
type Company struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Website  string `json:"website,omitempty"`
	Industry string `json:"industry,omitempty"`
	Size     string `json:"size,omitempty"`
	Address  string `json:"address,omitempty"`
	Notes    string `json:"notes,omitempty"`
	Tags     string `json:"tags,omitempty"`
}

func (c *Company) RecordType() types.RecordType { return types.RecordCompany }
func (c *Company) Key() string                  { return c.ID }
func (c *Company) Tenant() string               { return c.TenantID }

// Contact is a person attached to a company
type Contact struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Position    string `json:"position,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

func (c *Contact) RecordType() types.RecordType { return types.RecordContact }
func (c *Contact) Key() string                  { return c.ID }
func (c *Contact) Tenant() string               { return c.TenantID }

// Contract is an agreement with a company. ExtractedText holds the text
// pulled out of an uploaded contract file and may be very long.
type Contract struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	Title         string     `json:"title"`
	CompanyName   string     `json:"company_name,omitempty"`
	Status        string     `json:"status,omitempty"`
	Amount        *float64   `json:"amount,omitempty"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	ExtractedText *string    `json:"extracted_text,omitempty"`
}

func (c *Contract) RecordType() types.RecordType { return types.RecordContract }
func (c *Contract) Key() string                  { return c.ID }
func (c *Contract) Tenant() string               { return c.TenantID }

// Meeting is a dated meeting with a company. Notes are Editor.js JSON.
type Meeting struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	Title         string     `json:"title"`
	Date          *time.Time `json:"date,omitempty"`
	Type          string     `json:"type,omitempty"`
	CompanyName   string     `json:"company_name,omitempty"`
	ContractTitle string     `json:"contract_title,omitempty"`
	Notes         string     `json:"notes,omitempty"`
}

func (m *Meeting) RecordType() types.RecordType { return types.RecordMeeting }
func (m *Meeting) Key() string                  { return m.ID }
func (m *Meeting) Tenant() string               { return m.TenantID }

// Task is a unit of work, optionally assigned to a user
type Task struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	Title       string     `json:"title"`
	Status      string     `json:"status,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	Assignee    string     `json:"assignee,omitempty"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

func (t *Task) RecordType() types.RecordType { return types.RecordTask }
func (t *Task) Key() string                  { return t.ID }
func (t *Task) Tenant() string               { return t.TenantID }

// Page is a free-form document. Content is Editor.js JSON.
type Page struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Title    string `json:"title"`
	PageType string `json:"page_type,omitempty"`
	Content  string `json:"content,omitempty"`
}

func (p *Page) RecordType() types.RecordType { return types.RecordPage }
func (p *Page) Key() string                  { return p.ID }
func (p *Page) Tenant() string               { return p.TenantID }
