package devserver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// Account is a platform user able to sign in
type Account struct {
	BaseModel
	Email        string `gorm:"not null;uniqueIndex"`
	Name         string `gorm:"not null"`
	Role         string `gorm:"not null;default:seeker"`
	PasswordHash string `gorm:"not null"`
}

// Document stores one record of a managed resource as a JSON object
type Document struct {
	BaseModel
	Resource string `gorm:"not null;index"`
	Data     string `gorm:"type:text;not null"`
}

// AutoMigrate creates or updates the dev backend tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Account{}, &Document{})
}

func (a *Account) record() map[string]any {
	return map[string]any{
		"id":         a.ID,
		"name":       a.Name,
		"email":      a.Email,
		"role":       a.Role,
		"created_at": a.CreatedAt,
	}
}

func (d *Document) fields() (map[string]any, error) {
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(d.Data), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", d.Resource, d.ID, err)
	}
	return fields, nil
}

func (d *Document) setFields(fields map[string]any) error {
	clean := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case "id", "created_at", "updated_at":
			continue
		}
		clean[k] = v
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", d.Resource, err)
	}
	d.Data = string(data)
	return nil
}

func (d *Document) record() (map[string]any, error) {
	fields, err := d.fields()
	if err != nil {
		return nil, err
	}
	fields["id"] = d.ID
	fields["created_at"] = d.CreatedAt
	fields["updated_at"] = d.UpdatedAt
	return fields, nil
}
