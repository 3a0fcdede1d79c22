// Package model defines the persisted entity types shared across the
// repository, rule, and budget layers.
package model

import "time"

// Envelope carries the bookkeeping fields every persisted entity shares:
// identity, audit stamps, optimistic-lock version, and soft-delete markers.
// It is embedded by each entity type and maintained by the repository layer;
// callers must not mutate it directly.
type Envelope struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"createdAt"`
	CreatedBy string     `json:"createdBy,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
	UpdatedBy string     `json:"updatedBy,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	DeletedBy string     `json:"deletedBy,omitempty"`
	Version   int64      `json:"version"`
	IsDeleted bool       `json:"isDeleted,omitempty"`
}

// Meta returns the envelope itself so embedding types satisfy the
// repository's entity constraint.
func (e *Envelope) Meta() *Envelope { return e }
