package model

import (
	"time"
)

// A User is an account record in the users collection.
//
// Password always holds a salted bcrypt hash. Plaintext never reaches a
// store, and the hash is never serialised to JSON.
type User struct {
	ID        string    `json:"id,omitempty"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SeedUser describes a fixture account before its password is hashed.
type SeedUser struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Active    bool
}

// IndexOrder is the sort direction of a single-field index.
type IndexOrder int

const (
	Ascending  IndexOrder = 1
	Descending IndexOrder = -1
)

// IndexSpec declares a single-field index over a collection.
type IndexSpec struct {
	Name   string
	Field  string
	Order  IndexOrder
	Unique bool
}

// IndexInfo is what an engine reports back about an existing index.
type IndexInfo struct {
	Name   string
	Fields []string
	Unique bool
}

// Matches returns true if the reported index covers exactly spec's field
// with the same uniqueness.
func (i IndexInfo) Matches(spec IndexSpec) bool {
	return len(i.Fields) == 1 && i.Fields[0] == spec.Field && i.Unique == spec.Unique
}
