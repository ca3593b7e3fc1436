package metal

import "time"

// Base implements common fields for most basic entity types (not all).
type Base struct {
	ID          string    `json:"id" description:"a unique ID" unique:"true" rethinkdb:"id,omitempty"`
	Name        string    `json:"name" description:"the readable name" optional:"true" rethinkdb:"name"`
	Description string    `json:"description,omitempty" description:"a description for this entity" optional:"true" rethinkdb:"description"`
	Created     time.Time `json:"created" description:"the creation time of this entity" optional:"true" readOnly:"true" rethinkdb:"created"`
	Changed     time.Time `json:"changed" description:"the last changed timestamp" optional:"true" readOnly:"true" rethinkdb:"changed"`
}

// Entity is implemented by all structs that are stored in the database.
type Entity interface {
	GetID() string
	SetID(id string)
	GetChanged() time.Time
	SetChanged(changed time.Time)
	SetCreated(created time.Time)
}

func (b *Base) GetID() string {
	return b.ID
}

func (b *Base) SetID(id string) {
	b.ID = id
}

func (b *Base) GetChanged() time.Time {
	return b.Changed
}

func (b *Base) SetChanged(changed time.Time) {
	b.Changed = changed
}

func (b *Base) SetCreated(created time.Time) {
	b.Created = created
}
