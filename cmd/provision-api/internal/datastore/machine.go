package datastore

import (
	r "gopkg.in/rethinkdb/rethinkdb-go.v6"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
)

// MachineSearchQuery can be used to search machines.
type MachineSearchQuery struct {
	ID       *string `json:"id" optional:"true"`
	Name     *string `json:"name" optional:"true"`
	Arch     *string `json:"arch" optional:"true"`
	BootDisk *string `json:"bootdisk" optional:"true"`
}

// generateTerm generates the machine search query term.
func (p *MachineSearchQuery) generateTerm(rs *RethinkStore) *r.Term {
	q := *rs.machineTable()

	if p.ID != nil {
		q = q.Filter(func(row r.Term) r.Term {
			return row.Field("id").Eq(*p.ID)
		})
	}

	if p.Name != nil {
		q = q.Filter(func(row r.Term) r.Term {
			return row.Field("name").Eq(*p.Name)
		})
	}

	if p.Arch != nil {
		q = q.Filter(func(row r.Term) r.Term {
			return row.Field("arch").Eq(*p.Arch)
		})
	}

	if p.BootDisk != nil {
		q = q.Filter(func(row r.Term) r.Term {
			return row.Field("bootdiskid").Eq(*p.BootDisk)
		})
	}

	return &q
}

// FindMachineByID returns a machine for a given id.
func (rs *RethinkStore) FindMachineByID(id string) (*metal.Machine, error) {
	var m metal.Machine
	err := rs.findEntityByID(rs.machineTable(), &m, id)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SearchMachines returns the machines that match the given properties.
func (rs *RethinkStore) SearchMachines(q *MachineSearchQuery, ms *metal.Machines) error {
	return rs.searchEntities(q.generateTerm(rs), ms)
}

// ListMachines returns all machines.
func (rs *RethinkStore) ListMachines() (metal.Machines, error) {
	ms := make(metal.Machines, 0)
	err := rs.listEntities(rs.machineTable(), &ms)
	return ms, err
}

// CreateMachine creates a new machine in the database.
func (rs *RethinkStore) CreateMachine(m *metal.Machine) error {
	return rs.createEntity(rs.machineTable(), m)
}

// DeleteMachine deletes a machine.
func (rs *RethinkStore) DeleteMachine(m *metal.Machine) error {
	return rs.deleteEntity(rs.machineTable(), m)
}

// UpdateMachine updates a machine.
func (rs *RethinkStore) UpdateMachine(oldMachine *metal.Machine, newMachine *metal.Machine) error {
	return rs.updateEntity(rs.machineTable(), newMachine, oldMachine)
}
