package datastore

import (
	r "gopkg.in/rethinkdb/rethinkdb-go.v6"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/ipset"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
)

// DiscoverySearchQuery can be used to search discoveries.
type DiscoverySearchQuery struct {
	ID         *string `json:"id" optional:"true"`
	SubnetID   *string `json:"subnetid" optional:"true"`
	MacAddress *string `json:"macaddress" optional:"true"`
}

// generateTerm generates the discovery search query term.
func (p *DiscoverySearchQuery) generateTerm(rs *RethinkStore) *r.Term {
	q := *rs.discoveryTable()

	if p.ID != nil {
		q = q.Filter(func(row r.Term) r.Term {
			return row.Field("id").Eq(*p.ID)
		})
	}

	if p.SubnetID != nil {
		q = q.Filter(func(row r.Term) r.Term {
			return row.Field("subnetid").Eq(*p.SubnetID)
		})
	}

	if p.MacAddress != nil {
		q = q.Filter(func(row r.Term) r.Term {
			return row.Field("macaddress").Eq(*p.MacAddress)
		})
	}

	return &q
}

// FindDiscoveryByID returns a discovery for a given id.
func (rs *RethinkStore) FindDiscoveryByID(id string) (*metal.Discovery, error) {
	var d metal.Discovery
	err := rs.findEntityByID(rs.discoveryTable(), &d, id)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// SearchDiscoveries returns the discoveries that match the given properties.
func (rs *RethinkStore) SearchDiscoveries(q *DiscoverySearchQuery, ds *metal.Discoveries) error {
	return rs.searchEntities(q.generateTerm(rs), ds)
}

// ListDiscoveries returns all discoveries.
func (rs *RethinkStore) ListDiscoveries() (metal.Discoveries, error) {
	ds := make(metal.Discoveries, 0)
	err := rs.listEntities(rs.discoveryTable(), &ds)
	return ds, err
}

// CreateDiscovery creates a new discovery in the database.
func (rs *RethinkStore) CreateDiscovery(d *metal.Discovery) error {
	return rs.createEntity(rs.discoveryTable(), d)
}

// DeleteDiscovery deletes a discovery.
func (rs *RethinkStore) DeleteDiscovery(d *metal.Discovery) error {
	return rs.deleteEntity(rs.discoveryTable(), d)
}

// Neighbours returns the subnet's passively observed neighbour addresses.
func (rs *RethinkStore) Neighbours(subnet *metal.Subnet) ([]ipset.Range, error) {
	q := DiscoverySearchQuery{
		SubnetID: &subnet.ID,
	}

	var ds metal.Discoveries
	err := rs.SearchDiscoveries(&q, &ds)
	if err != nil {
		return nil, err
	}

	ranges := []ipset.Range{}
	for i := range ds {
		rng, err := singleAddressRange(ds[i].IPAddress, ipset.PurposeNeighbour)
		if err != nil {
			return nil, err
		}
		if rng != nil {
			ranges = append(ranges, *rng)
		}
	}
	return ranges, nil
}
