package datastore

import (
	r "gopkg.in/rethinkdb/rethinkdb-go.v6"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/ipset"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
)

// IPSearchQuery can be used to search ips.
type IPSearchQuery struct {
	IPAddress        *string            `json:"ipaddress" optional:"true"`
	SubnetID         *string            `json:"subnetid" optional:"true"`
	MachineID        *string            `json:"machineid" optional:"true"`
	AllocType        *metal.IPAllocType `json:"alloctype" optional:"true"`
	ExcludeAllocType *metal.IPAllocType `json:"excludealloctype" optional:"true"`
}

// generateTerm generates the ip search query term.
func (p *IPSearchQuery) generateTerm(rs *RethinkStore) *r.Term {
	q := *rs.ipTable()

	if p.IPAddress != nil {
		q = q.Filter(func(row r.Term) r.Term {
			return row.Field("id").Eq(*p.IPAddress)
		})
	}

	if p.SubnetID != nil {
		q = q.Filter(func(row r.Term) r.Term {
			return row.Field("subnetid").Eq(*p.SubnetID)
		})
	}

	if p.MachineID != nil {
		q = q.Filter(func(row r.Term) r.Term {
			return row.Field("machineid").Eq(*p.MachineID)
		})
	}

	if p.AllocType != nil {
		q = q.Filter(func(row r.Term) r.Term {
			return row.Field("alloctype").Eq(string(*p.AllocType))
		})
	}

	if p.ExcludeAllocType != nil {
		q = q.Filter(func(row r.Term) r.Term {
			return row.Field("alloctype").Ne(string(*p.ExcludeAllocType))
		})
	}

	return &q
}

// FindIPByID returns an ip for a given id.
func (rs *RethinkStore) FindIPByID(id string) (*metal.IP, error) {
	var ip metal.IP
	err := rs.findEntityByID(rs.ipTable(), &ip, id)
	if err != nil {
		return nil, err
	}
	return &ip, nil
}

// SearchIPs returns the ips that match the given properties.
func (rs *RethinkStore) SearchIPs(q *IPSearchQuery, ips *metal.IPs) error {
	return rs.searchEntities(q.generateTerm(rs), ips)
}

// ListIPs returns all ips.
func (rs *RethinkStore) ListIPs() (metal.IPs, error) {
	ips := make(metal.IPs, 0)
	err := rs.listEntities(rs.ipTable(), &ips)
	return ips, err
}

// CreateIP creates a new ip in the database.
func (rs *RethinkStore) CreateIP(ip *metal.IP) error {
	return rs.createEntity(rs.ipTable(), ip)
}

// DeleteIP deletes an ip.
func (rs *RethinkStore) DeleteIP(ip *metal.IP) error {
	return rs.deleteEntity(rs.ipTable(), ip)
}

// UpdateIP updates an ip.
func (rs *RethinkStore) UpdateIP(oldIP *metal.IP, newIP *metal.IP) error {
	return rs.updateEntity(rs.ipTable(), newIP, oldIP)
}

// AllocatedIPs returns the subnet's allocated addresses. Discovered addresses
// are only observations, callers decide whether they count as occupied.
func (rs *RethinkStore) AllocatedIPs(subnet *metal.Subnet, includeDiscovered bool) ([]ipset.Range, error) {
	q := IPSearchQuery{
		SubnetID: &subnet.ID,
	}
	if !includeDiscovered {
		discovered := metal.IPAllocDiscovered
		q.ExcludeAllocType = &discovered
	}

	var ips metal.IPs
	err := rs.SearchIPs(&q, &ips)
	if err != nil {
		return nil, err
	}

	ranges := []ipset.Range{}
	for i := range ips {
		rng, err := singleAddressRange(ips[i].IPAddress, ipset.PurposeAssignedIP)
		if err != nil {
			return nil, err
		}
		if rng != nil {
			ranges = append(ranges, *rng)
		}
	}
	return ranges, nil
}
