package datastore

import (
	r "gopkg.in/rethinkdb/rethinkdb-go.v6"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/ipset"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
)

// SubnetSearchQuery can be used to search subnets.
type SubnetSearchQuery struct {
	ID      *string `json:"id" optional:"true"`
	CIDR    *string `json:"cidr" optional:"true"`
	VLAN    *uint16 `json:"vlan" optional:"true"`
	Managed *bool   `json:"managed" optional:"true"`
}

// generateTerm generates the subnet search query term.
func (p *SubnetSearchQuery) generateTerm(rs *RethinkStore) *r.Term {
	q := *rs.subnetTable()

	if p.ID != nil {
		q = q.Filter(func(row r.Term) r.Term {
			return row.Field("id").Eq(*p.ID)
		})
	}

	if p.CIDR != nil {
		q = q.Filter(func(row r.Term) r.Term {
			return row.Field("cidr").Eq(*p.CIDR)
		})
	}

	if p.VLAN != nil {
		q = q.Filter(func(row r.Term) r.Term {
			return row.Field("vlan").Eq(*p.VLAN)
		})
	}

	if p.Managed != nil {
		q = q.Filter(func(row r.Term) r.Term {
			return row.Field("managed").Eq(*p.Managed)
		})
	}

	return &q
}

// FindSubnetByID returns a subnet for a given id.
func (rs *RethinkStore) FindSubnetByID(id string) (*metal.Subnet, error) {
	var s metal.Subnet
	err := rs.findEntityByID(rs.subnetTable(), &s, id)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SearchSubnets returns the subnets that match the given properties.
func (rs *RethinkStore) SearchSubnets(q *SubnetSearchQuery, ss *metal.Subnets) error {
	return rs.searchEntities(q.generateTerm(rs), ss)
}

// ListSubnets returns all subnets.
func (rs *RethinkStore) ListSubnets() (metal.Subnets, error) {
	ss := make(metal.Subnets, 0)
	err := rs.listEntities(rs.subnetTable(), &ss)
	return ss, err
}

// CreateSubnet creates a new subnet in the database.
func (rs *RethinkStore) CreateSubnet(s *metal.Subnet) error {
	return rs.createEntity(rs.subnetTable(), s)
}

// DeleteSubnet deletes a subnet.
func (rs *RethinkStore) DeleteSubnet(s *metal.Subnet) error {
	return rs.deleteEntity(rs.subnetTable(), s)
}

// UpdateSubnet updates a subnet.
func (rs *RethinkStore) UpdateSubnet(oldSubnet *metal.Subnet, newSubnet *metal.Subnet) error {
	return rs.updateEntity(rs.subnetTable(), newSubnet, oldSubnet)
}

// SubnetIPs returns the subnet's own configured addresses, the gateway and the
// dns servers. Dns servers outside the subnet's cidr are reachable through the
// gateway and do not occupy an address here.
func (rs *RethinkStore) SubnetIPs(subnet *metal.Subnet) ([]ipset.Range, error) {
	ranges := []ipset.Range{}

	for _, dns := range subnet.DNSServers {
		if !subnet.ContainsIP(dns) {
			continue
		}
		rng, err := singleAddressRange(dns, ipset.PurposeDNSServer)
		if err != nil {
			return nil, err
		}
		if rng != nil {
			ranges = append(ranges, *rng)
		}
	}

	if subnet.GatewayIP != "" {
		rng, err := singleAddressRange(subnet.GatewayIP, ipset.PurposeGatewayIP)
		if err != nil {
			return nil, err
		}
		if rng != nil {
			ranges = append(ranges, *rng)
		}
	}

	return ranges, nil
}
