package datastore

import (
	r "gopkg.in/rethinkdb/rethinkdb-go.v6"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/ipset"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
)

// StaticRouteSearchQuery can be used to search static routes.
type StaticRouteSearchQuery struct {
	ID             *string `json:"id" optional:"true"`
	SourceSubnetID *string `json:"sourcesubnetid" optional:"true"`
}

// generateTerm generates the static route search query term.
func (p *StaticRouteSearchQuery) generateTerm(rs *RethinkStore) *r.Term {
	q := *rs.staticrouteTable()

	if p.ID != nil {
		q = q.Filter(func(row r.Term) r.Term {
			return row.Field("id").Eq(*p.ID)
		})
	}

	if p.SourceSubnetID != nil {
		q = q.Filter(func(row r.Term) r.Term {
			return row.Field("sourcesubnetid").Eq(*p.SourceSubnetID)
		})
	}

	return &q
}

// FindStaticRouteByID returns a static route for a given id.
func (rs *RethinkStore) FindStaticRouteByID(id string) (*metal.StaticRoute, error) {
	var sr metal.StaticRoute
	err := rs.findEntityByID(rs.staticrouteTable(), &sr, id)
	if err != nil {
		return nil, err
	}
	return &sr, nil
}

// SearchStaticRoutes returns the static routes that match the given properties.
func (rs *RethinkStore) SearchStaticRoutes(q *StaticRouteSearchQuery, srs *metal.StaticRoutes) error {
	return rs.searchEntities(q.generateTerm(rs), srs)
}

// ListStaticRoutes returns all static routes.
func (rs *RethinkStore) ListStaticRoutes() (metal.StaticRoutes, error) {
	srs := make(metal.StaticRoutes, 0)
	err := rs.listEntities(rs.staticrouteTable(), &srs)
	return srs, err
}

// CreateStaticRoute creates a new static route in the database.
func (rs *RethinkStore) CreateStaticRoute(sr *metal.StaticRoute) error {
	return rs.createEntity(rs.staticrouteTable(), sr)
}

// DeleteStaticRoute deletes a static route.
func (rs *RethinkStore) DeleteStaticRoute(sr *metal.StaticRoute) error {
	return rs.deleteEntity(rs.staticrouteTable(), sr)
}

// UpdateStaticRoute updates a static route.
func (rs *RethinkStore) UpdateStaticRoute(oldRoute *metal.StaticRoute, newRoute *metal.StaticRoute) error {
	return rs.updateEntity(rs.staticrouteTable(), newRoute, oldRoute)
}

// StaticRouteGateways returns the gateway addresses of the static routes that
// leave the given subnet. A gateway must sit inside the subnet's cidr to be
// usable, everything else is skipped.
func (rs *RethinkStore) StaticRouteGateways(subnet *metal.Subnet) ([]ipset.Range, error) {
	q := StaticRouteSearchQuery{
		SourceSubnetID: &subnet.ID,
	}

	var srs metal.StaticRoutes
	err := rs.SearchStaticRoutes(&q, &srs)
	if err != nil {
		return nil, err
	}

	ranges := []ipset.Range{}
	for i := range srs {
		if !subnet.ContainsIP(srs[i].GatewayIP) {
			continue
		}
		rng, err := singleAddressRange(srs[i].GatewayIP, ipset.PurposeGatewayIP)
		if err != nil {
			return nil, err
		}
		if rng != nil {
			ranges = append(ranges, *rng)
		}
	}
	return ranges, nil
}
