package datastore

import (
	r "gopkg.in/rethinkdb/rethinkdb-go.v6"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/ipset"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
)

// IPRangeSearchQuery can be used to search ip ranges.
type IPRangeSearchQuery struct {
	ID        *string            `json:"id" optional:"true"`
	SubnetID  *string            `json:"subnetid" optional:"true"`
	Type      *metal.IPRangeType `json:"type" optional:"true"`
	ExcludeID *string            `json:"excludeid" optional:"true"`
}

// generateTerm generates the ip range search query term.
func (p *IPRangeSearchQuery) generateTerm(rs *RethinkStore) *r.Term {
	q := *rs.iprangeTable()

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

	if p.Type != nil {
		q = q.Filter(func(row r.Term) r.Term {
			return row.Field("type").Eq(string(*p.Type))
		})
	}

	if p.ExcludeID != nil {
		q = q.Filter(func(row r.Term) r.Term {
			return row.Field("id").Ne(*p.ExcludeID)
		})
	}

	return &q
}

// FindIPRangeByID returns an ip range for a given id.
func (rs *RethinkStore) FindIPRangeByID(id string) (*metal.IPRange, error) {
	var ipr metal.IPRange
	err := rs.findEntityByID(rs.iprangeTable(), &ipr, id)
	if err != nil {
		return nil, err
	}
	return &ipr, nil
}

// SearchIPRanges returns the ip ranges that match the given properties.
func (rs *RethinkStore) SearchIPRanges(q *IPRangeSearchQuery, iprs *metal.IPRanges) error {
	return rs.searchEntities(q.generateTerm(rs), iprs)
}

// ListIPRanges returns all ip ranges.
func (rs *RethinkStore) ListIPRanges() (metal.IPRanges, error) {
	iprs := make(metal.IPRanges, 0)
	err := rs.listEntities(rs.iprangeTable(), &iprs)
	return iprs, err
}

// CreateIPRange creates a new ip range in the database.
func (rs *RethinkStore) CreateIPRange(ipr *metal.IPRange) error {
	return rs.createEntity(rs.iprangeTable(), ipr)
}

// DeleteIPRange deletes an ip range.
func (rs *RethinkStore) DeleteIPRange(ipr *metal.IPRange) error {
	return rs.deleteEntity(rs.iprangeTable(), ipr)
}

// UpdateIPRange updates an ip range.
func (rs *RethinkStore) UpdateIPRange(oldRange *metal.IPRange, newRange *metal.IPRange) error {
	return rs.updateEntity(rs.iprangeTable(), newRange, oldRange)
}

// ReservedRanges returns the subnet's reserved ranges. A range id can be
// passed to leave that range out of the result.
func (rs *RethinkStore) ReservedRanges(subnet *metal.Subnet, excludeRangeID string) ([]ipset.Range, error) {
	return rs.rangesOfType(subnet, metal.IPRangeReserved, excludeRangeID, ipset.PurposeReserved)
}

// DynamicRanges returns the subnet's dynamic ranges. A range id can be passed
// to leave that range out of the result.
func (rs *RethinkStore) DynamicRanges(subnet *metal.Subnet, excludeRangeID string) ([]ipset.Range, error) {
	return rs.rangesOfType(subnet, metal.IPRangeDynamic, excludeRangeID, ipset.PurposeDynamic)
}

func (rs *RethinkStore) rangesOfType(subnet *metal.Subnet, t metal.IPRangeType, excludeRangeID string, purpose ipset.Purpose) ([]ipset.Range, error) {
	q := IPRangeSearchQuery{
		SubnetID: &subnet.ID,
		Type:     &t,
	}
	if excludeRangeID != "" {
		q.ExcludeID = &excludeRangeID
	}

	var iprs metal.IPRanges
	err := rs.SearchIPRanges(&q, &iprs)
	if err != nil {
		return nil, err
	}

	ranges := []ipset.Range{}
	for i := range iprs {
		rng, err := addressRange(iprs[i].StartIP, iprs[i].EndIP, purpose)
		if err != nil {
			return nil, err
		}
		if rng != nil {
			ranges = append(ranges, *rng)
		}
	}
	return ranges, nil
}
