// Package utilization computes the address accounting views of a subnet.
// Every view collects the occupied addresses from a different combination of
// sources and either complements them against the subnet's usable range or
// reports them directly.
package utilization

import (
	"fmt"
	"net/netip"

	"go.uber.org/zap"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/ipset"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
)

// A RangeSource provides the occupied address ranges of a subnet from the
// persisted state.
type RangeSource interface {
	// ReservedRanges returns the reserved ranges of the subnet, leaving out
	// the range with the given id if one is passed.
	ReservedRanges(subnet *metal.Subnet, excludeRangeID string) ([]ipset.Range, error)
	// DynamicRanges returns the dynamic ranges of the subnet, leaving out the
	// range with the given id if one is passed.
	DynamicRanges(subnet *metal.Subnet, excludeRangeID string) ([]ipset.Range, error)
	// SubnetIPs returns the gateway and the in-network dns server addresses.
	SubnetIPs(subnet *metal.Subnet) ([]ipset.Range, error)
	// StaticRouteGateways returns the in-network gateways of static routes
	// leaving the subnet.
	StaticRouteGateways(subnet *metal.Subnet) ([]ipset.Range, error)
	// AllocatedIPs returns the allocated addresses of the subnet, optionally
	// including passively discovered ones.
	AllocatedIPs(subnet *metal.Subnet, includeDiscovered bool) ([]ipset.Range, error)
	// Neighbours returns the passively observed neighbour addresses.
	Neighbours(subnet *metal.Subnet) ([]ipset.Range, error)
}

// A Repository answers the availability and utilization queries of a subnet.
type Repository struct {
	log    *zap.SugaredLogger
	source RangeSource
}

// New creates a utilization repository on top of the given range source.
func New(log *zap.SugaredLogger, source RangeSource) *Repository {
	return &Repository{
		log:    log,
		source: source,
	}
}

type fetch func() ([]ipset.Range, error)

func (rp *Repository) collect(prefix netip.Prefix, fetchers ...fetch) (*ipset.Set, error) {
	used := ipset.New(automaticRanges(prefix)...)
	for _, f := range fetchers {
		ranges, err := f()
		if err != nil {
			return nil, err
		}
		used.Add(ranges...)
	}
	return used, nil
}

// AvailableForReservedRange returns the ranges where a new reserved range can
// be placed. Only already reserved ranges occupy space, a reserved range may
// overlay anything else. An existing range id can be passed when that range
// is being resized.
func (rp *Repository) AvailableForReservedRange(subnet *metal.Subnet, excludeRangeID string) (*ipset.Set, error) {
	prefix, err := subnet.Prefix()
	if err != nil {
		return nil, err
	}

	used, err := rp.collect(prefix,
		func() ([]ipset.Range, error) { return rp.source.ReservedRanges(subnet, excludeRangeID) },
	)
	if err != nil {
		return nil, err
	}
	return used.UnusedRangesForNetwork(prefix)
}

// AvailableForDynamicRange returns the ranges where a new dynamic range can
// be placed. Dynamic ranges must not overlap any configured range, the subnet
// infrastructure addresses or real allocations. Passively discovered
// addresses do not block a dynamic range, dhcp may hand them out again. An
// existing range id can be passed when that range is being resized.
func (rp *Repository) AvailableForDynamicRange(subnet *metal.Subnet, excludeRangeID string) (*ipset.Set, error) {
	prefix, err := subnet.Prefix()
	if err != nil {
		return nil, err
	}

	used, err := rp.collect(prefix,
		func() ([]ipset.Range, error) { return rp.source.ReservedRanges(subnet, excludeRangeID) },
		func() ([]ipset.Range, error) { return rp.source.DynamicRanges(subnet, excludeRangeID) },
		func() ([]ipset.Range, error) { return rp.source.SubnetIPs(subnet) },
		func() ([]ipset.Range, error) { return rp.source.StaticRouteGateways(subnet) },
		func() ([]ipset.Range, error) { return rp.source.AllocatedIPs(subnet, false) },
	)
	if err != nil {
		return nil, err
	}
	return used.UnusedRangesForNetwork(prefix)
}

// AvailableForAllocation returns the ranges from which a single address can
// safely be handed out. On top of everything a dynamic range must avoid, this
// also treats discovered allocations and observed neighbours as occupied, an
// address that answers on the wire must never be allocated. Additional
// addresses can be excluded explicitly.
func (rp *Repository) AvailableForAllocation(subnet *metal.Subnet, excludeAddresses []string) (*ipset.Set, error) {
	prefix, err := subnet.Prefix()
	if err != nil {
		return nil, err
	}

	excluded, err := excludedRanges(prefix, excludeAddresses)
	if err != nil {
		return nil, err
	}

	used, err := rp.collect(prefix,
		func() ([]ipset.Range, error) { return excluded, nil },
		func() ([]ipset.Range, error) { return rp.source.ReservedRanges(subnet, "") },
		func() ([]ipset.Range, error) { return rp.source.DynamicRanges(subnet, "") },
		func() ([]ipset.Range, error) { return rp.source.SubnetIPs(subnet) },
		func() ([]ipset.Range, error) { return rp.source.StaticRouteGateways(subnet) },
		func() ([]ipset.Range, error) { return rp.source.AllocatedIPs(subnet, true) },
		func() ([]ipset.Range, error) { return rp.source.Neighbours(subnet) },
	)
	if err != nil {
		return nil, err
	}
	return used.UnusedRangesForNetwork(prefix)
}

// FreeRanges returns the ranges not occupied by any configuration or
// allocation. Unlike AvailableForAllocation this does not subtract observed
// neighbours, it reports the administrative free space.
func (rp *Repository) FreeRanges(subnet *metal.Subnet) (*ipset.Set, error) {
	prefix, err := subnet.Prefix()
	if err != nil {
		return nil, err
	}

	used, err := rp.collect(prefix,
		func() ([]ipset.Range, error) { return rp.source.ReservedRanges(subnet, "") },
		func() ([]ipset.Range, error) { return rp.source.DynamicRanges(subnet, "") },
		func() ([]ipset.Range, error) { return rp.source.SubnetIPs(subnet) },
		func() ([]ipset.Range, error) { return rp.source.StaticRouteGateways(subnet) },
		func() ([]ipset.Range, error) { return rp.source.AllocatedIPs(subnet, true) },
	)
	if err != nil {
		return nil, err
	}
	return used.UnusedRangesForNetwork(prefix)
}

// UtilizationMap returns a purpose tagged statistics view over the whole
// subnet. Occupied ranges are reported as independent entries even when they
// overlap, the caller sees every applicable tag per range. The gaps in
// between are filled with unused ranges.
func (rp *Repository) UtilizationMap(subnet *metal.Subnet) ([]ipset.Range, error) {
	prefix, err := subnet.Prefix()
	if err != nil {
		return nil, err
	}

	sources := automaticRanges(prefix)
	for _, f := range []fetch{
		func() ([]ipset.Range, error) { return rp.source.ReservedRanges(subnet, "") },
		func() ([]ipset.Range, error) { return rp.source.DynamicRanges(subnet, "") },
		func() ([]ipset.Range, error) { return rp.source.SubnetIPs(subnet) },
		func() ([]ipset.Range, error) { return rp.source.StaticRouteGateways(subnet) },
		func() ([]ipset.Range, error) { return rp.source.AllocatedIPs(subnet, true) },
	} {
		ranges, err := f()
		if err != nil {
			return nil, err
		}
		sources = append(sources, ranges...)
	}

	result, err := ipset.UtilizationMap(prefix, sources)
	if err != nil {
		return nil, err
	}
	rp.log.Debugw("computed utilization map", "subnet", subnet.ID, "ranges", len(result))
	return result, nil
}

// excludedRanges converts caller supplied addresses into single address
// ranges. Addresses outside the subnet cannot collide with an allocation and
// are dropped silently.
func excludedRanges(prefix netip.Prefix, addresses []string) ([]ipset.Range, error) {
	ranges := []ipset.Range{}
	for _, address := range addresses {
		if address == "" {
			continue
		}
		addr, err := netip.ParseAddr(address)
		if err != nil {
			return nil, fmt.Errorf("exclude address %q is not parsable: %v", address, err)
		}
		if !prefix.Contains(addr) {
			continue
		}
		rng, err := ipset.SingleRange(addr, ipset.PurposeExcluded)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, rng)
	}
	return ranges, nil
}

// automaticRanges returns the addresses an ipv6 network occupies by
// definition. In a /64 the first 32 bit block above the network address is
// kept free of automatic allocation, and in every network wider than /127
// the network address itself is the subnet-router anycast address of
// rfc 4291 and never usable.
func automaticRanges(prefix netip.Prefix) []ipset.Range {
	if prefix.Addr().Is4() {
		return nil
	}

	var ranges []ipset.Range
	network := prefix.Masked().Addr()

	if prefix.Bits() == 64 {
		last := network.As16()
		last[12], last[13], last[14], last[15] = 0xff, 0xff, 0xff, 0xff
		rng, err := ipset.NewRange(network.Next(), netip.AddrFrom16(last), ipset.PurposeReserved)
		if err == nil {
			ranges = append(ranges, rng)
		}
	}

	if prefix.Bits() < 127 {
		rng, err := ipset.SingleRange(network, ipset.PurposeRFC4291)
		if err == nil {
			ranges = append(ranges, rng)
		}
	}

	return ranges
}
