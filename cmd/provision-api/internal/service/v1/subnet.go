package v1

import (
	"net/netip"

	"github.com/samber/lo"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/ipset"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
)

type SubnetBase struct {
	CIDR       string   `json:"cidr" description:"the address block of this subnet in cidr notation"`
	GatewayIP  string   `json:"gatewayip,omitempty" description:"the gateway address of this subnet" optional:"true"`
	DNSServers []string `json:"dnsservers,omitempty" description:"the dns servers announced on this subnet" optional:"true"`
	VLAN       uint16   `json:"vlan,omitempty" description:"the vlan this subnet is tagged with" optional:"true"`
	Managed    bool     `json:"managed" description:"whether addresses on this subnet are managed by this api"`
}

// Prefix validates and parses the requested cidr.
func (b *SubnetBase) Prefix() (netip.Prefix, error) {
	return netip.ParsePrefix(b.CIDR)
}

type SubnetCreateRequest struct {
	Common
	SubnetBase
}

type SubnetUpdateRequest struct {
	Common
	SubnetBase
}

type SubnetResponse struct {
	Common
	SubnetBase
	Timestamps
}

// An AddressRange is one contiguous block of addresses with every purpose
// that applies to it.
type AddressRange struct {
	First        string   `json:"first" description:"the first address of this range"`
	Last         string   `json:"last" description:"the last address of this range"`
	Purposes     []string `json:"purposes" description:"every purpose that applies to this range"`
	NumAddresses uint64   `json:"numaddresses" description:"the number of addresses in this range"`
}

type SubnetUtilizationResponse struct {
	Identifiable
	Ranges []AddressRange `json:"ranges" description:"all tagged ranges of the subnet including unused gaps, overlapping entries are reported independently"`
}

type SubnetAvailableResponse struct {
	Identifiable
	Ranges []AddressRange `json:"ranges" description:"the ranges available for the requested operation"`
}

func NewSubnetResponse(s *metal.Subnet) *SubnetResponse {
	return &SubnetResponse{
		Common: Common{
			Identifiable: Identifiable{
				ID: s.ID,
			},
			Describable: Describable{
				Name:        &s.Name,
				Description: &s.Description,
			},
		},
		SubnetBase: SubnetBase{
			CIDR:       s.CIDR,
			GatewayIP:  s.GatewayIP,
			DNSServers: s.DNSServers,
			VLAN:       s.VLAN,
			Managed:    s.Managed,
		},
		Timestamps: Timestamps{
			Created: s.Created,
			Changed: s.Changed,
		},
	}
}

func NewAddressRanges(ranges []ipset.Range) []AddressRange {
	return lo.Map(ranges, func(r ipset.Range, _ int) AddressRange {
		return AddressRange{
			First:        r.First.String(),
			Last:         r.Last.String(),
			Purposes:     lo.Map(r.Purposes, func(p ipset.Purpose, _ int) string { return string(p) }),
			NumAddresses: r.NumAddresses(),
		}
	})
}

func NewSubnetUtilizationResponse(s *metal.Subnet, ranges []ipset.Range) *SubnetUtilizationResponse {
	return &SubnetUtilizationResponse{
		Identifiable: Identifiable{
			ID: s.ID,
		},
		Ranges: NewAddressRanges(ranges),
	}
}

func NewSubnetAvailableResponse(s *metal.Subnet, set *ipset.Set) *SubnetAvailableResponse {
	return &SubnetAvailableResponse{
		Identifiable: Identifiable{
			ID: s.ID,
		},
		Ranges: NewAddressRanges(set.Ranges()),
	}
}
