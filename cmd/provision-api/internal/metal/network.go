package metal

import (
	"net/netip"
	"time"
)

// IPRangeType is the type of a configured ip range on a subnet.
type IPRangeType string

const (
	// IPRangeReserved addresses are kept out of automatic allocation.
	IPRangeReserved = IPRangeType("reserved")
	// IPRangeDynamic addresses are handed out by dhcp.
	IPRangeDynamic = IPRangeType("dynamic")
)

// IPAllocType describes how an allocated address came into existence.
type IPAllocType string

const (
	IPAllocAuto         = IPAllocType("auto")
	IPAllocSticky       = IPAllocType("sticky")
	IPAllocUserReserved = IPAllocType("user-reserved")
	IPAllocDHCP         = IPAllocType("dhcp")
	// IPAllocDiscovered addresses were only observed passively, they are not
	// a reservation.
	IPAllocDiscovered = IPAllocType("discovered")
)

// A Subnet is a layer 3 network with its addressing configuration.
type Subnet struct {
	Base
	CIDR       string   `rethinkdb:"cidr" json:"cidr"`
	GatewayIP  string   `rethinkdb:"gatewayip" json:"gatewayip"`
	DNSServers []string `rethinkdb:"dnsservers" json:"dnsservers"`
	VLAN       uint16   `rethinkdb:"vlan" json:"vlan"`
	Managed    bool     `rethinkdb:"managed" json:"managed"`
}

// Subnets is a list of subnets.
type Subnets []Subnet

// Prefix parses the subnet's cidr.
func (s *Subnet) Prefix() (netip.Prefix, error) {
	return netip.ParsePrefix(s.CIDR)
}

// ContainsIP checks whether the given ip is inside the subnet's cidr.
func (s *Subnet) ContainsIP(ip string) bool {
	prefix, err := s.Prefix()
	if err != nil {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return prefix.Contains(addr)
}

// An IPRange is a contiguous block of addresses configured on a subnet.
type IPRange struct {
	Base
	SubnetID string      `rethinkdb:"subnetid" json:"subnetid"`
	Type     IPRangeType `rethinkdb:"type" json:"type"`
	StartIP  string      `rethinkdb:"startip" json:"startip"`
	EndIP    string      `rethinkdb:"endip" json:"endip"`
}

// IPRanges is a list of ip ranges.
type IPRanges []IPRange

// A StaticRoute directs traffic from a source subnet through a gateway.
type StaticRoute struct {
	Base
	SourceSubnetID  string `rethinkdb:"sourcesubnetid" json:"sourcesubnetid"`
	DestinationCIDR string `rethinkdb:"destinationcidr" json:"destinationcidr"`
	GatewayIP       string `rethinkdb:"gatewayip" json:"gatewayip"`
}

// StaticRoutes is a list of static routes.
type StaticRoutes []StaticRoute

// An IP is a single allocated address on a subnet.
type IP struct {
	IPAddress   string      `rethinkdb:"id" json:"ipaddress"`
	SubnetID    string      `rethinkdb:"subnetid" json:"subnetid"`
	AllocType   IPAllocType `rethinkdb:"alloctype" json:"alloctype"`
	MachineID   string      `rethinkdb:"machineid" json:"machineid"`
	Name        string      `rethinkdb:"name" json:"name"`
	Description string      `rethinkdb:"description" json:"description"`
	Created     time.Time   `rethinkdb:"created" json:"created"`
	Changed     time.Time   `rethinkdb:"changed" json:"changed"`
}

// IPs is a list of ips.
type IPs []IP

func (ip *IP) GetID() string {
	return ip.IPAddress
}

func (ip *IP) SetID(id string) {
	ip.IPAddress = id
}

func (ip *IP) GetChanged() time.Time {
	return ip.Changed
}

func (ip *IP) SetChanged(changed time.Time) {
	ip.Changed = changed
}

func (ip *IP) SetCreated(created time.Time) {
	ip.Created = created
}

// A Discovery is a passively observed neighbour address, learned from arp or
// ndp traffic on the rack.
type Discovery struct {
	Base
	SubnetID   string    `rethinkdb:"subnetid" json:"subnetid"`
	IPAddress  string    `rethinkdb:"ipaddress" json:"ipaddress"`
	MacAddress string    `rethinkdb:"macaddress" json:"macaddress"`
	LastSeen   time.Time `rethinkdb:"lastseen" json:"lastseen"`
}

// Discoveries is a list of discoveries.
type Discoveries []Discovery
