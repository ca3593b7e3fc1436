package utilization

import (
	"fmt"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/ipset"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
)

type fakeRange struct {
	id    string
	start string
	end   string
}

type fakeIP struct {
	addr       string
	discovered bool
}

// fakeSource serves ranges from in-memory fixtures.
type fakeSource struct {
	reserved   []fakeRange
	dynamic    []fakeRange
	routeGws   []string
	ips        []fakeIP
	neighbours []string
}

func mustRange(start, end string, purpose ipset.Purpose) ipset.Range {
	r, err := ipset.NewRange(netip.MustParseAddr(start), netip.MustParseAddr(end), purpose)
	if err != nil {
		panic(err)
	}
	return r
}

func mustSingle(addr string, purpose ipset.Purpose) ipset.Range {
	r, err := ipset.SingleRange(netip.MustParseAddr(addr), purpose)
	if err != nil {
		panic(err)
	}
	return r
}

func (f *fakeSource) rangesOf(rr []fakeRange, excludeID string, purpose ipset.Purpose) []ipset.Range {
	var result []ipset.Range
	for _, r := range rr {
		if excludeID != "" && r.id == excludeID {
			continue
		}
		result = append(result, mustRange(r.start, r.end, purpose))
	}
	return result
}

func (f *fakeSource) ReservedRanges(_ *metal.Subnet, excludeRangeID string) ([]ipset.Range, error) {
	return f.rangesOf(f.reserved, excludeRangeID, ipset.PurposeReserved), nil
}

func (f *fakeSource) DynamicRanges(_ *metal.Subnet, excludeRangeID string) ([]ipset.Range, error) {
	return f.rangesOf(f.dynamic, excludeRangeID, ipset.PurposeDynamic), nil
}

func (f *fakeSource) SubnetIPs(subnet *metal.Subnet) ([]ipset.Range, error) {
	var result []ipset.Range
	for _, dns := range subnet.DNSServers {
		if !subnet.ContainsIP(dns) {
			continue
		}
		result = append(result, mustSingle(dns, ipset.PurposeDNSServer))
	}
	if subnet.GatewayIP != "" {
		result = append(result, mustSingle(subnet.GatewayIP, ipset.PurposeGatewayIP))
	}
	return result, nil
}

func (f *fakeSource) StaticRouteGateways(subnet *metal.Subnet) ([]ipset.Range, error) {
	var result []ipset.Range
	for _, gw := range f.routeGws {
		if !subnet.ContainsIP(gw) {
			continue
		}
		result = append(result, mustSingle(gw, ipset.PurposeGatewayIP))
	}
	return result, nil
}

func (f *fakeSource) AllocatedIPs(_ *metal.Subnet, includeDiscovered bool) ([]ipset.Range, error) {
	var result []ipset.Range
	for _, ip := range f.ips {
		if ip.discovered && !includeDiscovered {
			continue
		}
		result = append(result, mustSingle(ip.addr, ipset.PurposeAssignedIP))
	}
	return result, nil
}

func (f *fakeSource) Neighbours(_ *metal.Subnet) ([]ipset.Range, error) {
	var result []ipset.Range
	for _, n := range f.neighbours {
		result = append(result, mustSingle(n, ipset.PurposeNeighbour))
	}
	return result, nil
}

func scenarioSubnet() *metal.Subnet {
	return &metal.Subnet{
		Base:       metal.Base{ID: "1"},
		CIDR:       "10.0.0.0/24",
		GatewayIP:  "10.0.0.1",
		DNSServers: []string{"10.0.0.2", "8.8.8.8"},
		Managed:    true,
	}
}

func scenarioSource() *fakeSource {
	return &fakeSource{
		reserved: []fakeRange{
			{id: "r1", start: "10.0.0.5", end: "10.0.0.6"},
			{id: "r2", start: "10.0.0.11", end: "10.0.0.12"},
		},
		dynamic: []fakeRange{
			{id: "d1", start: "10.0.0.7", end: "10.0.0.10"},
			{id: "d2", start: "10.0.0.13", end: "10.0.0.15"},
		},
		routeGws: []string{"10.0.0.30"},
		ips: []fakeIP{
			{addr: "10.0.0.20"},
			{addr: "10.0.0.21", discovered: true},
		},
		neighbours: []string{"10.0.0.40"},
	}
}

func newTestRepository(t *testing.T, source RangeSource) *Repository {
	return New(zaptest.NewLogger(t).Sugar(), source)
}

func setBounds(s *ipset.Set) []string {
	var bounds []string
	for _, r := range s.Ranges() {
		bounds = append(bounds, r.First.String()+"-"+r.Last.String())
	}
	return bounds
}

func TestAvailableForReservedRange(t *testing.T) {
	rp := newTestRepository(t, scenarioSource())

	got, err := rp.AvailableForReservedRange(scenarioSubnet(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"10.0.0.1-10.0.0.4",
		"10.0.0.7-10.0.0.10",
		"10.0.0.13-10.0.0.254",
	}, setBounds(got), "only reserved ranges occupy space in this view")
}

func TestAvailableForReservedRangeWithExclusion(t *testing.T) {
	rp := newTestRepository(t, scenarioSource())

	got, err := rp.AvailableForReservedRange(scenarioSubnet(), "r1")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"10.0.0.1-10.0.0.10",
		"10.0.0.13-10.0.0.254",
	}, setBounds(got), "the excluded range must not block its own resize")
}

func TestAvailableForDynamicRange(t *testing.T) {
	rp := newTestRepository(t, scenarioSource())

	got, err := rp.AvailableForDynamicRange(scenarioSubnet(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"10.0.0.3-10.0.0.4",
		"10.0.0.16-10.0.0.19",
		"10.0.0.21-10.0.0.29",
		"10.0.0.31-10.0.0.254",
	}, setBounds(got), "discovered allocations must not block a dynamic range")
}

func TestAvailableForAllocation(t *testing.T) {
	rp := newTestRepository(t, scenarioSource())

	got, err := rp.AvailableForAllocation(scenarioSubnet(), []string{"10.0.0.100"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"10.0.0.3-10.0.0.4",
		"10.0.0.16-10.0.0.19",
		"10.0.0.22-10.0.0.29",
		"10.0.0.31-10.0.0.39",
		"10.0.0.41-10.0.0.99",
		"10.0.0.101-10.0.0.254",
	}, setBounds(got), "discovered allocations, neighbours and excludes all block an allocation")
}

func TestAvailableForAllocationIgnoresForeignExcludes(t *testing.T) {
	rp := newTestRepository(t, &fakeSource{})

	got, err := rp.AvailableForAllocation(scenarioSubnet(), []string{"192.168.1.1", ""})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"10.0.0.3-10.0.0.254",
	}, setBounds(got), "excludes outside the subnet are dropped")
}

func TestAvailableForAllocationRejectsUnparsableExclude(t *testing.T) {
	rp := newTestRepository(t, &fakeSource{})

	_, err := rp.AvailableForAllocation(scenarioSubnet(), []string{"not-an-address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-an-address")
}

func TestFreeRanges(t *testing.T) {
	rp := newTestRepository(t, scenarioSource())

	got, err := rp.FreeRanges(scenarioSubnet())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"10.0.0.3-10.0.0.4",
		"10.0.0.16-10.0.0.19",
		"10.0.0.22-10.0.0.29",
		"10.0.0.31-10.0.0.254",
	}, setBounds(got), "neighbours do not count against the administrative free space")
}

// assertSubset checks that every range of inner is fully covered by outer.
func assertSubset(t *testing.T, inner, outer *ipset.Set) {
	t.Helper()
	for _, r := range inner.Ranges() {
		cover := outer.Find(r.First)
		require.NotNilf(t, cover, "address %s is missing from the wider view", r.First)
		assert.Falsef(t, cover.Last.Less(r.Last), "range %s is not fully covered by the wider view", r)
	}
}

func TestViewMonotonicity(t *testing.T) {
	rp := newTestRepository(t, scenarioSource())
	subnet := scenarioSubnet()

	viewA, err := rp.AvailableForReservedRange(subnet, "")
	require.NoError(t, err)
	viewB, err := rp.AvailableForDynamicRange(subnet, "")
	require.NoError(t, err)
	viewC, err := rp.AvailableForAllocation(subnet, nil)
	require.NoError(t, err)

	assertSubset(t, viewC, viewB)
	assertSubset(t, viewB, viewA)
}

func TestUtilizationMapScenario(t *testing.T) {
	rp := newTestRepository(t, scenarioSource())

	got, err := rp.UtilizationMap(scenarioSubnet())
	require.NoError(t, err)

	var entries []string
	for _, r := range got {
		entries = append(entries, fmt.Sprintf("%s-%s %v", r.First, r.Last, r.Purposes))
	}
	assert.Equal(t, []string{
		"10.0.0.1-10.0.0.1 [gateway-ip]",
		"10.0.0.2-10.0.0.2 [dns-server]",
		"10.0.0.3-10.0.0.4 [unused]",
		"10.0.0.5-10.0.0.6 [reserved]",
		"10.0.0.7-10.0.0.10 [dynamic]",
		"10.0.0.11-10.0.0.12 [reserved]",
		"10.0.0.13-10.0.0.15 [dynamic]",
		"10.0.0.16-10.0.0.19 [unused]",
		"10.0.0.20-10.0.0.20 [assigned-ip]",
		"10.0.0.21-10.0.0.21 [assigned-ip]",
		"10.0.0.22-10.0.0.29 [unused]",
		"10.0.0.30-10.0.0.30 [gateway-ip]",
		"10.0.0.31-10.0.0.254 [unused]",
	}, entries, "neighbours are observations and never show up in the statistics view")
}

func TestUtilizationMapPreservesOverlappingRanges(t *testing.T) {
	source := &fakeSource{
		reserved: []fakeRange{{id: "r1", start: "10.0.0.5", end: "10.0.0.10"}},
		dynamic:  []fakeRange{{id: "d1", start: "10.0.0.6", end: "10.0.0.8"}},
	}
	rp := newTestRepository(t, source)

	subnet := &metal.Subnet{Base: metal.Base{ID: "1"}, CIDR: "10.0.0.0/24"}
	got, err := rp.UtilizationMap(subnet)
	require.NoError(t, err)

	var entries []string
	for _, r := range got {
		entries = append(entries, fmt.Sprintf("%s-%s %v", r.First, r.Last, r.Purposes))
	}
	assert.Equal(t, []string{
		"10.0.0.1-10.0.0.4 [unused]",
		"10.0.0.5-10.0.0.10 [reserved]",
		"10.0.0.6-10.0.0.8 [dynamic]",
		"10.0.0.11-10.0.0.254 [unused]",
	}, entries, "overlapping ranges stay independent entries with their own tags")
}

func TestIPv6AutomaticRanges(t *testing.T) {
	rp := newTestRepository(t, &fakeSource{})

	subnet := &metal.Subnet{Base: metal.Base{ID: "2"}, CIDR: "2001:db8::/64"}
	got, err := rp.AvailableForReservedRange(subnet, "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"2001:db8::1:0:0-2001:db8::ffff:ffff:ffff:ffff",
	}, setBounds(got), "the first 32 bit block of a /64 is never available")
}

func TestIPv6UtilizationMapContainsAutomatics(t *testing.T) {
	rp := newTestRepository(t, &fakeSource{})

	subnet := &metal.Subnet{Base: metal.Base{ID: "2"}, CIDR: "2001:db8::/64"}
	got, err := rp.UtilizationMap(subnet)
	require.NoError(t, err)

	var entries []string
	for _, r := range got {
		entries = append(entries, fmt.Sprintf("%s-%s %v", r.First, r.Last, r.Purposes))
	}
	assert.Equal(t, []string{
		"2001:db8::-2001:db8:: [rfc-4291]",
		"2001:db8::1-2001:db8::ffff:ffff [reserved]",
		"2001:db8::1:0:0-2001:db8::ffff:ffff:ffff:ffff [unused]",
	}, entries)
}

func TestIPv6NetworkAddressIsNeverUsable(t *testing.T) {
	rp := newTestRepository(t, &fakeSource{})

	subnet := &metal.Subnet{Base: metal.Base{ID: "3"}, CIDR: "2001:db8:1::/120"}
	got, err := rp.AvailableForReservedRange(subnet, "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"2001:db8:1::1-2001:db8:1::ff",
	}, setBounds(got), "the subnet-router anycast address is excluded")
}
