// Package ipset implements an ordered, non overlapping set of purpose tagged
// ip ranges with set algebra over a cidr bounded universe. It is the
// foundation of the subnet utilization accounting.
package ipset

import (
	"fmt"
	"math"
	"net/netip"
	"sort"

	"go4.org/netipx"
)

// Purpose is a well known reason why an address range is occupied.
type Purpose string

const (
	// PurposeUnused marks a free range.
	PurposeUnused = Purpose("unused")
	// PurposeGatewayIP marks the subnet's gateway address.
	PurposeGatewayIP = Purpose("gateway-ip")
	// PurposeDNSServer marks a dns server address inside the subnet.
	PurposeDNSServer = Purpose("dns-server")
	// PurposeReserved marks a configured reserved range.
	PurposeReserved = Purpose("reserved")
	// PurposeDynamic marks a configured dynamic (dhcp) range.
	PurposeDynamic = Purpose("dynamic")
	// PurposeAssignedIP marks an allocated address.
	PurposeAssignedIP = Purpose("assigned-ip")
	// PurposeNeighbour marks a passively observed address.
	PurposeNeighbour = Purpose("neighbour")
	// PurposeExcluded marks an address the caller asked to treat as in use.
	PurposeExcluded = Purpose("excluded")
	// PurposeRFC4291 marks the ipv6 subnet router anycast address.
	PurposeRFC4291 = Purpose("rfc-4291")
	// PurposeUnknown is used when no purpose was supplied.
	PurposeUnknown = Purpose("unknown")
)

// A Range is a contiguous, inclusive block of addresses together with the
// purposes that occupy it. Both bounds must belong to the same address
// family.
type Range struct {
	First    netip.Addr
	Last     netip.Addr
	Purposes []Purpose
}

// NewRange creates a range from first to last.
func NewRange(first, last netip.Addr, purposes ...Purpose) (Range, error) {
	if !first.IsValid() || !last.IsValid() {
		return Range{}, fmt.Errorf("range bounds must be valid addresses")
	}
	if first.Is4() != last.Is4() {
		return Range{}, fmt.Errorf("range bounds %s and %s have mixed address families", first, last)
	}
	if last.Less(first) {
		return Range{}, fmt.Errorf("range start %s is after range end %s", first, last)
	}
	if len(purposes) == 0 {
		purposes = []Purpose{PurposeUnknown}
	}
	return Range{First: first, Last: last, Purposes: normalizePurposes(purposes)}, nil
}

// SingleRange creates a range covering exactly one address.
func SingleRange(addr netip.Addr, purposes ...Purpose) (Range, error) {
	return NewRange(addr, addr, purposes...)
}

// HasPurpose returns true if the range carries the given purpose.
func (r Range) HasPurpose(purpose Purpose) bool {
	for _, p := range r.Purposes {
		if p == purpose {
			return true
		}
	}
	return false
}

// Contains returns true if the address lies inside the range.
func (r Range) Contains(addr netip.Addr) bool {
	return !addr.Less(r.First) && !r.Last.Less(addr)
}

// NumAddresses returns the number of addresses covered by the range,
// saturating at the maximum uint64 for huge ipv6 blocks.
func (r Range) NumAddresses() uint64 {
	hi, lo := r.span()
	if hi > 0 {
		return math.MaxUint64
	}
	if lo == math.MaxUint64 {
		return math.MaxUint64
	}
	return lo + 1
}

// span returns Last-First as a 128 bit quantity.
func (r Range) span() (hi, lo uint64) {
	f := r.First.As16()
	l := r.Last.As16()
	var borrow uint64
	for i := 15; i >= 8; i-- {
		d := uint64(l[i]) - uint64(f[i]) - borrow
		lo |= (d & 0xff) << (uint(15-i) * 8)
		borrow = (d >> 8) & 1
	}
	for i := 7; i >= 0; i-- {
		d := uint64(l[i]) - uint64(f[i]) - borrow
		hi |= (d & 0xff) << (uint(7-i) * 8)
		borrow = (d >> 8) & 1
	}
	return hi, lo
}

func (r Range) String() string {
	if r.First == r.Last {
		return fmt.Sprintf("%s purposes=%v", r.First, r.Purposes)
	}
	return fmt.Sprintf("%s-%s purposes=%v", r.First, r.Last, r.Purposes)
}

func normalizePurposes(purposes []Purpose) []Purpose {
	seen := make(map[Purpose]bool, len(purposes))
	result := make([]Purpose, 0, len(purposes))
	for _, p := range purposes {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

func unionPurposes(a, b []Purpose) []Purpose {
	return normalizePurposes(append(append([]Purpose{}, a...), b...))
}

// A Set is a normalized list of ranges: sorted ascending by start address and
// pairwise non overlapping. Overlapping input ranges are combined and their
// purposes are unioned; merely adjacent ranges are kept apart so every range
// retains its own tags.
type Set struct {
	ranges []Range
}

// New creates a set from the given ranges.
func New(ranges ...Range) *Set {
	s := &Set{}
	s.Add(ranges...)
	return s
}

// Add inserts the given ranges and re-normalizes the set.
func (s *Set) Add(ranges ...Range) {
	s.ranges = append(s.ranges, ranges...)
	s.condense()
}

// AddSet inserts all ranges of another set.
func (s *Set) AddSet(other *Set) {
	if other == nil {
		return
	}
	s.Add(other.ranges...)
}

func (s *Set) condense() {
	sort.Slice(s.ranges, func(i, j int) bool {
		if s.ranges[i].First != s.ranges[j].First {
			return s.ranges[i].First.Less(s.ranges[j].First)
		}
		return s.ranges[i].Last.Less(s.ranges[j].Last)
	})
	condensed := make([]Range, 0, len(s.ranges))
	for _, r := range s.ranges {
		if len(condensed) > 0 {
			previous := &condensed[len(condensed)-1]
			if !previous.Last.Less(r.First) {
				// Overlap, combine into the previous range.
				if previous.Last.Less(r.Last) {
					previous.Last = r.Last
				}
				previous.Purposes = unionPurposes(previous.Purposes, r.Purposes)
				continue
			}
		}
		condensed = append(condensed, r)
	}
	s.ranges = condensed
}

// Ranges returns the normalized ranges of the set.
func (s *Set) Ranges() []Range {
	result := make([]Range, len(s.ranges))
	copy(result, s.ranges)
	return result
}

// Len returns the number of ranges in the set.
func (s *Set) Len() int {
	return len(s.ranges)
}

// Find returns the range containing the given address, nil if the address is
// not covered by the set.
func (s *Set) Find(addr netip.Addr) *Range {
	for i := range s.ranges {
		if s.ranges[i].Contains(addr) {
			r := s.ranges[i]
			return &r
		}
	}
	return nil
}

// First returns the first address of the set.
func (s *Set) First() (netip.Addr, bool) {
	if len(s.ranges) == 0 {
		return netip.Addr{}, false
	}
	return s.ranges[0].First, true
}

// Last returns the last address of the set.
func (s *Set) Last() (netip.Addr, bool) {
	if len(s.ranges) == 0 {
		return netip.Addr{}, false
	}
	return s.ranges[len(s.ranges)-1].Last, true
}

// HasPurpose reports whether the given address carries the given purpose.
// An address outside the set is an error.
func (s *Set) HasPurpose(addr netip.Addr, purpose Purpose) (bool, error) {
	r := s.Find(addr)
	if r == nil {
		return false, fmt.Errorf("address %s does not exist in this set", addr)
	}
	return r.HasPurpose(purpose), nil
}

// IsUnused reports whether the given address is free.
func (s *Set) IsUnused(addr netip.Addr) (bool, error) {
	return s.HasPurpose(addr, PurposeUnused)
}

// IncludesPurpose returns true if any range carries the given purpose.
func (s *Set) IncludesPurpose(purpose Purpose) bool {
	for _, r := range s.ranges {
		if r.HasPurpose(purpose) {
			return true
		}
	}
	return false
}

// FirstUnused returns the first free address in the set.
func (s *Set) FirstUnused() (netip.Addr, bool) {
	for _, r := range s.ranges {
		if r.HasPurpose(PurposeUnused) {
			return r.First, true
		}
	}
	return netip.Addr{}, false
}

// LargestUnusedBlock returns the biggest free range in the set. Later ranges
// win ties.
func (s *Set) LargestUnusedBlock() (Range, bool) {
	var (
		largest Range
		found   bool
	)
	for _, r := range s.ranges {
		if !r.HasPurpose(PurposeUnused) {
			continue
		}
		if !found {
			largest, found = r, true
			continue
		}
		lhi, llo := largest.span()
		rhi, rlo := r.span()
		if rhi > lhi || (rhi == lhi && rlo >= llo) {
			largest = r
		}
	}
	return largest, found
}

func (s *Set) ipset() (*netipx.IPSet, error) {
	var b netipx.IPSetBuilder
	for _, r := range s.ranges {
		b.AddRange(netipx.IPRangeFrom(r.First, r.Last))
	}
	return b.IPSet()
}

// UsableRange returns the first and last usable address of a prefix: the
// network address is excluded except for point to point and host prefixes,
// the broadcast address is excluded for ipv4.
func UsableRange(prefix netip.Prefix) (netip.Addr, netip.Addr) {
	span := netipx.RangeOfPrefix(prefix.Masked())
	first := span.From()
	last := span.To()
	if prefix.Addr().Is4() {
		if prefix.Bits() < 31 {
			first = first.Next()
			last = last.Prev()
		}
	} else if prefix.Bits() < 127 {
		first = first.Next()
	}
	return first, last
}

func usableSet(prefix netip.Prefix) (*netipx.IPSet, error) {
	first, last := UsableRange(prefix)
	var b netipx.IPSetBuilder
	b.AddRange(netipx.IPRangeFrom(first, last))
	return b.IPSet()
}

// UnusedRangesForNetwork computes the complement of the set against the
// usable span of the given prefix. Every returned range is tagged unused and
// corresponds to exactly one maximal free run.
func (s *Set) UnusedRangesForNetwork(prefix netip.Prefix) (*Set, error) {
	universe, err := usableSet(prefix)
	if err != nil {
		return nil, err
	}
	return s.unusedRanges(universe)
}

// UnusedRangesForRanges computes the complement of the set against an
// arbitrary universe of ranges.
func (s *Set) UnusedRangesForRanges(ranges []Range) (*Set, error) {
	var b netipx.IPSetBuilder
	for _, r := range ranges {
		b.AddRange(netipx.IPRangeFrom(r.First, r.Last))
	}
	universe, err := b.IPSet()
	if err != nil {
		return nil, err
	}
	return s.unusedRanges(universe)
}

func (s *Set) unusedRanges(universe *netipx.IPSet) (*Set, error) {
	used, err := s.ipset()
	if err != nil {
		return nil, err
	}
	var b netipx.IPSetBuilder
	b.AddSet(universe)
	b.RemoveSet(used)
	free, err := b.IPSet()
	if err != nil {
		return nil, err
	}
	result := &Set{}
	for _, r := range free.Ranges() {
		result.ranges = append(result.ranges, Range{
			First:    r.From(),
			Last:     r.To(),
			Purposes: []Purpose{PurposeUnused},
		})
	}
	return result, nil
}

// UtilizationMap interleaves all source ranges with the free gaps of the
// usable prefix span, ordered by start address. Overlapping source ranges are
// kept as independent entries so callers see every applicable tag, the result
// is a multiset of annotated intervals rather than a partition.
func UtilizationMap(prefix netip.Prefix, sources []Range) ([]Range, error) {
	inUse := New(sources...)
	unused, err := inUse.UnusedRangesForNetwork(prefix)
	if err != nil {
		return nil, err
	}
	result := make([]Range, 0, len(sources)+unused.Len())
	result = append(result, sources...)
	result = append(result, unused.Ranges()...)
	sort.Slice(result, func(i, j int) bool {
		if result[i].First != result[j].First {
			return result[i].First.Less(result[j].First)
		}
		return result[i].Last.Less(result[j].Last)
	})
	return result, nil
}
