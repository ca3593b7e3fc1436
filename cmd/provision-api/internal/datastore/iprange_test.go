package datastore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/ipset"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/testdata"
)

func rangeBounds(rr []ipset.Range) []string {
	bounds := make([]string, 0, len(rr))
	for _, r := range rr {
		bounds = append(bounds, r.First.String()+"-"+r.Last.String())
	}
	return bounds
}

func TestRethinkStore_ReservedRanges(t *testing.T) {
	ds, mock := InitMockDB(t)
	testdata.InitMockRangeQueries(mock)

	got, err := ds.ReservedRanges(&testdata.Sn1, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.5-10.0.0.6", "10.0.0.11-10.0.0.12"}, rangeBounds(got))
	for _, r := range got {
		assert.Equal(t, []ipset.Purpose{ipset.PurposeReserved}, r.Purposes)
	}
}

func TestRethinkStore_ReservedRangesWithExclusion(t *testing.T) {
	ds, mock := InitMockDB(t)
	testdata.InitMockRangeQueries(mock)

	got, err := ds.ReservedRanges(&testdata.Sn1, "1")
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.11-10.0.0.12"}, rangeBounds(got))
}

func TestRethinkStore_DynamicRanges(t *testing.T) {
	ds, mock := InitMockDB(t)
	testdata.InitMockRangeQueries(mock)

	got, err := ds.DynamicRanges(&testdata.Sn1, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.7-10.0.0.10", "10.0.0.13-10.0.0.15"}, rangeBounds(got))
	for _, r := range got {
		assert.Equal(t, []ipset.Purpose{ipset.PurposeDynamic}, r.Purposes)
	}
}
