package curtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
)

func TestOrderMovesDependenciesFirst(t *testing.T) {
	ops := []Operation{
		{ID: "vg0", Type: OperationVolumeGroup, Devices: []string{"sda-part1"}},
		{ID: "sda-part1", Type: OperationPartition, Device: "sda"},
		{ID: "sda", Type: OperationDisk},
		{ID: "sda-part1_format", Type: OperationFormat, Volume: "sda-part1"},
	}
	got, err := Order(ops)
	require.NoError(t, err)

	var ids []string
	for _, op := range got {
		ids = append(ids, op.ID)
	}
	assert.Equal(t, []string{"sda", "sda-part1", "vg0", "sda-part1_format"}, ids)
}

func TestOrderIsStableForIndependentOperations(t *testing.T) {
	ops := []Operation{
		{ID: "sdc", Type: OperationDisk},
		{ID: "sda", Type: OperationDisk},
		{ID: "sdb", Type: OperationDisk},
	}
	got, err := Order(ops)
	require.NoError(t, err)

	var ids []string
	for _, op := range got {
		ids = append(ids, op.ID)
	}
	assert.Equal(t, []string{"sdc", "sda", "sdb"}, ids)
}

func TestOrderDetectsCycle(t *testing.T) {
	ops := []Operation{
		{ID: "vg0", Type: OperationVolumeGroup, Devices: []string{"vg1"}},
		{ID: "vg1", Type: OperationVolumeGroup, Devices: []string{"vg0"}},
	}
	_, err := Order(ops)
	require.Error(t, err)
	assert.True(t, metal.IsMalformedGraph(err))
	assert.Contains(t, err.Error(), "cyclic")
	assert.Contains(t, err.Error(), "vg0")
	assert.Contains(t, err.Error(), "vg1")
}

func TestOrderRejectsUnknownReference(t *testing.T) {
	ops := []Operation{
		{ID: "sda-part1", Type: OperationPartition, Device: "sda"},
	}
	_, err := Order(ops)
	require.Error(t, err)
	assert.True(t, metal.IsMalformedGraph(err))
	assert.Contains(t, err.Error(), `unknown id "sda"`)
}

func TestOrderRejectsUnknownOperationType(t *testing.T) {
	ops := []Operation{
		{ID: "x", Type: OperationType("teleport")},
	}
	_, err := Order(ops)
	require.Error(t, err)
	assert.True(t, metal.IsMalformedGraph(err))
	assert.Contains(t, err.Error(), "teleport")
}
