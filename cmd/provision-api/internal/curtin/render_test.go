package curtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
)

func TestRenderConfig(t *testing.T) {
	b := newStorageGraph()
	sda := b.addDisk("sda", 8*gib)
	table := b.addTable(sda, metal.PartitionTableGPT)
	p1 := b.addPartition(table, 7*gib, true)
	b.addFilesystem(metal.Filesystem{UUID: "fs-root", Type: metal.FilesystemExt4, MountPoint: "/", PartitionID: p1})

	m := testMachine("amd64/generic", "uefi", "ubuntu", "noble", b.build(sda))
	out, err := StorageConfig(m)
	require.NoError(t, err)

	var doc struct {
		PartitioningCommands struct {
			Builtin []string `yaml:"builtin"`
		} `yaml:"partitioning_commands"`
		Storage struct {
			Version int              `yaml:"version"`
			Config  []map[string]any `yaml:"config"`
		} `yaml:"storage"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))

	assert.Equal(t, []string{"curtin", "block-meta", "custom"}, doc.PartitioningCommands.Builtin)
	assert.Equal(t, 1, doc.Storage.Version)
	require.Len(t, doc.Storage.Config, 4)

	disk := doc.Storage.Config[0]
	assert.Equal(t, "sda", disk["id"])
	assert.Equal(t, "disk", disk["type"])
	assert.Equal(t, true, disk["grub_device"])
	_, hasFlag := disk["flag"]
	assert.False(t, hasFlag, "empty fields must be omitted from the document")

	partition := doc.Storage.Config[1]
	assert.Equal(t, "sda-part1", partition["id"])
	assert.Equal(t, "2097152B", partition["offset"])
	assert.Equal(t, "boot", partition["flag"])
}

func TestRenderConfigFailsOnMalformedGraph(t *testing.T) {
	b := newStorageGraph()
	sda := b.addDisk("sda", 8*gib)
	b.addTable(sda, metal.PartitionTableType("weird"))

	m := testMachine("amd64/generic", "uefi", "ubuntu", "noble", b.build(sda))
	_, err := StorageConfig(m)
	require.Error(t, err)
	assert.True(t, metal.IsMalformedGraph(err))
}
