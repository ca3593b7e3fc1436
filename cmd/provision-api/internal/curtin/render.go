package curtin

import (
	"gopkg.in/yaml.v3"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
)

// document is the fixed envelope the installer expects around the storage
// plan.
type document struct {
	PartitioningCommands partitioningCommands `yaml:"partitioning_commands"`
	Storage              storage              `yaml:"storage"`
}

type partitioningCommands struct {
	Builtin []string `yaml:"builtin"`
}

type storage struct {
	Version int         `yaml:"version"`
	Config  []Operation `yaml:"config"`
}

// RenderConfig wraps an ordered operation list in the installer envelope and
// renders it as yaml.
func RenderConfig(ops []Operation) (string, error) {
	doc := document{
		PartitioningCommands: partitioningCommands{
			Builtin: []string{"curtin", "block-meta", "custom"},
		},
		Storage: storage{
			Version: 1,
			Config:  ops,
		},
	}
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// StorageConfig compiles the machine's storage graph and renders the
// resulting plan in one step.
func StorageConfig(m *metal.Machine) (string, error) {
	ops, err := Generate(m)
	if err != nil {
		return "", err
	}
	return RenderConfig(ops)
}
