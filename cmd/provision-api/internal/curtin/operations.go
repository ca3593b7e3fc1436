package curtin

import (
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
)

// OperationType is the type of a single storage operation.
type OperationType string

const (
	OperationDisk          = OperationType("disk")
	OperationPartition     = OperationType("partition")
	OperationFormat        = OperationType("format")
	OperationMount         = OperationType("mount")
	OperationVolumeGroup   = OperationType("lvm_volgroup")
	OperationLogicalVolume = OperationType("lvm_partition")
	OperationRaid          = OperationType("raid")
	OperationBcache        = OperationType("bcache")
	OperationVMFS6         = OperationType("vmfs6")
)

// An Operation is one step of a storage plan. The consuming provisioning tool
// executes operations strictly in list order and fails when an operation
// references an id that was not defined by an earlier operation. Operations
// are immutable once created, the orderer only relocates them.
type Operation struct {
	ID            string        `yaml:"id" json:"id"`
	Name          string        `yaml:"name,omitempty" json:"name,omitempty"`
	Type          OperationType `yaml:"type" json:"type"`
	Number        int           `yaml:"number,omitempty" json:"number,omitempty"`
	UUID          string        `yaml:"uuid,omitempty" json:"uuid,omitempty"`
	Size          string        `yaml:"size,omitempty" json:"size,omitempty"`
	Offset        string        `yaml:"offset,omitempty" json:"offset,omitempty"`
	Device        string        `yaml:"device,omitempty" json:"device,omitempty"`
	Wipe          string        `yaml:"wipe,omitempty" json:"wipe,omitempty"`
	Flag          string        `yaml:"flag,omitempty" json:"flag,omitempty"`
	GrubDevice    bool          `yaml:"grub_device,omitempty" json:"grub_device,omitempty"`
	Model         string        `yaml:"model,omitempty" json:"model,omitempty"`
	Serial        string        `yaml:"serial,omitempty" json:"serial,omitempty"`
	Path          string        `yaml:"path,omitempty" json:"path,omitempty"`
	PTable        string        `yaml:"ptable,omitempty" json:"ptable,omitempty"`
	FSType        string        `yaml:"fstype,omitempty" json:"fstype,omitempty"`
	Label         string        `yaml:"label,omitempty" json:"label,omitempty"`
	Volume        string        `yaml:"volume,omitempty" json:"volume,omitempty"`
	ExtraOptions  []string      `yaml:"extra_options,omitempty" json:"extra_options,omitempty"`
	VolGroup      string        `yaml:"volgroup,omitempty" json:"volgroup,omitempty"`
	Devices       []string      `yaml:"devices,omitempty" json:"devices,omitempty"`
	SpareDevices  []string      `yaml:"spare_devices,omitempty" json:"spare_devices,omitempty"`
	RaidLevel     *int          `yaml:"raidlevel,omitempty" json:"raidlevel,omitempty"`
	BackingDevice string        `yaml:"backing_device,omitempty" json:"backing_device,omitempty"`
	CacheDevice   string        `yaml:"cache_device,omitempty" json:"cache_device,omitempty"`
	CacheMode     string        `yaml:"cache_mode,omitempty" json:"cache_mode,omitempty"`
}

// dependencies returns the ids of the operations this operation requires to
// appear earlier in the plan.
func (o *Operation) dependencies() ([]string, error) {
	switch o.Type {
	case OperationDisk:
		return nil, nil
	case OperationPartition:
		return []string{o.Device}, nil
	case OperationFormat:
		return []string{o.Volume}, nil
	case OperationVolumeGroup, OperationVMFS6:
		return o.Devices, nil
	case OperationLogicalVolume:
		return []string{o.VolGroup}, nil
	case OperationRaid:
		deps := make([]string, 0, len(o.Devices)+len(o.SpareDevices))
		deps = append(deps, o.Devices...)
		deps = append(deps, o.SpareDevices...)
		return deps, nil
	case OperationBcache:
		return []string{o.BackingDevice, o.CacheDevice}, nil
	case OperationMount:
		if o.Device == "" {
			return nil, nil
		}
		return []string{o.Device}, nil
	default:
		return nil, metal.MalformedGraph("unknown operation type %q of operation %q", o.Type, o.ID)
	}
}
