package v1

import (
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
)

type MachineBase struct {
	Architecture   string `json:"architecture" description:"the machine architecture, e.g. amd64/generic"`
	BIOSBootMethod string `json:"biosbootmethod" description:"how the machine firmware boots, e.g. uefi or pxe"`
	OSystem        string `json:"osystem" description:"the operating system to install"`
	DistroSeries   string `json:"distroseries" description:"the release of the operating system to install"`
}

type MachineResponse struct {
	Common
	MachineBase
	BlockDeviceCount int `json:"blockdevicecount" description:"number of block devices in the storage graph" readOnly:"true"`
	Timestamps
}

type MachineStorageConfigResponse struct {
	Identifiable
	Config string `json:"config" description:"the compiled storage configuration as yaml" readOnly:"true"`
}

func NewMachineResponse(m *metal.Machine) *MachineResponse {
	return &MachineResponse{
		Common: Common{
			Identifiable: Identifiable{
				ID: m.ID,
			},
			Describable: Describable{
				Name:        &m.Name,
				Description: &m.Description,
			},
		},
		MachineBase: MachineBase{
			Architecture:   m.Architecture,
			BIOSBootMethod: m.BIOSBootMethod,
			OSystem:        m.OSystem,
			DistroSeries:   m.DistroSeries,
		},
		BlockDeviceCount: len(m.Storage.BlockDevices),
		Timestamps: Timestamps{
			Created: m.Created,
			Changed: m.Changed,
		},
	}
}

func NewMachineStorageConfigResponse(m *metal.Machine, config string) *MachineStorageConfigResponse {
	return &MachineStorageConfigResponse{
		Identifiable: Identifiable{
			ID: m.ID,
		},
		Config: config,
	}
}
