package testdata

import (
	"fmt"

	r "gopkg.in/rethinkdb/rethinkdb-go.v6"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
)

// If you want to add some Test Data, add it also to the following places:
// -- To the Mocks, ==> eof
// -- To the corrisponding lists,

var (
	// Machines
	M1 = metal.Machine{
		Base:           metal.Base{ID: "1", Name: "worker-1"},
		Architecture:   "amd64/generic",
		BIOSBootMethod: "uefi",
		OSystem:        "ubuntu",
		DistroSeries:   "noble",
		Storage: metal.StorageGraph{
			BootDiskID: 1,
			BlockDevices: []metal.BlockDevice{
				{ID: 1, Name: "sda", Type: metal.BlockDevicePhysical, Model: "QEMU HARDDISK", Serial: "QM-sda", IDPath: "/dev/disk/by-id/wwn-sda", Size: 8 * 1024 * 1024 * 1024},
			},
			PartitionTables: []metal.PartitionTable{
				{ID: 1, BlockDeviceID: 1, Type: metal.PartitionTableGPT},
			},
			Partitions: []metal.Partition{
				{ID: 1, PartitionTableID: 1, UUID: "partition-1", Size: 7 * 1024 * 1024 * 1024, Bootable: true},
			},
			Filesystems: []metal.Filesystem{
				{ID: 1, UUID: "fs-root", Type: metal.FilesystemExt4, MountPoint: "/", PartitionID: 1},
			},
		},
	}
	// M2 has no storage graph, storage compilation must fail for it.
	M2 = metal.Machine{
		Base:           metal.Base{ID: "2", Name: "worker-2"},
		Architecture:   "amd64/generic",
		BIOSBootMethod: "uefi",
		OSystem:        "ubuntu",
		DistroSeries:   "noble",
	}

	// M3 carries a partition table of an unknown type, its storage plan cannot
	// be compiled.
	M3 = metal.Machine{
		Base:           metal.Base{ID: "3", Name: "worker-3"},
		Architecture:   "amd64/generic",
		BIOSBootMethod: "uefi",
		OSystem:        "ubuntu",
		DistroSeries:   "noble",
		Storage: metal.StorageGraph{
			BootDiskID: 1,
			BlockDevices: []metal.BlockDevice{
				{ID: 1, Name: "sda", Type: metal.BlockDevicePhysical, Model: "QEMU HARDDISK", Serial: "QM-sda", IDPath: "/dev/disk/by-id/wwn-sda", Size: 8 * 1024 * 1024 * 1024},
			},
			PartitionTables: []metal.PartitionTable{
				{ID: 1, BlockDeviceID: 1, Type: metal.PartitionTableType("atari")},
			},
		},
	}

	// Subnets
	Sn1 = metal.Subnet{
		Base:       metal.Base{ID: "1", Name: "rack-1"},
		CIDR:       "10.0.0.0/24",
		GatewayIP:  "10.0.0.1",
		DNSServers: []string{"10.0.0.2", "8.8.8.8"},
		VLAN:       100,
		Managed:    true,
	}
	Sn2 = metal.Subnet{
		Base:       metal.Base{ID: "2", Name: "rack-2-v6"},
		CIDR:       "2001:db8::/64",
		GatewayIP:  "2001:db8::1",
		DNSServers: []string{"2001:db8::2"},
		VLAN:       200,
		Managed:    true,
	}

	// IPRanges on subnet 1
	IPR1 = metal.IPRange{
		Base:     metal.Base{ID: "1"},
		SubnetID: "1",
		Type:     metal.IPRangeReserved,
		StartIP:  "10.0.0.5",
		EndIP:    "10.0.0.6",
	}
	IPR2 = metal.IPRange{
		Base:     metal.Base{ID: "2"},
		SubnetID: "1",
		Type:     metal.IPRangeReserved,
		StartIP:  "10.0.0.11",
		EndIP:    "10.0.0.12",
	}
	IPR3 = metal.IPRange{
		Base:     metal.Base{ID: "3"},
		SubnetID: "1",
		Type:     metal.IPRangeDynamic,
		StartIP:  "10.0.0.7",
		EndIP:    "10.0.0.10",
	}
	IPR4 = metal.IPRange{
		Base:     metal.Base{ID: "4"},
		SubnetID: "1",
		Type:     metal.IPRangeDynamic,
		StartIP:  "10.0.0.13",
		EndIP:    "10.0.0.15",
	}

	// IPs on subnet 1
	IP1 = metal.IP{
		IPAddress: "10.0.0.20",
		SubnetID:  "1",
		AllocType: metal.IPAllocAuto,
		MachineID: "1",
	}
	IP2 = metal.IP{
		IPAddress: "10.0.0.21",
		SubnetID:  "1",
		AllocType: metal.IPAllocDiscovered,
	}

	// Static routes
	Sr1 = metal.StaticRoute{
		Base:            metal.Base{ID: "1"},
		SourceSubnetID:  "1",
		DestinationCIDR: "192.168.0.0/16",
		GatewayIP:       "10.0.0.30",
	}

	// Discoveries
	D1 = metal.Discovery{
		Base:       metal.Base{ID: "1"},
		SubnetID:   "1",
		IPAddress:  "10.0.0.40",
		MacAddress: "aa:bb:cc:dd:ee:ff",
	}

	TestMachines     = metal.Machines{M1, M2, M3}
	TestSubnets      = metal.Subnets{Sn1, Sn2}
	TestIPRanges     = metal.IPRanges{IPR1, IPR2, IPR3, IPR4}
	TestIPs          = metal.IPs{IP1, IP2}
	TestStaticRoutes = metal.StaticRoutes{Sr1}
	TestDiscoveries  = metal.Discoveries{D1}
)

// InitMockDBData fills the Mocked rethink DB with test data.
func InitMockDBData(mock *r.Mock) {
	mock.On(r.DB("mockdb").Table("machine").Get("1")).Return(M1, nil)
	mock.On(r.DB("mockdb").Table("machine").Get("2")).Return(M2, nil)
	mock.On(r.DB("mockdb").Table("machine").Get("3")).Return(M3, nil)
	mock.On(r.DB("mockdb").Table("machine").Get("404")).Return(nil, fmt.Errorf("Test Error"))
	mock.On(r.DB("mockdb").Table("machine").Get("999")).Return(nil, nil)
	mock.On(r.DB("mockdb").Table("machine")).Return(TestMachines, nil)

	mock.On(r.DB("mockdb").Table("subnet").Get("1")).Return(Sn1, nil)
	mock.On(r.DB("mockdb").Table("subnet").Get("2")).Return(Sn2, nil)
	mock.On(r.DB("mockdb").Table("subnet").Get("404")).Return(nil, fmt.Errorf("Test Error"))
	mock.On(r.DB("mockdb").Table("subnet").Get("999")).Return(nil, nil)
	mock.On(r.DB("mockdb").Table("subnet")).Return(TestSubnets, nil)

	mock.On(r.DB("mockdb").Table("iprange").Get("1")).Return(IPR1, nil)
	mock.On(r.DB("mockdb").Table("iprange")).Return(TestIPRanges, nil)

	mock.On(r.DB("mockdb").Table("ip").Get("10.0.0.20")).Return(IP1, nil)
	mock.On(r.DB("mockdb").Table("ip")).Return(TestIPs, nil)

	mock.On(r.DB("mockdb").Table("staticroute").Get("1")).Return(Sr1, nil)
	mock.On(r.DB("mockdb").Table("staticroute")).Return(TestStaticRoutes, nil)

	mock.On(r.DB("mockdb").Table("discovery").Get("1")).Return(D1, nil)
	mock.On(r.DB("mockdb").Table("discovery")).Return(TestDiscoveries, nil)
}

// InitMockRangeQueries registers the filtered range queries of subnet 1 so the
// range source methods can be exercised against the mock.
func InitMockRangeQueries(mock *r.Mock) {
	mock.On(r.DB("mockdb").Table("iprange").
		Filter(func(row r.Term) r.Term { return row.Field("subnetid").Eq("1") }).
		Filter(func(row r.Term) r.Term { return row.Field("type").Eq("reserved") })).
		Return(metal.IPRanges{IPR1, IPR2}, nil)
	mock.On(r.DB("mockdb").Table("iprange").
		Filter(func(row r.Term) r.Term { return row.Field("subnetid").Eq("1") }).
		Filter(func(row r.Term) r.Term { return row.Field("type").Eq("dynamic") })).
		Return(metal.IPRanges{IPR3, IPR4}, nil)
	mock.On(r.DB("mockdb").Table("iprange").
		Filter(func(row r.Term) r.Term { return row.Field("subnetid").Eq("1") }).
		Filter(func(row r.Term) r.Term { return row.Field("type").Eq("reserved") }).
		Filter(func(row r.Term) r.Term { return row.Field("id").Ne("1") })).
		Return(metal.IPRanges{IPR2}, nil)
	mock.On(r.DB("mockdb").Table("ip").
		Filter(func(row r.Term) r.Term { return row.Field("subnetid").Eq("1") })).
		Return(metal.IPs{IP1, IP2}, nil)
	mock.On(r.DB("mockdb").Table("ip").
		Filter(func(row r.Term) r.Term { return row.Field("subnetid").Eq("1") }).
		Filter(func(row r.Term) r.Term { return row.Field("alloctype").Ne("discovered") })).
		Return(metal.IPs{IP1}, nil)
	mock.On(r.DB("mockdb").Table("staticroute").
		Filter(func(row r.Term) r.Term { return row.Field("sourcesubnetid").Eq("1") })).
		Return(metal.StaticRoutes{Sr1}, nil)
	mock.On(r.DB("mockdb").Table("discovery").
		Filter(func(row r.Term) r.Term { return row.Field("subnetid").Eq("1") })).
		Return(metal.Discoveries{D1}, nil)
}
