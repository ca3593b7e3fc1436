package metal

import (
	"sort"
	"strings"
)

type (
	// BlockDeviceType distinguishes physical disks from virtual devices that
	// are backed by a filesystem group.
	BlockDeviceType string
	// PartitionTableType is the type of a partition table on a block device.
	PartitionTableType string
	// FilesystemType is the type of filesystem placed on a device or partition.
	FilesystemType string
	// FilesystemGroupType is the kind of a filesystem group.
	FilesystemGroupType string
	// CacheMode is the caching strategy of a bcache group.
	CacheMode string
)

const (
	// BlockDevicePhysical is a real disk attached to the machine.
	BlockDevicePhysical = BlockDeviceType("physical")
	// BlockDeviceVirtual is a device exposed by a filesystem group (lvm, raid, bcache, vmfs).
	BlockDeviceVirtual = BlockDeviceType("virtual")

	// PartitionTableMBR is a msdos partition table.
	PartitionTableMBR = PartitionTableType("mbr")
	// PartitionTableGPT is a GUID partition table.
	PartitionTableGPT = PartitionTableType("gpt")

	FilesystemExt4          = FilesystemType("ext4")
	FilesystemFat32         = FilesystemType("fat32")
	FilesystemSwap          = FilesystemType("swap")
	FilesystemTmpfs         = FilesystemType("tmpfs")
	FilesystemRaid          = FilesystemType("raid")
	FilesystemRaidSpare     = FilesystemType("raid-spare")
	FilesystemBcacheBacking = FilesystemType("bcache-backing")
	FilesystemBcacheCache   = FilesystemType("bcache-cache")
	FilesystemLVMPV         = FilesystemType("lvm-pv")
	FilesystemVMFS6         = FilesystemType("vmfs6")

	FilesystemGroupLVM    = FilesystemGroupType("lvm-vg")
	FilesystemGroupRaid0  = FilesystemGroupType("raid-0")
	FilesystemGroupRaid1  = FilesystemGroupType("raid-1")
	FilesystemGroupRaid5  = FilesystemGroupType("raid-5")
	FilesystemGroupRaid6  = FilesystemGroupType("raid-6")
	FilesystemGroupRaid10 = FilesystemGroupType("raid-10")
	FilesystemGroupBcache = FilesystemGroupType("bcache")
	FilesystemGroupVMFS6  = FilesystemGroupType("vmfs6")

	CacheModeWriteback    = CacheMode("writeback")
	CacheModeWritethrough = CacheMode("writethrough")
	CacheModeWritearound  = CacheMode("writearound")
)

// IsRaid returns true for all raid group types.
func (t FilesystemGroupType) IsRaid() bool {
	return strings.HasPrefix(string(t), "raid-")
}

// A BlockDevice is a disk visible on a machine. Physical devices are leaves,
// virtual devices are exposed by the filesystem group referenced by
// FilesystemGroupID.
type BlockDevice struct {
	ID                int64           `rethinkdb:"id" json:"id"`
	Name              string          `rethinkdb:"name" json:"name"`
	Type              BlockDeviceType `rethinkdb:"type" json:"type"`
	Model             string          `rethinkdb:"model" json:"model"`
	Serial            string          `rethinkdb:"serial" json:"serial"`
	IDPath            string          `rethinkdb:"idpath" json:"idpath"`
	Size              uint64          `rethinkdb:"size" json:"size"`
	FilesystemGroupID int64           `rethinkdb:"filesystemgroupid" json:"filesystemgroupid"`
}

// A PartitionTable sits on exactly one block device and owns an ordered
// sequence of partitions.
type PartitionTable struct {
	ID            int64              `rethinkdb:"id" json:"id"`
	BlockDeviceID int64              `rethinkdb:"blockdeviceid" json:"blockdeviceid"`
	Type          PartitionTableType `rethinkdb:"type" json:"type"`
}

// A Partition is a slice of a partition table.
type Partition struct {
	ID               int64  `rethinkdb:"id" json:"id"`
	PartitionTableID int64  `rethinkdb:"partitiontableid" json:"partitiontableid"`
	UUID             string `rethinkdb:"uuid" json:"uuid"`
	Size             uint64 `rethinkdb:"size" json:"size"`
	Bootable         bool   `rethinkdb:"bootable" json:"bootable"`
}

// A Filesystem lives on a block device or a partition, or on neither for
// machine level special filesystems like tmpfs. A filesystem that belongs to
// a filesystem group (raid member, lvm pv, bcache backing) or a cache set is
// never formatted on its own.
type Filesystem struct {
	ID                int64          `rethinkdb:"id" json:"id"`
	UUID              string         `rethinkdb:"uuid" json:"uuid"`
	Label             string         `rethinkdb:"label" json:"label"`
	Type              FilesystemType `rethinkdb:"type" json:"type"`
	MountPoint        string         `rethinkdb:"mountpoint" json:"mountpoint"`
	BlockDeviceID     int64          `rethinkdb:"blockdeviceid" json:"blockdeviceid"`
	PartitionID       int64          `rethinkdb:"partitionid" json:"partitionid"`
	FilesystemGroupID int64          `rethinkdb:"filesystemgroupid" json:"filesystemgroupid"`
	CacheSetID        int64          `rethinkdb:"cachesetid" json:"cachesetid"`
}

// A FilesystemGroup combines member filesystems into a volume group, raid
// array, bcache or vmfs datastore. If the group exposes a virtual block
// device, that device references the group via FilesystemGroupID.
type FilesystemGroup struct {
	ID         int64               `rethinkdb:"id" json:"id"`
	Name       string              `rethinkdb:"name" json:"name"`
	UUID       string              `rethinkdb:"uuid" json:"uuid"`
	Type       FilesystemGroupType `rethinkdb:"type" json:"type"`
	CacheMode  CacheMode           `rethinkdb:"cachemode" json:"cachemode"`
	CacheSetID int64               `rethinkdb:"cachesetid" json:"cachesetid"`
}

// StorageGraph is the fully assembled storage topology of one machine. All
// relationships are expressed as id references into the slices below, the
// graph is read only once assembled.
type StorageGraph struct {
	BootDiskID       int64             `rethinkdb:"bootdiskid" json:"bootdiskid"`
	BlockDevices     []BlockDevice     `rethinkdb:"blockdevices" json:"blockdevices"`
	PartitionTables  []PartitionTable  `rethinkdb:"partitiontables" json:"partitiontables"`
	Partitions       []Partition       `rethinkdb:"partitions" json:"partitions"`
	Filesystems      []Filesystem      `rethinkdb:"filesystems" json:"filesystems"`
	FilesystemGroups []FilesystemGroup `rethinkdb:"filesystemgroups" json:"filesystemgroups"`
}

// A Machine is a bare metal server with its storage topology and the facts
// that drive storage compilation.
type Machine struct {
	Base
	Architecture   string       `rethinkdb:"architecture" json:"architecture"`
	BIOSBootMethod string       `rethinkdb:"biosbootmethod" json:"biosbootmethod"`
	OSystem        string       `rethinkdb:"osystem" json:"osystem"`
	DistroSeries   string       `rethinkdb:"distroseries" json:"distroseries"`
	Storage        StorageGraph `rethinkdb:"storage" json:"storage"`
}

// Machines is a list of machines.
type Machines []Machine

// ArchName returns the plain architecture name, e.g. "amd64" for
// "amd64/generic".
func (m *Machine) ArchName() string {
	arch, _, _ := strings.Cut(m.Architecture, "/")
	return arch
}

// BlockDevicesSorted returns all block devices ordered by ascending id.
func (s *StorageGraph) BlockDevicesSorted() []BlockDevice {
	devices := make([]BlockDevice, len(s.BlockDevices))
	copy(devices, s.BlockDevices)
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices
}

// BlockDevice returns the block device with the given id, nil if absent.
func (s *StorageGraph) BlockDevice(id int64) *BlockDevice {
	for i := range s.BlockDevices {
		if s.BlockDevices[i].ID == id {
			return &s.BlockDevices[i]
		}
	}
	return nil
}

// BootDisk returns the machine's boot disk.
func (s *StorageGraph) BootDisk() *BlockDevice {
	return s.BlockDevice(s.BootDiskID)
}

// PartitionTableOf returns the partition table on the given device, nil if
// the device is not partitioned.
func (s *StorageGraph) PartitionTableOf(deviceID int64) *PartitionTable {
	for i := range s.PartitionTables {
		if s.PartitionTables[i].BlockDeviceID == deviceID {
			return &s.PartitionTables[i]
		}
	}
	return nil
}

// PartitionsOf returns the partitions of a table ordered by ascending id.
func (s *StorageGraph) PartitionsOf(tableID int64) []Partition {
	var partitions []Partition
	for _, p := range s.Partitions {
		if p.PartitionTableID == tableID {
			partitions = append(partitions, p)
		}
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i].ID < partitions[j].ID })
	return partitions
}

// Partition returns the partition with the given id, nil if absent.
func (s *StorageGraph) Partition(id int64) *Partition {
	for i := range s.Partitions {
		if s.Partitions[i].ID == id {
			return &s.Partitions[i]
		}
	}
	return nil
}

// FilesystemGroup returns the group with the given id, nil if absent.
func (s *StorageGraph) FilesystemGroup(id int64) *FilesystemGroup {
	for i := range s.FilesystemGroups {
		if s.FilesystemGroups[i].ID == id {
			return &s.FilesystemGroups[i]
		}
	}
	return nil
}

// FilesystemOnDevice returns the filesystem placed directly on the given
// block device, nil if the device carries none.
func (s *StorageGraph) FilesystemOnDevice(deviceID int64) *Filesystem {
	for i := range s.Filesystems {
		if s.Filesystems[i].BlockDeviceID == deviceID {
			return &s.Filesystems[i]
		}
	}
	return nil
}

// FilesystemOnPartition returns the filesystem on the given partition, nil
// if the partition carries none.
func (s *StorageGraph) FilesystemOnPartition(partitionID int64) *Filesystem {
	for i := range s.Filesystems {
		if s.Filesystems[i].PartitionID == partitionID {
			return &s.Filesystems[i]
		}
	}
	return nil
}

// EffectiveFilesystem resolves the filesystem of a device, which is the one
// placed directly on the device itself.
func (s *StorageGraph) EffectiveFilesystem(deviceID int64) *Filesystem {
	return s.FilesystemOnDevice(deviceID)
}

// MemberFilesystems returns the member filesystems of a group ordered by
// ascending id.
func (s *StorageGraph) MemberFilesystems(groupID int64) []Filesystem {
	var members []Filesystem
	for _, fs := range s.Filesystems {
		if fs.FilesystemGroupID == groupID {
			members = append(members, fs)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members
}

// CacheFilesystem returns the cache filesystem of a bcache group, matched
// through the shared cache set.
func (s *StorageGraph) CacheFilesystem(group *FilesystemGroup) *Filesystem {
	if group.CacheSetID == 0 {
		return nil
	}
	for i := range s.Filesystems {
		fs := &s.Filesystems[i]
		if fs.CacheSetID == group.CacheSetID && fs.Type == FilesystemBcacheCache {
			return fs
		}
	}
	return nil
}

// BackingFilesystem returns the backing filesystem of a bcache group.
func (s *StorageGraph) BackingFilesystem(group *FilesystemGroup) *Filesystem {
	for _, fs := range s.MemberFilesystems(group.ID) {
		if fs.Type == FilesystemBcacheBacking {
			f := fs
			return &f
		}
	}
	return nil
}

// VirtualDevice returns the virtual block device exposed by the given group,
// nil if the group exposes none.
func (s *StorageGraph) VirtualDevice(groupID int64) *BlockDevice {
	for i := range s.BlockDevices {
		bd := &s.BlockDevices[i]
		if bd.Type == BlockDeviceVirtual && bd.FilesystemGroupID == groupID {
			return bd
		}
	}
	return nil
}

// SpecialFilesystems returns machine level filesystems that are not tied to
// any block device or partition, e.g. tmpfs mounts.
func (s *StorageGraph) SpecialFilesystems() []Filesystem {
	var special []Filesystem
	for _, fs := range s.Filesystems {
		if fs.BlockDeviceID == 0 && fs.PartitionID == 0 && fs.MountPoint != "" {
			special = append(special, fs)
		}
	}
	sort.Slice(special, func(i, j int) bool { return special[i].ID < special[j].ID })
	return special
}

// DeviceName returns the name an operating system gives to a block device.
// Logical volumes are prefixed with their volume group name.
func (s *StorageGraph) DeviceName(bd *BlockDevice) string {
	if bd.Type == BlockDeviceVirtual {
		group := s.FilesystemGroup(bd.FilesystemGroupID)
		if group != nil && group.Type == FilesystemGroupLVM {
			return group.Name + "-" + bd.Name
		}
	}
	return bd.Name
}

// ParentDevice resolves the block device a filesystem ultimately sits on,
// walking through the partition table for partition backed filesystems.
func (s *StorageGraph) ParentDevice(fs *Filesystem) *BlockDevice {
	if fs.BlockDeviceID != 0 {
		return s.BlockDevice(fs.BlockDeviceID)
	}
	if fs.PartitionID != 0 {
		partition := s.Partition(fs.PartitionID)
		if partition == nil {
			return nil
		}
		for i := range s.PartitionTables {
			if s.PartitionTables[i].ID == partition.PartitionTableID {
				return s.BlockDevice(s.PartitionTables[i].BlockDeviceID)
			}
		}
	}
	return nil
}
