// Package curtin compiles a machine's storage graph into an ordered list of
// declarative storage operations consumable by the curtin installer.
package curtin

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
)

// Fixed partition geometry. The installer leaves the first two mebibytes of
// every disk untouched for the partition table and bootloader embedding, and
// keeps one mebibyte at the end.
const (
	initialPartitionOffset   = 2 * 1024 * 1024
	partitionTableExtraSpace = 3 * 1024 * 1024
	prepPartitionSize        = 8 * 1024 * 1024
	biosGrubPartitionSize    = 1 * 1024 * 1024
	// the installer inserts a one mebibyte gap in front of every logical
	// partition on its own
	logicalPartitionGap = 1024 * 1024
)

const (
	bootMethodUEFI     = "uefi"
	bootMethodPowerNV  = "powernv"
	bootMethodPowerKVM = "powerkvm"

	archAMD64   = "amd64"
	archPPC64EL = "ppc64el"

	osEsxi = "esxi"
)

var raidLevels = map[metal.FilesystemGroupType]int{
	metal.FilesystemGroupRaid0:  0,
	metal.FilesystemGroupRaid1:  1,
	metal.FilesystemGroupRaid5:  5,
	metal.FilesystemGroupRaid6:  6,
	metal.FilesystemGroupRaid10: 10,
}

// buckets holds the classified entities of one storage graph, in the order
// they were discovered.
type buckets struct {
	disks          []metal.BlockDevice
	volumeGroups   []metal.FilesystemGroup
	logicalVolumes []metal.BlockDevice
	raids          []metal.FilesystemGroup
	bcaches        []metal.FilesystemGroup
	datastores     []metal.FilesystemGroup
	partitions     []metal.Partition
	formats        []metal.Filesystem
	mounts         []metal.Filesystem
}

type generator struct {
	machine *metal.Machine
	graph   *metal.StorageGraph

	grubDevices   map[int64]bool
	prepDisks     map[int64]bool
	biosGrubDisks map[int64]bool

	partitionNumbers map[int64]int
	partitionNames   map[int64]string

	b   buckets
	ops []Operation
}

// Generate compiles the machine's storage graph into an ordered list of
// operations. Every id an operation references is guaranteed to appear at an
// earlier position of the returned list. A malformed graph aborts the
// compilation, a partial storage plan is unsafe to execute.
func Generate(m *metal.Machine) ([]Operation, error) {
	g := &generator{
		machine:          m,
		graph:            &m.Storage,
		grubDevices:      map[int64]bool{},
		prepDisks:        map[int64]bool{},
		biosGrubDisks:    map[int64]bool{},
		partitionNumbers: map[int64]int{},
		partitionNames:   map[int64]string{},
	}

	if err := g.classify(); err != nil {
		return nil, err
	}
	g.determineGrubDevices()

	if err := g.generateDisks(); err != nil {
		return nil, err
	}
	g.numberPartitions()

	if err := g.generateVolumeGroups(); err != nil {
		return nil, err
	}
	if err := g.generateLogicalVolumes(); err != nil {
		return nil, err
	}
	if err := g.generateRaids(); err != nil {
		return nil, err
	}
	if err := g.generateBcaches(); err != nil {
		return nil, err
	}
	if err := g.generateDatastores(); err != nil {
		return nil, err
	}
	g.generatePartitions()
	if err := g.generateFormats(); err != nil {
		return nil, err
	}

	ordered, err := Order(g.ops)
	if err != nil {
		return nil, err
	}

	// mounts always go at the end of the plan
	mounts, err := g.mountOperations()
	if err != nil {
		return nil, err
	}
	return append(ordered, mounts...), nil
}

// classify walks every block device of the machine in ascending id order and
// sorts the graph's entities into the generation buckets.
func (g *generator) classify() error {
	for _, bd := range g.graph.BlockDevicesSorted() {
		switch bd.Type {
		case metal.BlockDevicePhysical:
			g.b.disks = append(g.b.disks, bd)
		case metal.BlockDeviceVirtual:
			group := g.graph.FilesystemGroup(bd.FilesystemGroupID)
			if group == nil {
				return metal.MalformedGraph("virtual block device %d (%s) has no filesystem group", bd.ID, bd.Name)
			}
			if err := g.bucketGroup(group); err != nil {
				return err
			}
			if group.Type == metal.FilesystemGroupLVM {
				g.b.logicalVolumes = append(g.b.logicalVolumes, bd)
			}
		default:
			return metal.MalformedGraph("unknown block device type %q of device %d", bd.Type, bd.ID)
		}
	}

	// filesystem groups without a virtual block device, e.g. a volume group
	// consumed directly on a physical disk, are only reachable through their
	// member filesystems
	filesystems := make([]metal.Filesystem, len(g.graph.Filesystems))
	copy(filesystems, g.graph.Filesystems)
	sort.Slice(filesystems, func(i, j int) bool { return filesystems[i].ID < filesystems[j].ID })
	for i := range filesystems {
		fs := &filesystems[i]
		if fs.FilesystemGroupID == 0 {
			continue
		}
		group := g.graph.FilesystemGroup(fs.FilesystemGroupID)
		if group == nil {
			return metal.MalformedGraph("filesystem %d references unknown filesystem group %d", fs.ID, fs.FilesystemGroupID)
		}
		if err := g.bucketGroup(group); err != nil {
			return err
		}
	}

	for _, bd := range g.graph.BlockDevicesSorted() {
		table := g.graph.PartitionTableOf(bd.ID)
		if table == nil {
			continue
		}
		g.b.partitions = append(g.b.partitions, g.graph.PartitionsOf(table.ID)...)
	}

	for _, bd := range g.graph.BlockDevicesSorted() {
		fs := g.graph.FilesystemOnDevice(bd.ID)
		if requiresFormat(fs) {
			g.b.formats = append(g.b.formats, *fs)
			if fs.MountPoint != "" {
				g.b.mounts = append(g.b.mounts, *fs)
			}
			continue
		}
		table := g.graph.PartitionTableOf(bd.ID)
		if table == nil {
			continue
		}
		for _, p := range g.graph.PartitionsOf(table.ID) {
			pfs := g.graph.FilesystemOnPartition(p.ID)
			if requiresFormat(pfs) {
				g.b.formats = append(g.b.formats, *pfs)
				if pfs.MountPoint != "" {
					g.b.mounts = append(g.b.mounts, *pfs)
				}
			}
		}
	}

	// machine level special filesystems are always mounted
	g.b.mounts = append(g.b.mounts, g.graph.SpecialFilesystems()...)
	return nil
}

func (g *generator) bucketGroup(group *metal.FilesystemGroup) error {
	switch {
	case group.Type == metal.FilesystemGroupLVM:
		appendGroupOnce(&g.b.volumeGroups, group)
	case group.Type.IsRaid():
		appendGroupOnce(&g.b.raids, group)
	case group.Type == metal.FilesystemGroupBcache:
		appendGroupOnce(&g.b.bcaches, group)
	case group.Type == metal.FilesystemGroupVMFS6:
		appendGroupOnce(&g.b.datastores, group)
	default:
		return metal.MalformedGraph("unknown filesystem group type %q of group %d", group.Type, group.ID)
	}
	return nil
}

func appendGroupOnce(groups *[]metal.FilesystemGroup, group *metal.FilesystemGroup) {
	for i := range *groups {
		if (*groups)[i].ID == group.ID {
			return
		}
	}
	*groups = append(*groups, *group)
}

// requiresFormat reports whether a filesystem gets its own format operation.
// Members of a filesystem group or a cache set are consumed by the group and
// never formatted on their own.
func requiresFormat(fs *metal.Filesystem) bool {
	return fs != nil && fs.FilesystemGroupID == 0 && fs.CacheSetID == 0
}

// determineGrubDevices computes the set of disks grub must be installed on.
// When the boot disk backs a raid, grub goes onto every member disk of that
// raid so the machine stays bootable after a member failure. Otherwise the
// boot disk alone is the grub device.
func (g *generator) determineGrubDevices() {
	boot := g.graph.BootDisk()
	if boot == nil {
		return
	}
	for i := range g.b.raids {
		members := map[int64]bool{}
		for _, fs := range g.graph.MemberFilesystems(g.b.raids[i].ID) {
			fs := fs
			parent := g.graph.ParentDevice(&fs)
			if parent != nil && parent.Type == metal.BlockDevicePhysical {
				members[parent.ID] = true
			}
		}
		if members[boot.ID] {
			g.grubDevices = members
			return
		}
	}
	g.grubDevices[boot.ID] = true
}

func (g *generator) generateDisks() error {
	for i := range g.b.disks {
		if err := g.generateDiskOperation(&g.b.disks[i]); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) generateDiskOperation(bd *metal.BlockDevice) error {
	name := g.graph.DeviceName(bd)
	op := Operation{
		ID:   name,
		Name: name,
		Type: OperationDisk,
		Wipe: "superblock",
	}
	// model and serial survive a disk replacement at the same path, prefer
	// them over the id path
	if bd.Model != "" && bd.Serial != "" {
		op.Model = bd.Model
		op.Serial = bd.Serial
	} else {
		op.Path = bd.IDPath
	}

	grub := g.grubDevices[bd.ID]
	ptable := ""
	if table := g.graph.PartitionTableOf(bd.ID); table != nil {
		var err error
		ptable, err = ptableType(table.Type)
		if err != nil {
			return err
		}
	} else if grub {
		ptable = g.synthesizePtable()
	}
	if ptable != "" {
		op.PTable = ptable
	}

	if grub {
		switch {
		case g.machine.ArchName() == archPPC64EL:
			g.prepDisks[bd.ID] = true
		case g.machine.ArchName() == archAMD64 &&
			g.machine.BIOSBootMethod != bootMethodUEFI &&
			ptable == "gpt" &&
			g.machine.OSystem != osEsxi:
			g.biosGrubDisks[bd.ID] = true
		}
		// on ppc64el grub lives in the dedicated prep partition, not in the
		// partition table header
		if !g.prepDisks[bd.ID] {
			op.GrubDevice = true
		}
	}

	g.ops = append(g.ops, op)
	return nil
}

func ptableType(t metal.PartitionTableType) (string, error) {
	switch t {
	case metal.PartitionTableMBR:
		return "msdos", nil
	case metal.PartitionTableGPT:
		return "gpt", nil
	default:
		return "", metal.MalformedGraph("unknown partition table type %q", t)
	}
}

// synthesizePtable picks the partition table type for an unpartitioned grub
// device disk.
func (g *generator) synthesizePtable() string {
	switch g.machine.BIOSBootMethod {
	case bootMethodUEFI, bootMethodPowerNV, bootMethodPowerKVM:
		return "gpt"
	}
	if g.machine.ArchName() == archAMD64 {
		return "gpt"
	}
	return "msdos"
}

// numberPartitions assigns every partition its number and name. A synthetic
// boot partition shifts the real partitions by one; an mbr table with more
// than four slots reserves number 4 for the extended partition.
func (g *generator) numberPartitions() {
	for _, bd := range g.graph.BlockDevicesSorted() {
		bd := bd
		table := g.graph.PartitionTableOf(bd.ID)
		if table == nil {
			continue
		}
		partitions := g.graph.PartitionsOf(table.ID)
		shift := 0
		if g.prepDisks[bd.ID] || g.biosGrubDisks[bd.ID] {
			shift = 1
		}
		total := len(partitions) + shift
		for idx, p := range partitions {
			number := idx + 1 + shift
			if table.Type == metal.PartitionTableMBR && total > 4 && number > 3 {
				number++
			}
			g.partitionNumbers[p.ID] = number
			g.partitionNames[p.ID] = fmt.Sprintf("%s-part%d", g.graph.DeviceName(&bd), number)
		}
	}
}

func (g *generator) generatePartitions() {
	for _, bd := range g.graph.BlockDevicesSorted() {
		bd := bd
		if g.prepDisks[bd.ID] || g.biosGrubDisks[bd.ID] {
			g.generateBootPartitionOperation(&bd)
		}
		table := g.graph.PartitionTableOf(bd.ID)
		if table == nil {
			continue
		}
		partitions := g.graph.PartitionsOf(table.ID)
		for i := range partitions {
			g.generatePartitionOperation(&bd, table, &partitions[i], partitions)
		}
	}
}

// generateBootPartitionOperation injects the synthetic boot partition as
// partition number 1 of a grub device disk. It owns the initial disk offset,
// so the first real partition does not carry one.
func (g *generator) generateBootPartitionOperation(bd *metal.BlockDevice) {
	name := fmt.Sprintf("%s-part1", g.graph.DeviceName(bd))
	op := Operation{
		ID:     name,
		Name:   name,
		Type:   OperationPartition,
		Number: 1,
		Offset: renderSize(initialPartitionOffset),
		Device: g.graph.DeviceName(bd),
		Wipe:   "superblock",
	}
	if g.prepDisks[bd.ID] {
		op.Size = renderSize(prepPartitionSize)
		op.Flag = "prep"
		op.GrubDevice = true
	} else {
		op.Size = renderSize(biosGrubPartitionSize)
		op.Flag = "bios_grub"
	}
	g.ops = append(g.ops, op)
}

func (g *generator) generatePartitionOperation(bd *metal.BlockDevice, table *metal.PartitionTable, p *metal.Partition, all []metal.Partition) {
	number := g.partitionNumbers[p.ID]
	op := Operation{
		ID:     g.partitionNames[p.ID],
		Name:   g.partitionNames[p.ID],
		Type:   OperationPartition,
		Number: number,
		UUID:   p.UUID,
		Device: g.graph.DeviceName(bd),
		Wipe:   "superblock",
	}
	if number == 1 {
		op.Offset = renderSize(initialPartitionOffset)
	}
	if p.Bootable {
		op.Flag = "boot"
	}
	size := p.Size
	if table.Type == metal.PartitionTableMBR && number >= 5 {
		if number == 5 {
			g.ops = append(g.ops, g.extendedPartitionOperation(bd, all))
		}
		op.Flag = "logical"
		size -= logicalPartitionGap
	}
	op.Size = renderSize(size)
	g.ops = append(g.ops, op)
}

// extendedPartitionOperation computes the extended partition spanning all
// logical partitions: everything past the primaries, minus the gap the
// installer inserts in front of every logical partition.
func (g *generator) extendedPartitionOperation(bd *metal.BlockDevice, all []metal.Partition) Operation {
	var primaries uint64
	logicals := uint64(0)
	for _, p := range all {
		if g.partitionNumbers[p.ID] >= 5 {
			logicals++
		} else {
			primaries += p.Size
		}
	}
	if g.prepDisks[bd.ID] {
		primaries += prepPartitionSize
	}
	if g.biosGrubDisks[bd.ID] {
		primaries += biosGrubPartitionSize
	}
	size := bd.Size - partitionTableExtraSpace - primaries - logicals*logicalPartitionGap
	return Operation{
		ID:     fmt.Sprintf("%s-part4", g.graph.DeviceName(bd)),
		Type:   OperationPartition,
		Number: 4,
		Size:   renderSize(size),
		Device: g.graph.DeviceName(bd),
		Flag:   "extended",
	}
}

func (g *generator) generateVolumeGroups() error {
	for i := range g.b.volumeGroups {
		group := &g.b.volumeGroups[i]
		devices, err := g.memberNames(group.ID)
		if err != nil {
			return err
		}
		g.ops = append(g.ops, Operation{
			ID:      group.Name,
			Name:    group.Name,
			Type:    OperationVolumeGroup,
			UUID:    group.UUID,
			Devices: devices,
		})
	}
	return nil
}

func (g *generator) generateLogicalVolumes() error {
	for i := range g.b.logicalVolumes {
		bd := &g.b.logicalVolumes[i]
		group := g.volumeGroupOf(bd)
		if group == nil {
			return metal.MalformedGraph("logical volume %d (%s) has no volume group", bd.ID, bd.Name)
		}
		g.ops = append(g.ops, Operation{
			ID:       group.Name + "-" + bd.Name,
			Name:     bd.Name,
			Type:     OperationLogicalVolume,
			VolGroup: group.Name,
			Size:     renderSize(bd.Size),
		})
	}
	return nil
}

// volumeGroupOf resolves the owning volume group of a logical volume. Volume
// groups created directly on a physical disk do not backlink their logical
// volumes, those resolve through the pv member filesystems instead.
func (g *generator) volumeGroupOf(bd *metal.BlockDevice) *metal.FilesystemGroup {
	if group := g.graph.FilesystemGroup(bd.FilesystemGroupID); group != nil {
		return group
	}
	var candidate *metal.FilesystemGroup
	for i := range g.graph.Filesystems {
		fs := &g.graph.Filesystems[i]
		if fs.Type != metal.FilesystemLVMPV || fs.FilesystemGroupID == 0 {
			continue
		}
		group := g.graph.FilesystemGroup(fs.FilesystemGroupID)
		if group == nil || group.Type != metal.FilesystemGroupLVM {
			continue
		}
		if candidate != nil && candidate.ID != group.ID {
			// ambiguous, cannot decide which group owns the volume
			return nil
		}
		candidate = group
	}
	return candidate
}

func (g *generator) generateRaids() error {
	for i := range g.b.raids {
		group := &g.b.raids[i]
		level, ok := raidLevels[group.Type]
		if !ok {
			return metal.MalformedGraph("unknown raid level for filesystem group type %q", group.Type)
		}
		var devices, spares []string
		for _, fs := range g.graph.MemberFilesystems(group.ID) {
			fs := fs
			name, err := g.parentName(&fs)
			if err != nil {
				return err
			}
			switch fs.Type {
			case metal.FilesystemRaid:
				devices = append(devices, name)
			case metal.FilesystemRaidSpare:
				spares = append(spares, name)
			}
		}
		sort.Strings(devices)
		sort.Strings(spares)
		op := Operation{
			ID:           group.Name,
			Name:         group.Name,
			Type:         OperationRaid,
			RaidLevel:    &level,
			Devices:      devices,
			SpareDevices: spares,
		}
		if err := g.virtualDevicePtable(group.ID, &op); err != nil {
			return err
		}
		g.ops = append(g.ops, op)
	}
	return nil
}

func (g *generator) generateBcaches() error {
	for i := range g.b.bcaches {
		group := &g.b.bcaches[i]
		backing := g.graph.BackingFilesystem(group)
		if backing == nil {
			return metal.MalformedGraph("bcache group %d (%s) has no backing filesystem", group.ID, group.Name)
		}
		cache := g.graph.CacheFilesystem(group)
		if cache == nil {
			return metal.MalformedGraph("bcache group %d (%s) has no cache filesystem", group.ID, group.Name)
		}
		backingName, err := g.parentName(backing)
		if err != nil {
			return err
		}
		cacheName, err := g.parentName(cache)
		if err != nil {
			return err
		}
		op := Operation{
			ID:            group.Name,
			Name:          group.Name,
			Type:          OperationBcache,
			BackingDevice: backingName,
			CacheDevice:   cacheName,
			CacheMode:     string(group.CacheMode),
		}
		if err := g.virtualDevicePtable(group.ID, &op); err != nil {
			return err
		}
		g.ops = append(g.ops, op)
	}
	return nil
}

func (g *generator) generateDatastores() error {
	for i := range g.b.datastores {
		group := &g.b.datastores[i]
		devices, err := g.memberNames(group.ID)
		if err != nil {
			return err
		}
		g.ops = append(g.ops, Operation{
			ID:      group.Name,
			Name:    group.Name,
			Type:    OperationVMFS6,
			Devices: devices,
		})
	}
	return nil
}

func (g *generator) generateFormats() error {
	for i := range g.b.formats {
		fs := &g.b.formats[i]
		name, err := g.parentName(fs)
		if err != nil {
			return err
		}
		op := Operation{
			ID:     name + "_format",
			Type:   OperationFormat,
			FSType: string(fs.Type),
			UUID:   fs.UUID,
			Label:  fs.Label,
			Volume: name,
		}
		if fs.Type == metal.FilesystemExt4 && needsNoMetadataCsum(g.machine.OSystem, g.machine.DistroSeries) {
			// old enterprise linux mount tooling cannot read ext4 metadata
			// checksums
			op.ExtraOptions = []string{"-O", "^metadata_csum"}
		}
		g.ops = append(g.ops, op)
	}
	return nil
}

func needsNoMetadataCsum(osystem, series string) bool {
	if osystem != "centos" && osystem != "rhel" {
		return false
	}
	v, err := semver.NewVersion(series)
	if err != nil {
		return false
	}
	return v.Major() < 8
}

// mountOperations renders the mount bucket sorted by mount point. The
// installer mounts strictly in list order, a parent directory must be mounted
// before any path below it; the sort key is the plain mount point string.
func (g *generator) mountOperations() ([]Operation, error) {
	mounts := make([]metal.Filesystem, len(g.b.mounts))
	copy(mounts, g.b.mounts)
	sort.SliceStable(mounts, func(i, j int) bool { return mounts[i].MountPoint < mounts[j].MountPoint })

	ops := make([]Operation, 0, len(mounts))
	for i := range mounts {
		fs := &mounts[i]
		if fs.BlockDeviceID == 0 && fs.PartitionID == 0 {
			name := strings.ReplaceAll(strings.Trim(fs.MountPoint, "/"), "/", "-")
			ops = append(ops, Operation{
				ID:     name + "_mount",
				Type:   OperationMount,
				Path:   fs.MountPoint,
				FSType: string(fs.Type),
			})
			continue
		}
		name, err := g.parentName(fs)
		if err != nil {
			return nil, err
		}
		ops = append(ops, Operation{
			ID:     name + "_mount",
			Type:   OperationMount,
			Path:   fs.MountPoint,
			Device: name + "_format",
		})
	}
	return ops, nil
}

// memberNames returns the names of the devices and partitions carrying the
// member filesystems of a group, sorted lexicographically for reproducible
// output.
func (g *generator) memberNames(groupID int64) ([]string, error) {
	members := g.graph.MemberFilesystems(groupID)
	names := make([]string, 0, len(members))
	for i := range members {
		name, err := g.parentName(&members[i])
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// parentName resolves the operation id of the device or partition a
// filesystem sits on.
func (g *generator) parentName(fs *metal.Filesystem) (string, error) {
	if fs.PartitionID != 0 {
		if name, ok := g.partitionNames[fs.PartitionID]; ok {
			return name, nil
		}
		return "", metal.MalformedGraph("filesystem %d references unknown partition %d", fs.ID, fs.PartitionID)
	}
	if fs.BlockDeviceID != 0 {
		bd := g.graph.BlockDevice(fs.BlockDeviceID)
		if bd == nil {
			return "", metal.MalformedGraph("filesystem %d references unknown block device %d", fs.ID, fs.BlockDeviceID)
		}
		return g.graph.DeviceName(bd), nil
	}
	return "", metal.MalformedGraph("filesystem %d is not placed on a device or partition", fs.ID)
}

func (g *generator) virtualDevicePtable(groupID int64, op *Operation) error {
	bd := g.graph.VirtualDevice(groupID)
	if bd == nil {
		return nil
	}
	table := g.graph.PartitionTableOf(bd.ID)
	if table == nil {
		return nil
	}
	ptable, err := ptableType(table.Type)
	if err != nil {
		return err
	}
	op.PTable = ptable
	return nil
}

func renderSize(size uint64) string {
	return fmt.Sprintf("%dB", size)
}
