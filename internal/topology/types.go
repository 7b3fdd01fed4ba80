package topology

import "sort"

type Package struct {
	ID      int   `json:"id"`
	Ordinal int   `json:"ordinal"`
	CPUs    []int `json:"cpus"`
}

type Device struct {
	ID      int `json:"id"`
	Package int `json:"package"`
}

// Topology is the reference packages x devices layout of one node class.
// It is read-only once Discover returns it.
type Topology struct {
	Node     string    `json:"node"`
	Packages []Package `json:"packages"`
	Devices  []Device  `json:"devices"`
}

type PackageSpec struct {
	ID   int    `mapstructure:"id" json:"id"`
	CPUs string `mapstructure:"cpus" json:"cpus"`
}

type DeviceSpec struct {
	ID      int `mapstructure:"id" json:"id"`
	Package int `mapstructure:"package" json:"package"`
}

type Spec struct {
	Node             string
	ExpectedPackages int
	ExpectedDevices  int
	Packages         []PackageSpec
	Devices          []DeviceSpec
}

func (t *Topology) Package(id int) (Package, bool) {
	for _, p := range t.Packages {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}

func (t *Topology) Device(id int) (Device, bool) {
	for _, d := range t.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

func (t *Topology) PackageIDs() []int {
	ids := make([]int, 0, len(t.Packages))
	for _, p := range t.Packages {
		ids = append(ids, p.ID)
	}
	return ids
}

func (t *Topology) DeviceIDs() []int {
	ids := make([]int, 0, len(t.Devices))
	for _, d := range t.Devices {
		ids = append(ids, d.ID)
	}
	return ids
}

// PackageOf returns the reference package a device is attached to.
func (t *Topology) PackageOf(device int) (int, bool) {
	d, ok := t.Device(device)
	if !ok {
		return 0, false
	}
	return d.Package, true
}

func (t *Topology) DevicesOf(pkg int) []int {
	var devices []int
	for _, d := range t.Devices {
		if d.Package == pkg {
			devices = append(devices, d.ID)
		}
	}
	sort.Ints(devices)
	return devices
}

func (t *Topology) IsLocal(pkg, device int) bool {
	owner, ok := t.PackageOf(device)
	return ok && owner == pkg
}

func (t *Topology) TotalCPUs() int {
	total := 0
	for _, p := range t.Packages {
		total += len(p.CPUs)
	}
	return total
}
