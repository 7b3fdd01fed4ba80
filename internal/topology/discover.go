package topology

import (
	"errors"
	"fmt"
	"sort"

	"k8s.io/apimachinery/pkg/util/sets"
)

var ErrTopology = errors.New("topology mismatch")

const (
	ReferencePackages = 4
	ReferenceDevices  = 4
)

// Discover builds the reference topology for a node class from its declared layout.
// Nothing is read from the running host.
func Discover(spec Spec) (*Topology, error) {
	if spec.ExpectedPackages > 0 && len(spec.Packages) != spec.ExpectedPackages {
		return nil, fmt.Errorf("%w: node %q declares %d packages, expected %d",
			ErrTopology, spec.Node, len(spec.Packages), spec.ExpectedPackages)
	}
	if spec.ExpectedDevices > 0 && len(spec.Devices) != spec.ExpectedDevices {
		return nil, fmt.Errorf("%w: node %q declares %d devices, expected %d",
			ErrTopology, spec.Node, len(spec.Devices), spec.ExpectedDevices)
	}
	if len(spec.Packages) == 0 || len(spec.Devices) == 0 {
		return nil, fmt.Errorf("%w: node %q has no packages or no devices", ErrTopology, spec.Node)
	}

	packageIDs := sets.New[int]()
	claimed := sets.New[int]()
	packages := make([]Package, 0, len(spec.Packages))
	for _, ps := range spec.Packages {
		if packageIDs.Has(ps.ID) {
			return nil, fmt.Errorf("%w: duplicate package id %d", ErrTopology, ps.ID)
		}
		packageIDs.Insert(ps.ID)

		cpus, err := ParseCPUList(ps.CPUs)
		if err != nil {
			return nil, fmt.Errorf("%w: package %d cpus %q: %v", ErrTopology, ps.ID, ps.CPUs, err)
		}
		overlap := claimed.Intersection(sets.New(cpus...))
		if overlap.Len() > 0 {
			return nil, fmt.Errorf("%w: package %d shares cpus %s with another package",
				ErrTopology, ps.ID, FormatCPUList(sets.List(overlap)))
		}
		claimed.Insert(cpus...)
		packages = append(packages, Package{ID: ps.ID, CPUs: cpus})
	}

	sort.Slice(packages, func(i, j int) bool {
		return packages[i].ID < packages[j].ID
	})
	for i := range packages {
		packages[i].Ordinal = i
	}

	deviceIDs := sets.New[int]()
	devices := make([]Device, 0, len(spec.Devices))
	for _, ds := range spec.Devices {
		if deviceIDs.Has(ds.ID) {
			return nil, fmt.Errorf("%w: duplicate device id %d", ErrTopology, ds.ID)
		}
		if !packageIDs.Has(ds.Package) {
			return nil, fmt.Errorf("%w: device %d attached to unknown package %d", ErrTopology, ds.ID, ds.Package)
		}
		deviceIDs.Insert(ds.ID)
		devices = append(devices, Device{ID: ds.ID, Package: ds.Package})
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID < devices[j].ID
	})

	return &Topology{
		Node:     spec.Node,
		Packages: packages,
		Devices:  devices,
	}, nil
}

// ReferenceSpec is the GH200-like layout: four 72-core packages, one GPU attached to each.
func ReferenceSpec(node string) Spec {
	spec := Spec{
		Node:             node,
		ExpectedPackages: ReferencePackages,
		ExpectedDevices:  ReferenceDevices,
	}
	for i := 0; i < ReferencePackages; i++ {
		spec.Packages = append(spec.Packages, PackageSpec{
			ID:   i,
			CPUs: formatRange(i*72, i*72+71),
		})
		spec.Devices = append(spec.Devices, DeviceSpec{ID: i, Package: i})
	}
	return spec
}
