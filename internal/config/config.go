package config

import (
	"time"

	"gpubw/internal/topology"
)

type Config struct {
	General   General   `mapstructure:"general"`
	Node      Node      `mapstructure:"node"`
	Probe     Probe     `mapstructure:"probe"`
	Affinity  Affinity  `mapstructure:"affinity"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	Scenario  Scenario  `mapstructure:"scenario"`
	Retry     Retry     `mapstructure:"retry"`
}

type General struct {
	Debug bool `mapstructure:"debug"`
}

// Node identity and resource caps are declared, never probed from the OS.
type Node struct {
	Name             string                 `mapstructure:"name"`
	Queue            string                 `mapstructure:"queue"`
	ExpectedPackages int                    `mapstructure:"expected_packages"`
	ExpectedDevices  int                    `mapstructure:"expected_devices"`
	HalfResourceCap  int                    `mapstructure:"half_resource_cap"` // 0 means devices/2
	VerifyHost       bool                   `mapstructure:"verify_host"`
	Packages         []topology.PackageSpec `mapstructure:"packages"`
	Devices          []topology.DeviceSpec  `mapstructure:"devices"`
}

type Probe struct {
	Binary         string        `mapstructure:"binary"`
	Args           []string      `mapstructure:"args"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Direction      string        `mapstructure:"direction"`
	LocalDeviceIDs bool          `mapstructure:"local_device_ids"` // probe numbers devices from 0 inside a job
	Env            []string      `mapstructure:"env"`
}

type Affinity struct {
	Method string `mapstructure:"method"`
}

type Scheduler struct {
	Launcher []string `mapstructure:"launcher"`
}

type Scenario struct {
	Jobs int `mapstructure:"jobs"`
}

type Retry struct {
	OnTimeout bool `mapstructure:"on_timeout"`
}

func (n Node) TopologySpec() topology.Spec {
	return topology.Spec{
		Node:             n.Name,
		ExpectedPackages: n.ExpectedPackages,
		ExpectedDevices:  n.ExpectedDevices,
		Packages:         n.Packages,
		Devices:          n.Devices,
	}
}
