package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"gpubw/internal/topology"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const (
	DefaultName  = "gpubw"
	DefaultQueue = "shared"
)

func newViper(fs afero.Fs) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigName(DefaultName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")            // working directory first
	v.AddConfigPath("$HOME/.gpubw") // then home
	v.AddConfigPath("/etc/gpubw/")  // finally system wide
	v.SetEnvPrefix("GPUBW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	ref := topology.ReferenceSpec("gh200")

	packages := make([]map[string]interface{}, 0, len(ref.Packages))
	for _, p := range ref.Packages {
		packages = append(packages, map[string]interface{}{"id": p.ID, "cpus": p.CPUs})
	}
	devices := make([]map[string]interface{}, 0, len(ref.Devices))
	for _, d := range ref.Devices {
		devices = append(devices, map[string]interface{}{"id": d.ID, "package": d.Package})
	}

	v.SetDefault("general.debug", false)
	v.SetDefault("node.name", ref.Node)
	v.SetDefault("node.queue", DefaultQueue)
	v.SetDefault("node.expected_packages", ref.ExpectedPackages)
	v.SetDefault("node.expected_devices", ref.ExpectedDevices)
	v.SetDefault("node.half_resource_cap", 0)
	v.SetDefault("node.verify_host", false)
	v.SetDefault("node.packages", packages)
	v.SetDefault("node.devices", devices)
	v.SetDefault("probe.binary", "gpubw-probe")
	v.SetDefault("probe.args", []string{"--source", "{package}", "--devices", "{devices}"})
	v.SetDefault("probe.timeout", 2*time.Minute)
	v.SetDefault("probe.direction", "h2d")
	v.SetDefault("probe.local_device_ids", true)
	v.SetDefault("affinity.method", "numactl")
	v.SetDefault("scheduler.launcher", []string{"srun", "--partition={queue}", "--gres=gpu:{count}", "--ntasks=1", "--cpus-per-task=1"})
	v.SetDefault("scenario.jobs", 0)
	v.SetDefault("retry.on_timeout", true)
}

// Load reads path, or gpubw.yaml from the usual locations when path is empty. A missing
// file is only an error when path was given explicitly.
func Load(fs afero.Fs, path string) (*Config, error) {
	v := newViper(fs)
	if path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Probe.Binary) == "" {
		return fmt.Errorf("%w: probe.binary is required", ErrInvalidConfig)
	}
	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("%w: probe.timeout must be positive", ErrInvalidConfig)
	}
	switch strings.ToLower(c.Probe.Direction) {
	case "h2d", "d2h":
		c.Probe.Direction = strings.ToLower(c.Probe.Direction)
	default:
		return fmt.Errorf("%w: probe.direction %q (valid: h2d, d2h)", ErrInvalidConfig, c.Probe.Direction)
	}
	switch strings.ToLower(c.Affinity.Method) {
	case "numactl", "taskset", "sched":
		c.Affinity.Method = strings.ToLower(c.Affinity.Method)
	default:
		return fmt.Errorf("%w: affinity.method %q (valid: numactl, taskset, sched)", ErrInvalidConfig, c.Affinity.Method)
	}
	if c.Node.HalfResourceCap < 0 {
		return fmt.Errorf("%w: node.half_resource_cap must not be negative", ErrInvalidConfig)
	}
	if c.Scenario.Jobs < 0 {
		return fmt.Errorf("%w: scenario.jobs must not be negative", ErrInvalidConfig)
	}
	return nil
}
