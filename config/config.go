// Package config loads lighting build settings from TOML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
)

var (
	ErrMissingKey   = errors.New("config: missing required key")
	ErrInvalidValue = errors.New("config: invalid value")
)

// Swarm connection modes.
const (
	SwarmLocal  = "local"
	SwarmRemote = "remote"
)

// Volume lighting methods.
const (
	VolumetricLightmap = "volumetric-lightmap"
	SparseSamples      = "sparse-samples"
)

type Config struct {
	Swarm      Swarm      `toml:"swarm"`
	Export     Export     `toml:"export"`
	Visibility Visibility `toml:"visibility"`
	Volume     Volume     `toml:"volume"`
	Costs      TaskCosts  `toml:"costs"`
	Debug      Debug      `toml:"debug"`
}

type Swarm struct {
	// Either "local" or "remote".
	Mode string `toml:"mode"`

	// Agent address for remote mode.
	Address string `toml:"address"`

	// Number of local workers; 0 uses one per CPU.
	Workers int `toml:"workers"`

	// Directory shared with the workers for channel storage. Required.
	CacheDir string `toml:"cache_dir"`

	// Worker executables.
	Executable32 string `toml:"executable_32"`
	Executable64 string `toml:"executable_64"`
	Force32Bit   bool   `toml:"force_32bit"`

	RequiredDependencies []string `toml:"required_dependencies"`
	OptionalDependencies []string `toml:"optional_dependencies"`

	// Maximum time to wait for the agent handshake, in milliseconds.
	ConnectTimeoutMs int `toml:"connect_timeout_ms"`
}

type Export struct {
	// Per call time slice for the amortized material export.
	MaterialBudgetMs int `toml:"material_budget_ms"`

	// Number of progress updates emitted while exporting a scene.
	ProgressUpdates int `toml:"progress_updates"`

	// Material sample buffer edge lengths.
	DiffuseSampleSize      int `toml:"diffuse_sample_size"`
	EmissiveSampleSize     int `toml:"emissive_sample_size"`
	TransmissionSampleSize int `toml:"transmission_sample_size"`
	NormalSampleSize       int `toml:"normal_sample_size"`

	CompressChannels bool `toml:"compress_channels"`
}

type Visibility struct {
	Enabled              bool    `toml:"enabled"`
	CellSize             float32 `toml:"cell_size"`
	PlayAreaHeight       float32 `toml:"play_area_height"`
	SpreadingIterations  int     `toml:"spreading_iterations"`
	SpatialHashThreshold int     `toml:"spatial_hash_threshold"`
	CellBucketSize       int     `toml:"cell_bucket_size"`
	NumCellBuckets       int     `toml:"num_cell_buckets"`
	NumBuckets           int     `toml:"num_buckets"`
	ChunkSize            int     `toml:"chunk_size"`
	CompressionThreshold int     `toml:"compression_threshold"`
}

type Volume struct {
	Method           string `toml:"method"`
	BrickSize        int    `toml:"brick_size"`
	SubtasksPerBrick int    `toml:"subtasks_per_brick"`
	DistanceField    bool   `toml:"distance_field"`
}

// Relative costs passed to the scheduler for each task kind. Mapping tasks
// cost their texel count.
type TaskCosts struct {
	Visibility         int64 `toml:"visibility"`
	VolumetricLightmap int64 `toml:"volumetric_lightmap"`
	VolumeSamples      int64 `toml:"volume_samples"`
	MeshAreaLights     int64 `toml:"mesh_area_lights"`
	DirectionalShadow  int64 `toml:"directional_shadow"`
	PointShadow        int64 `toml:"point_shadow"`
	DistanceField      int64 `toml:"distance_field"`
}

type Debug struct {
	// Mapping whose texels should be traced with debug output.
	MappingGuid string `toml:"mapping_guid"`
	PadMappings bool   `toml:"pad_mappings"`
	ErrorColors bool   `toml:"error_colors"`
}

// Get a configuration populated with the default settings. The cache
// directory has no default.
func Default() *Config {
	return &Config{
		Swarm: Swarm{
			Mode:             SwarmLocal,
			Address:          "127.0.0.1:8787",
			Executable32:     "lightmass-worker-32",
			Executable64:     "lightmass-worker",
			ConnectTimeoutMs: 5000,
		},
		Export: Export{
			MaterialBudgetMs:       10,
			ProgressUpdates:        20,
			DiffuseSampleSize:      128,
			EmissiveSampleSize:     128,
			TransmissionSampleSize: 64,
			NormalSampleSize:       64,
			CompressChannels:       true,
		},
		Visibility: Visibility{
			CellSize:             200,
			PlayAreaHeight:       220,
			SpreadingIterations:  1,
			SpatialHashThreshold: 100000,
			CellBucketSize:       5,
			NumCellBuckets:       16,
			NumBuckets:           4,
			ChunkSize:            32 * 1024,
			CompressionThreshold: 32,
		},
		Volume: Volume{
			Method:           VolumetricLightmap,
			BrickSize:        4,
			SubtasksPerBrick: 8,
		},
		Costs: TaskCosts{
			Visibility:         10000,
			VolumetricLightmap: 10000,
			VolumeSamples:      1<<31 - 1,
			MeshAreaLights:     1000,
			DirectionalShadow:  1<<31 - 1,
			PointShadow:        1000,
			DistanceField:      1<<31 - 1,
		},
	}
}

// Load a configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse TOML settings on top of the defaults and validate the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Check the configuration and expand paths.
func (c *Config) Validate() error {
	if c.Swarm.CacheDir == "" {
		return fmt.Errorf("%w: swarm.cache_dir", ErrMissingKey)
	}
	cacheDir, err := homedir.Expand(c.Swarm.CacheDir)
	if err != nil {
		return err
	}
	c.Swarm.CacheDir = cacheDir

	switch c.Swarm.Mode {
	case SwarmLocal:
	case SwarmRemote:
		if c.Swarm.Address == "" {
			return fmt.Errorf("%w: swarm.address", ErrMissingKey)
		}
	default:
		return fmt.Errorf("%w: swarm.mode %q", ErrInvalidValue, c.Swarm.Mode)
	}

	switch c.Volume.Method {
	case VolumetricLightmap, SparseSamples:
	default:
		return fmt.Errorf("%w: volume.method %q", ErrInvalidValue, c.Volume.Method)
	}

	type positive struct {
		key   string
		value float64
	}
	for _, p := range []positive{
		{"export.material_budget_ms", float64(c.Export.MaterialBudgetMs)},
		{"export.progress_updates", float64(c.Export.ProgressUpdates)},
		{"visibility.cell_size", float64(c.Visibility.CellSize)},
		{"visibility.chunk_size", float64(c.Visibility.ChunkSize)},
		{"visibility.num_cell_buckets", float64(c.Visibility.NumCellBuckets)},
		{"visibility.cell_bucket_size", float64(c.Visibility.CellBucketSize)},
		{"volume.brick_size", float64(c.Volume.BrickSize)},
		{"volume.subtasks_per_brick", float64(c.Volume.SubtasksPerBrick)},
	} {
		if p.value <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidValue, p.key)
		}
	}
	return nil
}

func (e Export) MaterialBudget() time.Duration {
	return time.Duration(e.MaterialBudgetMs) * time.Millisecond
}

func (s Swarm) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutMs) * time.Millisecond
}
