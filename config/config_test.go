package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParse(t *testing.T) {
	type spec struct {
		input string
		exp   error
	}
	specs := []spec{
		{``, ErrMissingKey},
		{"[swarm]\ncache_dir = \"/tmp/cache\"\n", nil},
		{"[swarm]\ncache_dir = \"/tmp/cache\"\nmode = \"carrier-pigeon\"\n", ErrInvalidValue},
		{"[swarm]\ncache_dir = \"/tmp/cache\"\n[volume]\nmethod = \"magic\"\n", ErrInvalidValue},
		{"[swarm]\ncache_dir = \"/tmp/cache\"\n[visibility]\ncell_size = 0.0\n", ErrInvalidValue},
		{"[swarm]\ncache_dir = \"/tmp/cache\"\nmode = \"remote\"\naddress = \"\"\n", ErrMissingKey},
	}

	for index, s := range specs {
		_, err := Parse([]byte(s.input))
		if s.exp == nil && err != nil {
			t.Fatalf("[spec %d] unexpected error %v", index, err)
		}
		if s.exp != nil && !errors.Is(err, s.exp) {
			t.Fatalf("[spec %d] expected error %v; got %v", index, s.exp, err)
		}
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	if _, err := Parse([]byte("[swarm]\ncache_dir = \"/tmp\"\nbogus = 1\n")); err == nil {
		t.Fatal("expected an error for an unknown key")
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[swarm]
cache_dir = "/tmp/cache"
workers = 3

[export]
material_budget_ms = 25

[costs]
mesh_area_lights = 42

[visibility]
enabled = true
spreading_iterations = 2
`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Swarm.Workers != 3 {
		t.Fatalf("expected 3 workers; got %d", cfg.Swarm.Workers)
	}
	if got := cfg.Export.MaterialBudget().Milliseconds(); got != 25 {
		t.Fatalf("expected material budget of 25ms; got %d", got)
	}
	if cfg.Costs.MeshAreaLights != 42 {
		t.Fatalf("expected mesh area light cost 42; got %d", cfg.Costs.MeshAreaLights)
	}
	if !cfg.Visibility.Enabled || cfg.Visibility.SpreadingIterations != 2 {
		t.Fatalf("unexpected visibility settings %+v", cfg.Visibility)
	}

	// Untouched keys keep their defaults
	def := Default()
	if cfg.Visibility.ChunkSize != def.Visibility.ChunkSize || cfg.Costs.VolumeSamples != def.Costs.VolumeSamples {
		t.Fatal("expected untouched settings to keep their defaults")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lightmass.toml")
	if err := os.WriteFile(path, []byte("[swarm]\ncache_dir = \"/tmp/cache\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Swarm.CacheDir != "/tmp/cache" {
		t.Fatalf("unexpected cache dir %q", cfg.Swarm.CacheDir)
	}

	if _, err = Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
