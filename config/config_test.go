package config_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/sugarme/mshnet/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	want := []int64{16, 32, 64, 128, 256}
	if !reflect.DeepEqual(cfg.Channels, want) {
		t.Errorf("want channels %v, got %v", want, cfg.Channels)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *config.Config)
	}{
		{"no input", func(c *config.Config) { c.InputChannels = 0 }},
		{"short channels", func(c *config.Config) { c.Channels = []int64{16, 32, 64, 128} }},
		{"narrow channel", func(c *config.Config) { c.Channels = []int64{8, 32, 64, 128, 256} }},
		{"short blocks", func(c *config.Config) { c.Blocks = []int64{2, 2, 2} }},
		{"zero blocks", func(c *config.Config) { c.Blocks = []int64{2, 0, 2, 2} }},
		{"pconv width", func(c *config.Config) {
			c.PartialConv = true
			c.Channels = []int64{18, 32, 64, 128, 256}
		}},
		{"spatial kernel", func(c *config.Config) { c.SpatialKernel = 5 }},
		{"activation", func(c *config.Config) { c.Activation = "tanhshrink" }},
	}

	for _, tt := range tests {
		cfg := config.Default()
		tt.modify(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%v: want error", tt.name)
		}
	}
}

func TestLoad(t *testing.T) {
	dir, err := ioutil.TempDir("", "mshnet-config")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	data := []byte(`
input_channels: 1
partial_conv: true
activation: relu
blocks: [1, 1, 2, 2]
`)
	path := filepath.Join(dir, "mshnet.yaml")
	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.InputChannels != 1 {
		t.Errorf("want 1 input channel, got %v", cfg.InputChannels)
	}
	if !cfg.PartialConv {
		t.Error("want partial conv enabled")
	}
	if cfg.Activation != "relu" {
		t.Errorf("want relu, got %v", cfg.Activation)
	}
	if !reflect.DeepEqual(cfg.Blocks, []int64{1, 1, 2, 2}) {
		t.Errorf("want blocks [1 1 2 2], got %v", cfg.Blocks)
	}
	// not in file, so default
	if !reflect.DeepEqual(cfg.Channels, config.Default().Channels) {
		t.Errorf("want default channels, got %v", cfg.Channels)
	}
	if cfg.SpatialKernel != 7 {
		t.Errorf("want spatial kernel 7, got %v", cfg.SpatialKernel)
	}
}

func TestLoadInvalid(t *testing.T) {
	dir, err := ioutil.TempDir("", "mshnet-config")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "bad.json")
	if err := ioutil.WriteFile(path, []byte(`{"spatial_kernel": 5}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err == nil {
		t.Error("want error for spatial kernel 5")
	}

	if _, err := config.Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("want error for missing file")
	}
}

func TestActPanicsOnUnknownName(t *testing.T) {
	cfg := config.Default()
	if got := cfg.Act().String(); got != "silu" {
		t.Errorf("want silu, got %v", got)
	}

	cfg.Activation = "swish2"
	defer func() {
		if r := recover(); r == nil {
			t.Error("want panic for unknown activation")
		}
	}()
	cfg.Act()
}
