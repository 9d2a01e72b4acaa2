// Package config holds the topology settings of MSHNet.
package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/sugarme/mshnet/base"
)

// Config describes an MSHNet topology.
type Config struct {
	// InputChannels is the channel count of the input image.
	InputChannels int64 `mapstructure:"input_channels"`
	// Channels holds encoder widths for stages 0-3 followed by the bottleneck width.
	Channels []int64 `mapstructure:"channels"`
	// Blocks holds residual block counts for encoder stages 1-3 and the bottleneck.
	// Decoder stage i reuses the count of encoder stage i. Stage 0 always has one block.
	Blocks []int64 `mapstructure:"blocks"`
	// PartialConv switches the first encoder block to partial convolution.
	PartialConv bool `mapstructure:"partial_conv"`
	// Activation is used inside partial convolution units.
	Activation string `mapstructure:"activation"`
	// SpatialKernel is the spatial attention kernel size, 3 or 7.
	SpatialKernel int64 `mapstructure:"spatial_kernel"`
}

// Default returns the reference topology for 3 channel input.
func Default() Config {
	return Config{
		InputChannels: 3,
		Channels:      []int64{16, 32, 64, 128, 256},
		Blocks:        []int64{2, 2, 2, 2},
		PartialConv:   false,
		Activation:    base.DefaultActivation.String(),
		SpatialKernel: 7,
	}
}

// Validate checks that the configuration can build a network.
func (c Config) Validate() error {
	if c.InputChannels <= 0 {
		return errors.Errorf("input channels must be positive. Got %v", c.InputChannels)
	}
	if len(c.Channels) != 5 {
		return errors.Errorf("expected 5 channel widths. Got %v", len(c.Channels))
	}
	for i, ch := range c.Channels {
		// channel attention bottleneck is ch/16 wide
		if ch < base.ChannelReduction {
			return errors.Errorf("channel width %d must be at least %v. Got %v", i, base.ChannelReduction, ch)
		}
	}
	if len(c.Blocks) != 4 {
		return errors.Errorf("expected 4 block counts. Got %v", len(c.Blocks))
	}
	for i, n := range c.Blocks {
		if n < 1 {
			return errors.Errorf("block count %d must be positive. Got %v", i, n)
		}
	}
	if c.PartialConv && c.Channels[0]%4 != 0 {
		return errors.Errorf("partial convolution needs channel width 0 divisible by 4. Got %v", c.Channels[0])
	}
	if c.SpatialKernel != 3 && c.SpatialKernel != 7 {
		return errors.Errorf("spatial kernel must be 3 or 7. Got %v", c.SpatialKernel)
	}
	if _, err := base.ParseActivation(c.Activation); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	return nil
}

// Act returns the parsed activation. It panics on an unknown name, so call
// it on a validated config only.
func (c Config) Act() base.Activation {
	act, err := base.ParseActivation(c.Activation)
	if err != nil {
		panic(errors.Wrap(err, "config.Act"))
	}
	return act
}

// Load reads a config file (yaml, json, toml...) on top of Default.
func Load(path string) (Config, error) {
	def := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("input_channels", def.InputChannels)
	v.SetDefault("channels", def.Channels)
	v.SetDefault("blocks", def.Blocks)
	v.SetDefault("partial_conv", def.PartialConv)
	v.SetDefault("activation", def.Activation)
	v.SetDefault("spatial_kernel", def.SpatialKernel)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, errors.Wrapf(err, "read config %q", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrapf(err, "decode config %q", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
