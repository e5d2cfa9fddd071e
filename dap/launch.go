package dap

import (
	"encoding/json"

	"github.com/spf13/viper"

	"github.com/probe-rs/probe-rs-sub000/internal/session"
)

// LaunchConfig is the entity SPEC_FULL.md §4.1 names: the decoded form of a
// launch/attach request's Arguments, defaults registered with viper so a
// front end can override them via config file or environment variable
// without this package importing any front-end code.
type LaunchConfig struct {
	ProgramPath    string `mapstructure:"programPath"`
	ChipName       string `mapstructure:"chipName"`
	HaltAfterReset bool   `mapstructure:"haltAfterReset"`
	SvdPath        string `mapstructure:"svdPath"`
	Probe          string `mapstructure:"probe"`
}

func defaultLaunchViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("haltAfterReset", false)
	v.SetDefault("probe", "")
	v.SetDefault("svdPath", "")
	return v
}

func decodeLaunchConfig(arguments json.RawMessage) (LaunchConfig, error) {
	var raw map[string]interface{}
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &raw); err != nil {
			return LaunchConfig{}, err
		}
	}
	v := defaultLaunchViper()
	if err := v.MergeConfigMap(raw); err != nil {
		return LaunchConfig{}, err
	}
	var cfg LaunchConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return LaunchConfig{}, err
	}
	return cfg, nil
}

// TargetFactory constructs the probe-transport Target a launch/attach
// request should drive, given the decoded LaunchConfig. The dap package
// never talks to hardware itself (spec.md §6: the probe transport is an
// external collaborator) — a front end supplies this.
type TargetFactory func(LaunchConfig) (session.Target, error)
