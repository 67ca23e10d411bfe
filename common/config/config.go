// The MIT License
//
// Copyright (c) 2020 Temporal Technologies Inc.  All rights reserved.
//
// Copyright (c) 2020 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type (
	// Config is the static configuration of one runtime process.
	Config struct {
		// AddressSpace is this process's address-space id.
		AddressSpace uint32 `yaml:"addressSpace"`

		Executor Executor `yaml:"executor"`
		Steal    Steal    `yaml:"steal"`

		// DynamicConfigPath points at the dynamic config yaml file.
		// Empty disables file-based dynamic config.
		DynamicConfigPath string `yaml:"dynamicConfigPath"`
	}

	Executor struct {
		WorkerCount int `yaml:"workerCount"`
		LaneCount   int `yaml:"laneCount"`
	}

	Steal struct {
		Enabled       bool    `yaml:"enabled"`
		RatePerSecond float64 `yaml:"ratePerSecond"`
		Burst         int     `yaml:"burst"`
	}
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Executor: Executor{
			WorkerCount: 8,
			LaneCount:   16,
		},
		Steal: Steal{
			Enabled:       true,
			RatePerSecond: 100,
			Burst:         10,
		},
	}
}

// Load reads a yaml config file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %w", path, err)
	}
	if cfg.Executor.WorkerCount <= 0 || cfg.Executor.LaneCount <= 0 {
		return nil, fmt.Errorf("config: executor worker and lane counts must be positive")
	}
	return cfg, nil
}
