//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
package target

import (
	"io/ioutil"

	"github.com/juju/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/mongoose-os/mdbg/cli/debug/core"
)

type Family string

const (
	FamilyArm   Family = "arm"
	FamilyRiscv Family = "riscv"
)

// DebugSequence is the architecture-specific bring-up configuration for a
// target. The family tag is checked against the declared core type when
// attaching, a mismatch is a configuration error.
type DebugSequence struct {
	Family Family `yaml:"family"`
	// ResetCatch arms the reset vector catch before a reset-and-halt so
	// the core stops before executing any instruction.
	ResetCatch bool `yaml:"reset_catch"`
	// SWDClockHz overrides the probe's SWD clock, 0 means probe default.
	SWDClockHz uint32 `yaml:"swd_clock_hz"`
	// DMBase is the system bus address of a memory-mapped RISC-V Debug
	// Module.
	DMBase uint32 `yaml:"dm_base"`
}

// Target describes a chip: its name, core types and debug sequence.
type Target struct {
	Name          string        `yaml:"name"`
	Cores         []string      `yaml:"cores"`
	DebugSequence DebugSequence `yaml:"debug_sequence"`

	coreTypes []core.CoreType
}

// CoreTypes returns the parsed core type list.
func (t *Target) CoreTypes() []core.CoreType {
	return t.coreTypes
}

func (t *Target) validate() error {
	if t.Name == "" {
		return errors.NotValidf("target with no name")
	}
	if len(t.Cores) == 0 {
		return errors.NotValidf("target %q with no cores", t.Name)
	}
	switch t.DebugSequence.Family {
	case FamilyArm, FamilyRiscv:
	default:
		return errors.NotValidf("target %q debug sequence family %q", t.Name, t.DebugSequence.Family)
	}
	for _, c := range t.Cores {
		ct, err := core.ParseCoreType(c)
		if err != nil {
			return errors.Annotatef(err, "target %q", t.Name)
		}
		t.coreTypes = append(t.coreTypes, ct)
	}
	return nil
}

// Parse parses a single YAML target definition.
func Parse(data []byte) (*Target, error) {
	var t Target
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, errors.Annotatef(err, "invalid target definition")
	}
	if err := t.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &t, nil
}

// Load reads a target definition from a YAML file.
func Load(fname string) (*Target, error) {
	data, err := ioutil.ReadFile(fname)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to read target definition")
	}
	t, err := Parse(data)
	return t, errors.Trace(err)
}
