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
package debug

import (
	"context"

	"github.com/juju/errors"

	"github.com/mongoose-os/mdbg/cli/debug/arch/arm"
	"github.com/mongoose-os/mdbg/cli/debug/arch/riscv"
	"github.com/mongoose-os/mdbg/cli/debug/core"
	"github.com/mongoose-os/mdbg/cli/debug/probe"
	"github.com/mongoose-os/mdbg/cli/debug/target"
)

// SpecificCoreState is the architecture-tagged union over core variants.
// It owns the per-architecture mutable debug state and knows how to attach
// to a live probe session, producing a Core. ARM variants share a state
// representation; RISC-V state lives in its communication interface.
type SpecificCoreState struct {
	coreType core.CoreType
	arm      *arm.State
}

func NewSpecificCoreState(ct core.CoreType) *SpecificCoreState {
	scs := &SpecificCoreState{coreType: ct}
	if ct.Architecture() == core.ArchitectureArm {
		scs.arm = arm.NewState()
	}
	return scs
}

func (scs *SpecificCoreState) CoreType() core.CoreType {
	return scs.coreType
}

// AttachArm binds an ARM core to a live memory interface. The target's
// debug sequence family must be ARM, anything else is a configuration
// error (errors.IsNotValid).
func (scs *SpecificCoreState) AttachArm(ctx context.Context, state *core.CoreState, mem probe.MemoryInterface, seq target.DebugSequence) (*core.Core, error) {
	if seq.Family != target.FamilyArm {
		return nil, errors.NotValidf("core architecture and probe mismatch")
	}
	var inner core.CoreInterface
	var err error
	switch scs.coreType {
	case core.CoreTypeArmv6m:
		inner, err = arm.NewArmv6m(ctx, mem, scs.arm, seq)
	case core.CoreTypeArmv7m, core.CoreTypeArmv7em:
		inner, err = arm.NewArmv7m(ctx, mem, scs.arm, seq)
	case core.CoreTypeArmv8m:
		inner, err = arm.NewArmv8m(ctx, mem, scs.arm, seq)
	default:
		return nil, errors.NotValidf("core architecture and probe mismatch")
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	return core.New(inner, state), nil
}

// AttachRiscv binds a RISC-V core to a live Debug Module interface.
func (scs *SpecificCoreState) AttachRiscv(ctx context.Context, state *core.CoreState, iface riscv.CommunicationInterface) (*core.Core, error) {
	if scs.coreType != core.CoreTypeRiscv {
		return nil, errors.NotValidf("core architecture and probe mismatch")
	}
	inner, err := riscv.NewRiscv32(ctx, iface)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return core.New(inner, state), nil
}

// Attach dispatches on the configured debug sequence family.
func (scs *SpecificCoreState) Attach(ctx context.Context, state *core.CoreState, mem probe.MemoryInterface, t *target.Target) (*core.Core, error) {
	switch t.DebugSequence.Family {
	case target.FamilyArm:
		c, err := scs.AttachArm(ctx, state, mem, t.DebugSequence)
		return c, errors.Trace(err)
	case target.FamilyRiscv:
		iface := riscv.NewMemoryMappedInterface(mem, t.DebugSequence.DMBase)
		c, err := scs.AttachRiscv(ctx, state, iface)
		return c, errors.Trace(err)
	}
	return nil, errors.NotValidf("debug sequence family %q", t.DebugSequence.Family)
}

// CreateCores instantiates the specific state for every core a target
// declares.
func CreateCores(t *target.Target) []*SpecificCoreState {
	var res []*SpecificCoreState
	for _, ct := range t.CoreTypes() {
		res = append(res, NewSpecificCoreState(ct))
	}
	return res
}
