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
package core

import (
	"context"
	"time"

	"github.com/mongoose-os/mdbg/cli/debug/probe"
)

// CoreInformation is returned by operations that leave the core halted.
type CoreInformation struct {
	PC uint32
}

// CoreInterface is the capability set an architecture backend implements.
// It embeds the probe's memory access so a core can be used directly as a
// memory-mapped debug target.
//
// Halt, WaitForCoreHalted and ResetAndHalt poll the core state and return
// a timeout error (errors.IsTimeout) if the core does not reach halted
// state within the given duration.
type CoreInterface interface {
	probe.MemoryInterface

	WaitForCoreHalted(ctx context.Context, timeout time.Duration) error
	CoreHalted(ctx context.Context) (bool, error)
	Status(ctx context.Context) (CoreStatus, error)
	Halt(ctx context.Context, timeout time.Duration) (*CoreInformation, error)
	Run(ctx context.Context) error
	// Reset resets the core and lets it run. Use ResetAndHalt to halt at
	// the reset vector instead.
	Reset(ctx context.Context) error
	ResetAndHalt(ctx context.Context, timeout time.Duration) (*CoreInformation, error)
	// Step executes one instruction and enters halted state again.
	Step(ctx context.Context) (*CoreInformation, error)

	ReadCoreReg(ctx context.Context, addr CoreRegisterAddress) (uint32, error)
	WriteCoreReg(ctx context.Context, addr CoreRegisterAddress, value uint32) error

	AvailableBreakpointUnits(ctx context.Context) (int, error)
	// HWBreakpoints reports the address programmed into every comparator
	// slot, nil meaning the slot is free. All slots are reported
	// regardless of whether the unit is enabled, so callers can reconcile
	// their bookkeeping with hardware truth.
	HWBreakpoints(ctx context.Context) ([]*uint32, error)
	EnableBreakpoints(ctx context.Context, state bool) error
	SetHWBreakpoint(ctx context.Context, unitIndex int, addr uint32) error
	ClearHWBreakpoint(ctx context.Context, unitIndex int) error
	HWBreakpointsEnabled() bool

	Registers() *RegisterFile
	Architecture() Architecture
}
