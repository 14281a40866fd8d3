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
	"fmt"

	"github.com/juju/errors"
)

type Architecture int

const (
	ArchitectureArm Architecture = iota
	ArchitectureRiscv
)

func (a Architecture) String() string {
	switch a {
	case ArchitectureArm:
		return "ARM"
	case ArchitectureRiscv:
		return "RISC-V"
	}
	return fmt.Sprintf("Architecture(%d)", int(a))
}

// CoreType identifies a concrete architecture variant. ARMv7-M and
// ARMv7E-M share an implementation but remain distinct tags.
type CoreType int

const (
	CoreTypeArmv6m CoreType = iota
	CoreTypeArmv7m
	CoreTypeArmv7em
	CoreTypeArmv8m
	CoreTypeRiscv
)

func (ct CoreType) Architecture() Architecture {
	if ct == CoreTypeRiscv {
		return ArchitectureRiscv
	}
	return ArchitectureArm
}

func (ct CoreType) String() string {
	switch ct {
	case CoreTypeArmv6m:
		return "armv6m"
	case CoreTypeArmv7m:
		return "armv7m"
	case CoreTypeArmv7em:
		return "armv7em"
	case CoreTypeArmv8m:
		return "armv8m"
	case CoreTypeRiscv:
		return "riscv"
	}
	return fmt.Sprintf("CoreType(%d)", int(ct))
}

func ParseCoreType(s string) (CoreType, error) {
	switch s {
	case "armv6m", "cortex-m0", "cortex-m0+":
		return CoreTypeArmv6m, nil
	case "armv7m", "cortex-m3":
		return CoreTypeArmv7m, nil
	case "armv7em", "cortex-m4", "cortex-m7":
		return CoreTypeArmv7em, nil
	case "armv8m", "cortex-m23", "cortex-m33":
		return CoreTypeArmv8m, nil
	case "riscv", "riscv32":
		return CoreTypeRiscv, nil
	}
	return 0, errors.NotFoundf("core type %q", s)
}

type RunState int

const (
	StateUnknown RunState = iota
	StateRunning
	StateHalted
	// StateLockedUp is Cortex-M specific and is never produced by the
	// RISC-V backend.
	StateLockedUp
	StateSleeping
)

// CoreStatus is the observable run state of a core.
// Reason is only meaningful when State == StateHalted.
type CoreStatus struct {
	State  RunState
	Reason HaltReason
}

var (
	Running       = CoreStatus{State: StateRunning}
	LockedUp      = CoreStatus{State: StateLockedUp}
	Sleeping      = CoreStatus{State: StateSleeping}
	UnknownStatus = CoreStatus{State: StateUnknown}
)

// Halted returns the status of a core halted for the given reason.
func Halted(reason HaltReason) CoreStatus {
	return CoreStatus{State: StateHalted, Reason: reason}
}

func (s CoreStatus) IsHalted() bool {
	return s.State == StateHalted
}

func (s CoreStatus) String() string {
	switch s.State {
	case StateRunning:
		return "running"
	case StateHalted:
		return fmt.Sprintf("halted (%s)", s.Reason)
	case StateLockedUp:
		return "locked up"
	case StateSleeping:
		return "sleeping"
	}
	return "unknown"
}

// HaltReason is the CPU-reported cause of entering halted state.
type HaltReason int

const (
	// HaltReasonUnknown covers cores that were already halted when we
	// connected.
	HaltReasonUnknown HaltReason = iota
	// HaltReasonMultiple indicates two or more simultaneous causes, e.g.
	// a single step that lands exactly on a breakpoint.
	HaltReasonMultiple
	HaltReasonBreakpoint
	HaltReasonException
	HaltReasonWatchpoint
	HaltReasonStep
	HaltReasonRequest
	HaltReasonExternal
)

func (r HaltReason) String() string {
	switch r {
	case HaltReasonMultiple:
		return "multiple"
	case HaltReasonBreakpoint:
		return "breakpoint"
	case HaltReasonException:
		return "exception"
	case HaltReasonWatchpoint:
		return "watchpoint"
	case HaltReasonStep:
		return "step"
	case HaltReasonRequest:
		return "request"
	case HaltReasonExternal:
		return "external"
	}
	return "unknown"
}
