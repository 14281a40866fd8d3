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
package arm

// Doc: ARM v7-M Architecture Reference Manual, C1 "System Debug".

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/mdbg/cli/debug/core"
	"github.com/mongoose-os/mdbg/cli/debug/probe"
	"github.com/mongoose-os/mdbg/cli/debug/target"
)

const (
	regDHCSR uint32 = 0xE000EDF0
	regDCRSR        = 0xE000EDF4
	regDCRDR        = 0xE000EDF8
	regDEMCR        = 0xE000EDFC
	regDFSR         = 0xE000ED30
	regAIRCR        = 0xE000ED0C

	dhcsrDbgKey    uint32 = 0xA05F0000
	dhcsrCDebugEn  uint32 = 1 << 0
	dhcsrCHalt     uint32 = 1 << 1
	dhcsrCStep     uint32 = 1 << 2
	dhcsrCMaskInts uint32 = 1 << 3
	dhcsrSRegRdy   uint32 = 1 << 16
	dhcsrSHalt     uint32 = 1 << 17
	dhcsrSSleep    uint32 = 1 << 18
	dhcsrSLockup   uint32 = 1 << 19

	dcrsrRegWnR uint32 = 1 << 16

	demcrVCCoreReset uint32 = 1 << 0

	dfsrHalted   uint32 = 1 << 0
	dfsrBkpt     uint32 = 1 << 1
	dfsrDWTTrap  uint32 = 1 << 2
	dfsrVCatch   uint32 = 1 << 3
	dfsrExternal uint32 = 1 << 4
	dfsrClearAll uint32 = 0x1f

	aircrKey         uint32 = 0x05FA0000
	aircrSysResetReq uint32 = 1 << 2

	// Flash Patch and Breakpoint unit.
	regFPCtrl  uint32 = 0xE0002000
	regFPComp0 uint32 = 0xE0002008

	fpCtrlKey    uint32 = 1 << 1
	fpCtrlEnable uint32 = 1 << 0

	fpCompEnable uint32 = 1 << 0

	pollInterval = 10 * time.Millisecond
	// Bound for internal waits that are not caller-timed (register
	// transfers, single step retirement).
	internalTimeout = 1 * time.Second
)

// State is the mutable per-core debug state of a Cortex-M core. It is
// owned by the SpecificCoreState tagged union and survives re-attachment.
type State struct {
	initialized          bool
	hwBreakpointsEnabled bool
	stepRequested        bool
}

func NewState() *State {
	return &State{}
}

// fpbRev selects the FP_COMP encoding: rev 1 (ARMv6-M/v7-M) uses
// halfword-replace encoding, rev 2 (ARMv8-M) compares the full address.
type cortexM struct {
	mem   probe.MemoryInterface
	state *State
	seq   target.DebugSequence

	coreType core.CoreType
	fpbRev   int
}

func newCortexM(ctx context.Context, mem probe.MemoryInterface, state *State, seq target.DebugSequence, coreType core.CoreType, fpbRev int) (*cortexM, error) {
	c := &cortexM{mem: mem, state: state, seq: seq, coreType: coreType, fpbRev: fpbRev}
	if !state.initialized {
		if err := c.initDebug(ctx); err != nil {
			return nil, errors.Annotatef(err, "failed to init %s debug", coreType)
		}
		state.initialized = true
	}
	return c, nil
}

func (c *cortexM) initDebug(ctx context.Context) error {
	dhcsr, err := c.mem.ReadWord32(ctx, regDHCSR)
	if err != nil {
		return errors.Annotatef(err, "failed to read DHCSR")
	}
	// Enable halting debug, preserve the halt bit if the core is already
	// stopped.
	v := dhcsrDbgKey | dhcsrCDebugEn | (dhcsr & dhcsrCHalt)
	if err := c.mem.WriteWord32(ctx, regDHCSR, v); err != nil {
		return errors.Annotatef(err, "failed to set DHCSR")
	}
	// Clear stale halt cause bits.
	if err := c.mem.WriteWord32(ctx, regDFSR, dfsrClearAll); err != nil {
		return errors.Annotatef(err, "failed to clear DFSR")
	}
	if c.seq.ResetCatch {
		if err := c.mem.WriteWord32(ctx, regDEMCR, demcrVCCoreReset); err != nil {
			return errors.Annotatef(err, "failed to set DEMCR")
		}
	}
	fpCtrl, err := c.mem.ReadWord32(ctx, regFPCtrl)
	if err != nil {
		return errors.Annotatef(err, "failed to read FP_CTRL")
	}
	c.state.hwBreakpointsEnabled = fpCtrl&fpCtrlEnable != 0
	return nil
}

func (c *cortexM) Status(ctx context.Context) (core.CoreStatus, error) {
	dhcsr, err := c.mem.ReadWord32(ctx, regDHCSR)
	if err != nil {
		return core.UnknownStatus, errors.Annotatef(err, "failed to read DHCSR")
	}
	glog.V(3).Infof("DHCSR 0x%08x", dhcsr)
	switch {
	case dhcsr&dhcsrSLockup != 0:
		return core.LockedUp, nil
	case dhcsr&dhcsrSSleep != 0:
		return core.Sleeping, nil
	case dhcsr&dhcsrSHalt != 0:
		reason, err := c.haltReason(ctx)
		if err != nil {
			return core.UnknownStatus, errors.Trace(err)
		}
		return core.Halted(reason), nil
	}
	return core.Running, nil
}

func (c *cortexM) haltReason(ctx context.Context) (core.HaltReason, error) {
	dfsr, err := c.mem.ReadWord32(ctx, regDFSR)
	if err != nil {
		return core.HaltReasonUnknown, errors.Annotatef(err, "failed to read DFSR")
	}
	var reasons []core.HaltReason
	if dfsr&dfsrBkpt != 0 {
		reasons = append(reasons, core.HaltReasonBreakpoint)
	}
	if dfsr&dfsrDWTTrap != 0 {
		reasons = append(reasons, core.HaltReasonWatchpoint)
	}
	if dfsr&dfsrVCatch != 0 {
		reasons = append(reasons, core.HaltReasonException)
	}
	if dfsr&dfsrExternal != 0 {
		reasons = append(reasons, core.HaltReasonExternal)
	}
	if dfsr&dfsrHalted != 0 {
		if c.state.stepRequested {
			reasons = append(reasons, core.HaltReasonStep)
		} else {
			reasons = append(reasons, core.HaltReasonRequest)
		}
	}
	switch len(reasons) {
	case 0:
		// Already halted when we connected.
		return core.HaltReasonUnknown, nil
	case 1:
		return reasons[0], nil
	default:
		return core.HaltReasonMultiple, nil
	}
}

func (c *cortexM) CoreHalted(ctx context.Context) (bool, error) {
	dhcsr, err := c.mem.ReadWord32(ctx, regDHCSR)
	if err != nil {
		return false, errors.Annotatef(err, "failed to read DHCSR")
	}
	return dhcsr&dhcsrSHalt != 0, nil
}

func (c *cortexM) WaitForCoreHalted(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		halted, err := c.CoreHalted(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		if halted {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Timeoutf("core did not halt in %s", timeout)
		}
		select {
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

func (c *cortexM) coreInfo(ctx context.Context) (*core.CoreInformation, error) {
	pc, err := c.ReadCoreReg(ctx, regnoPC)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to read PC")
	}
	return &core.CoreInformation{PC: pc}, nil
}

func (c *cortexM) Halt(ctx context.Context, timeout time.Duration) (*core.CoreInformation, error) {
	v := dhcsrDbgKey | dhcsrCDebugEn | dhcsrCHalt
	if err := c.mem.WriteWord32(ctx, regDHCSR, v); err != nil {
		return nil, errors.Annotatef(err, "failed to set DHCSR")
	}
	if err := c.WaitForCoreHalted(ctx, timeout); err != nil {
		return nil, errors.Trace(err)
	}
	return c.coreInfo(ctx)
}

func (c *cortexM) Run(ctx context.Context) error {
	c.state.stepRequested = false
	if err := c.mem.WriteWord32(ctx, regDFSR, dfsrClearAll); err != nil {
		return errors.Annotatef(err, "failed to clear DFSR")
	}
	if err := c.mem.WriteWord32(ctx, regDHCSR, dhcsrDbgKey|dhcsrCDebugEn); err != nil {
		return errors.Annotatef(err, "failed to set DHCSR")
	}
	return errors.Trace(c.mem.Flush(ctx))
}

func (c *cortexM) Step(ctx context.Context) (*core.CoreInformation, error) {
	c.state.stepRequested = true
	// Mask interrupts for the step so we land on the next instruction,
	// not in a handler. C_MASKINTS may only change while C_HALT is set.
	v := dhcsrDbgKey | dhcsrCDebugEn | dhcsrCHalt | dhcsrCMaskInts
	if err := c.mem.WriteWord32(ctx, regDHCSR, v); err != nil {
		return nil, errors.Annotatef(err, "failed to set DHCSR")
	}
	v = dhcsrDbgKey | dhcsrCDebugEn | dhcsrCMaskInts | dhcsrCStep
	if err := c.mem.WriteWord32(ctx, regDHCSR, v); err != nil {
		return nil, errors.Annotatef(err, "failed to set DHCSR")
	}
	if err := c.WaitForCoreHalted(ctx, internalTimeout); err != nil {
		return nil, errors.Trace(err)
	}
	v = dhcsrDbgKey | dhcsrCDebugEn | dhcsrCHalt
	if err := c.mem.WriteWord32(ctx, regDHCSR, v); err != nil {
		return nil, errors.Annotatef(err, "failed to set DHCSR")
	}
	return c.coreInfo(ctx)
}

func (c *cortexM) Reset(ctx context.Context) error {
	c.state.stepRequested = false
	if err := c.mem.WriteWord32(ctx, regDFSR, dfsrClearAll); err != nil {
		return errors.Annotatef(err, "failed to clear DFSR")
	}
	if err := c.mem.WriteWord32(ctx, regAIRCR, aircrKey|aircrSysResetReq); err != nil {
		return errors.Annotatef(err, "failed to request reset")
	}
	return errors.Trace(c.mem.Flush(ctx))
}

func (c *cortexM) ResetAndHalt(ctx context.Context, timeout time.Duration) (*core.CoreInformation, error) {
	// ARMv7-M ARM C1.4.1: catch the reset vector, then reset.
	if err := c.mem.WriteWord32(ctx, regDEMCR, demcrVCCoreReset); err != nil {
		return nil, errors.Annotatef(err, "failed to set DEMCR")
	}
	if err := c.Reset(ctx); err != nil {
		return nil, errors.Trace(err)
	}
	if err := c.WaitForCoreHalted(ctx, timeout); err != nil {
		return nil, errors.Trace(err)
	}
	if !c.seq.ResetCatch {
		if err := c.mem.WriteWord32(ctx, regDEMCR, 0); err != nil {
			return nil, errors.Annotatef(err, "failed to clear DEMCR")
		}
	}
	return c.coreInfo(ctx)
}

func (c *cortexM) waitRegReady(ctx context.Context) error {
	deadline := time.Now().Add(internalTimeout)
	for {
		dhcsr, err := c.mem.ReadWord32(ctx, regDHCSR)
		if err != nil {
			return errors.Annotatef(err, "failed to read DHCSR")
		}
		if dhcsr&dhcsrSRegRdy != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Timeoutf("register transfer did not complete")
		}
	}
}

func (c *cortexM) ReadCoreReg(ctx context.Context, addr core.CoreRegisterAddress) (uint32, error) {
	if err := c.mem.WriteWord32(ctx, regDCRSR, uint32(addr)); err != nil {
		return 0, errors.Annotatef(err, "failed to set DCRSR")
	}
	if err := c.waitRegReady(ctx); err != nil {
		return 0, errors.Trace(err)
	}
	value, err := c.mem.ReadWord32(ctx, regDCRDR)
	if err != nil {
		return 0, errors.Annotatef(err, "failed to read DCRDR")
	}
	glog.V(3).Infof("ReadCoreReg(%d) == 0x%08x", addr, value)
	return value, nil
}

func (c *cortexM) WriteCoreReg(ctx context.Context, addr core.CoreRegisterAddress, value uint32) error {
	glog.V(3).Infof("WriteCoreReg(%d, 0x%08x)", addr, value)
	if err := c.mem.WriteWord32(ctx, regDCRDR, value); err != nil {
		return errors.Annotatef(err, "failed to set DCRDR")
	}
	if err := c.mem.WriteWord32(ctx, regDCRSR, uint32(addr)|dcrsrRegWnR); err != nil {
		return errors.Annotatef(err, "failed to set DCRSR")
	}
	return errors.Trace(c.waitRegReady(ctx))
}

func (c *cortexM) AvailableBreakpointUnits(ctx context.Context) (int, error) {
	fpCtrl, err := c.mem.ReadWord32(ctx, regFPCtrl)
	if err != nil {
		return 0, errors.Annotatef(err, "failed to read FP_CTRL")
	}
	// NUM_CODE is split across bits [7:4] and [14:12].
	numCode := int((fpCtrl>>4)&0xf) | int((fpCtrl>>12)&0x7)<<4
	return numCode, nil
}

func (c *cortexM) EnableBreakpoints(ctx context.Context, state bool) error {
	v := fpCtrlKey
	if state {
		v |= fpCtrlEnable
	}
	if err := c.mem.WriteWord32(ctx, regFPCtrl, v); err != nil {
		return errors.Annotatef(err, "failed to write FP_CTRL")
	}
	c.state.hwBreakpointsEnabled = state
	return nil
}

func (c *cortexM) HWBreakpointsEnabled() bool {
	return c.state.hwBreakpointsEnabled
}

func (c *cortexM) HWBreakpoints(ctx context.Context) ([]*uint32, error) {
	n, err := c.AvailableBreakpointUnits(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	bps := make([]*uint32, n)
	for i := 0; i < n; i++ {
		comp, err := c.mem.ReadWord32(ctx, regFPComp0+uint32(i)*4)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to read FP_COMP%d", i)
		}
		if comp&fpCompEnable == 0 {
			continue
		}
		addr := c.decodeComparator(comp)
		bps[i] = &addr
	}
	return bps, nil
}

func (c *cortexM) SetHWBreakpoint(ctx context.Context, unitIndex int, addr uint32) error {
	comp, err := c.encodeComparator(addr)
	if err != nil {
		return errors.Trace(err)
	}
	glog.V(2).Infof("FP_COMP%d = 0x%08x (addr 0x%08x)", unitIndex, comp, addr)
	return errors.Annotatef(
		c.mem.WriteWord32(ctx, regFPComp0+uint32(unitIndex)*4, comp),
		"failed to write FP_COMP%d", unitIndex)
}

func (c *cortexM) ClearHWBreakpoint(ctx context.Context, unitIndex int) error {
	return errors.Annotatef(
		c.mem.WriteWord32(ctx, regFPComp0+uint32(unitIndex)*4, 0),
		"failed to write FP_COMP%d", unitIndex)
}

func (c *cortexM) encodeComparator(addr uint32) (uint32, error) {
	if c.fpbRev >= 2 {
		// FPB rev 2 compares the full address, bit 0 is BE.
		return (addr &^ 1) | fpCompEnable, nil
	}
	if addr >= 0x20000000 {
		return 0, errors.NotValidf("breakpoint at 0x%08x: FPB rev 1 only covers the code region", addr)
	}
	// Halfword-replace encoding: REPLACE[31:30] selects the halfword
	// within the word at COMP[28:2].
	replace := uint32(1) << 30
	if addr&2 != 0 {
		replace = 2 << 30
	}
	return replace | (addr & 0x1ffffffc) | fpCompEnable, nil
}

func (c *cortexM) decodeComparator(comp uint32) uint32 {
	if c.fpbRev >= 2 {
		return comp &^ 1
	}
	addr := comp & 0x1ffffffc
	if comp>>30 == 2 {
		addr |= 2
	}
	return addr
}

func (c *cortexM) Registers() *core.RegisterFile {
	return &CortexMRegisterFile
}

func (c *cortexM) Architecture() core.Architecture {
	return core.ArchitectureArm
}

// Memory access is delegated to the probe.

func (c *cortexM) ReadWord32(ctx context.Context, addr uint32) (uint32, error) {
	return c.mem.ReadWord32(ctx, addr)
}

func (c *cortexM) ReadWord8(ctx context.Context, addr uint32) (uint8, error) {
	return c.mem.ReadWord8(ctx, addr)
}

func (c *cortexM) Read32(ctx context.Context, addr uint32, data []uint32) error {
	return c.mem.Read32(ctx, addr, data)
}

func (c *cortexM) Read8(ctx context.Context, addr uint32, data []uint8) error {
	return c.mem.Read8(ctx, addr, data)
}

func (c *cortexM) WriteWord32(ctx context.Context, addr uint32, value uint32) error {
	return c.mem.WriteWord32(ctx, addr, value)
}

func (c *cortexM) WriteWord8(ctx context.Context, addr uint32, value uint8) error {
	return c.mem.WriteWord8(ctx, addr, value)
}

func (c *cortexM) Write32(ctx context.Context, addr uint32, data []uint32) error {
	return c.mem.Write32(ctx, addr, data)
}

func (c *cortexM) Write8(ctx context.Context, addr uint32, data []uint8) error {
	return c.mem.Write8(ctx, addr, data)
}

func (c *cortexM) Flush(ctx context.Context) error {
	return c.mem.Flush(ctx)
}
