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
package riscv

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/mdbg/cli/debug/core"
)

const (
	dmcontrolDMActive  uint32 = 1 << 0
	dmcontrolNDMReset  uint32 = 1 << 1
	dmcontrolResumeReq uint32 = 1 << 30
	dmcontrolHaltReq   uint32 = 1 << 31

	dmstatusAllHalted    uint32 = 1 << 9
	dmstatusAllRunning   uint32 = 1 << 11
	dmstatusAllResumeAck uint32 = 1 << 17

	abstractcsCmdErr uint32 = 7 << 8
	abstractcsBusy   uint32 = 1 << 12

	// Abstract command: access register, 32-bit.
	cmdAccessReg32 uint32 = 2 << 20
	cmdTransfer    uint32 = 1 << 17
	cmdWrite       uint32 = 1 << 16

	csrDCSR uint32 = 0x7b0
	csrDPC  uint32 = 0x7b1

	// Trigger module CSRs.
	csrTSelect uint32 = 0x7a0
	csrTData1  uint32 = 0x7a1
	csrTData2  uint32 = 0x7a2

	dcsrStep      uint32 = 1 << 2
	dcsrCauseMask uint32 = 7 << 6

	dcsrCauseEbreak  uint32 = 1
	dcsrCauseTrigger uint32 = 2
	dcsrCauseHaltReq uint32 = 3
	dcsrCauseStep    uint32 = 4

	// mcontrol (tdata1 type 2) fields.
	mcontrolType    uint32 = 2 << 28
	mcontrolDMode   uint32 = 1 << 27
	mcontrolAction  uint32 = 1 << 12
	mcontrolM       uint32 = 1 << 6
	mcontrolS       uint32 = 1 << 4
	mcontrolU       uint32 = 1 << 3
	mcontrolExecute uint32 = 1 << 2

	pollInterval    = 10 * time.Millisecond
	internalTimeout = 1 * time.Second
)

// Riscv32 drives a single RV32 hart through a Debug Module.
type Riscv32 struct {
	CommunicationInterface

	hwBreakpointsEnabled bool
	numTriggers          int
}

func NewRiscv32(ctx context.Context, iface CommunicationInterface) (*Riscv32, error) {
	r := &Riscv32{CommunicationInterface: iface, numTriggers: -1}
	if err := r.WriteDMReg(ctx, dmDMControl, dmcontrolDMActive); err != nil {
		return nil, errors.Annotatef(err, "failed to activate debug module")
	}
	return r, nil
}

func (r *Riscv32) waitAbstract(ctx context.Context) error {
	deadline := time.Now().Add(internalTimeout)
	for {
		cs, err := r.ReadDMReg(ctx, dmAbstractCS)
		if err != nil {
			return errors.Annotatef(err, "failed to read abstractcs")
		}
		if cs&abstractcsBusy == 0 {
			if cmderr := (cs & abstractcsCmdErr) >> 8; cmderr != 0 {
				// cmderr is W1C.
				r.WriteDMReg(ctx, dmAbstractCS, abstractcsCmdErr)
				return errors.Errorf("abstract command failed (cmderr %d)", cmderr)
			}
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Timeoutf("abstract command did not complete")
		}
	}
}

func (r *Riscv32) readAbstractReg(ctx context.Context, regno uint32) (uint32, error) {
	cmd := cmdAccessReg32 | cmdTransfer | (regno & 0xffff)
	if err := r.WriteDMReg(ctx, dmCommand, cmd); err != nil {
		return 0, errors.Annotatef(err, "failed to issue reg read")
	}
	if err := r.waitAbstract(ctx); err != nil {
		return 0, errors.Trace(err)
	}
	value, err := r.ReadDMReg(ctx, dmData0)
	if err != nil {
		return 0, errors.Annotatef(err, "failed to read data0")
	}
	glog.V(3).Infof("readAbstractReg(0x%04x) == 0x%08x", regno, value)
	return value, nil
}

func (r *Riscv32) writeAbstractReg(ctx context.Context, regno uint32, value uint32) error {
	glog.V(3).Infof("writeAbstractReg(0x%04x, 0x%08x)", regno, value)
	if err := r.WriteDMReg(ctx, dmData0, value); err != nil {
		return errors.Annotatef(err, "failed to write data0")
	}
	cmd := cmdAccessReg32 | cmdTransfer | cmdWrite | (regno & 0xffff)
	if err := r.WriteDMReg(ctx, dmCommand, cmd); err != nil {
		return errors.Annotatef(err, "failed to issue reg write")
	}
	return errors.Trace(r.waitAbstract(ctx))
}

func (r *Riscv32) Status(ctx context.Context) (core.CoreStatus, error) {
	dmstatus, err := r.ReadDMReg(ctx, dmDMStatus)
	if err != nil {
		return core.UnknownStatus, errors.Annotatef(err, "failed to read dmstatus")
	}
	glog.V(3).Infof("dmstatus 0x%08x", dmstatus)
	switch {
	case dmstatus&dmstatusAllHalted != 0:
		dcsr, err := r.readAbstractReg(ctx, csrDCSR)
		if err != nil {
			return core.UnknownStatus, errors.Trace(err)
		}
		return core.Halted(haltReasonFromDCSR(dcsr)), nil
	case dmstatus&dmstatusAllRunning != 0:
		return core.Running, nil
	}
	return core.UnknownStatus, nil
}

func haltReasonFromDCSR(dcsr uint32) core.HaltReason {
	switch (dcsr & dcsrCauseMask) >> 6 {
	case dcsrCauseEbreak, dcsrCauseTrigger:
		return core.HaltReasonBreakpoint
	case dcsrCauseHaltReq:
		return core.HaltReasonRequest
	case dcsrCauseStep:
		return core.HaltReasonStep
	}
	return core.HaltReasonUnknown
}

func (r *Riscv32) CoreHalted(ctx context.Context) (bool, error) {
	dmstatus, err := r.ReadDMReg(ctx, dmDMStatus)
	if err != nil {
		return false, errors.Annotatef(err, "failed to read dmstatus")
	}
	return dmstatus&dmstatusAllHalted != 0, nil
}

func (r *Riscv32) WaitForCoreHalted(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		halted, err := r.CoreHalted(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		if halted {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Timeoutf("hart did not halt in %s", timeout)
		}
		select {
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

func (r *Riscv32) coreInfo(ctx context.Context) (*core.CoreInformation, error) {
	pc, err := r.readAbstractReg(ctx, csrDPC)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to read dpc")
	}
	return &core.CoreInformation{PC: pc}, nil
}

func (r *Riscv32) Halt(ctx context.Context, timeout time.Duration) (*core.CoreInformation, error) {
	if err := r.WriteDMReg(ctx, dmDMControl, dmcontrolDMActive|dmcontrolHaltReq); err != nil {
		return nil, errors.Annotatef(err, "failed to request halt")
	}
	if err := r.WaitForCoreHalted(ctx, timeout); err != nil {
		return nil, errors.Trace(err)
	}
	if err := r.WriteDMReg(ctx, dmDMControl, dmcontrolDMActive); err != nil {
		return nil, errors.Annotatef(err, "failed to clear halt request")
	}
	return r.coreInfo(ctx)
}

func (r *Riscv32) Run(ctx context.Context) error {
	if err := r.WriteDMReg(ctx, dmDMControl, dmcontrolDMActive|dmcontrolResumeReq); err != nil {
		return errors.Annotatef(err, "failed to request resume")
	}
	deadline := time.Now().Add(internalTimeout)
	for {
		dmstatus, err := r.ReadDMReg(ctx, dmDMStatus)
		if err != nil {
			return errors.Annotatef(err, "failed to read dmstatus")
		}
		if dmstatus&dmstatusAllResumeAck != 0 {
			break
		}
		if time.Now().After(deadline) {
			return errors.Timeoutf("hart did not ack resume")
		}
	}
	if err := r.WriteDMReg(ctx, dmDMControl, dmcontrolDMActive); err != nil {
		return errors.Annotatef(err, "failed to clear resume request")
	}
	return errors.Trace(r.Flush(ctx))
}

func (r *Riscv32) Step(ctx context.Context) (*core.CoreInformation, error) {
	dcsr, err := r.readAbstractReg(ctx, csrDCSR)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := r.writeAbstractReg(ctx, csrDCSR, dcsr|dcsrStep); err != nil {
		return nil, errors.Annotatef(err, "failed to set step bit")
	}
	if err := r.Run(ctx); err != nil {
		return nil, errors.Trace(err)
	}
	if err := r.WaitForCoreHalted(ctx, internalTimeout); err != nil {
		return nil, errors.Trace(err)
	}
	if err := r.writeAbstractReg(ctx, csrDCSR, dcsr&^dcsrStep); err != nil {
		return nil, errors.Annotatef(err, "failed to clear step bit")
	}
	return r.coreInfo(ctx)
}

func (r *Riscv32) Reset(ctx context.Context) error {
	if err := r.WriteDMReg(ctx, dmDMControl, dmcontrolDMActive|dmcontrolNDMReset); err != nil {
		return errors.Annotatef(err, "failed to assert reset")
	}
	return errors.Annotatef(r.WriteDMReg(ctx, dmDMControl, dmcontrolDMActive),
		"failed to release reset")
}

func (r *Riscv32) ResetAndHalt(ctx context.Context, timeout time.Duration) (*core.CoreInformation, error) {
	v := dmcontrolDMActive | dmcontrolNDMReset | dmcontrolHaltReq
	if err := r.WriteDMReg(ctx, dmDMControl, v); err != nil {
		return nil, errors.Annotatef(err, "failed to assert reset")
	}
	if err := r.WriteDMReg(ctx, dmDMControl, dmcontrolDMActive|dmcontrolHaltReq); err != nil {
		return nil, errors.Annotatef(err, "failed to release reset")
	}
	if err := r.WaitForCoreHalted(ctx, timeout); err != nil {
		return nil, errors.Trace(err)
	}
	if err := r.WriteDMReg(ctx, dmDMControl, dmcontrolDMActive); err != nil {
		return nil, errors.Annotatef(err, "failed to clear halt request")
	}
	return r.coreInfo(ctx)
}

func (r *Riscv32) ReadCoreReg(ctx context.Context, addr core.CoreRegisterAddress) (uint32, error) {
	return r.readAbstractReg(ctx, uint32(addr))
}

func (r *Riscv32) WriteCoreReg(ctx context.Context, addr core.CoreRegisterAddress, value uint32) error {
	return errors.Trace(r.writeAbstractReg(ctx, uint32(addr), value))
}

// AvailableBreakpointUnits probes the trigger module by walking tselect
// until the selection no longer sticks.
func (r *Riscv32) AvailableBreakpointUnits(ctx context.Context) (int, error) {
	if r.numTriggers >= 0 {
		return r.numTriggers, nil
	}
	n := 0
	for {
		if err := r.writeAbstractReg(ctx, csrTSelect, uint32(n)); err != nil {
			break
		}
		got, err := r.readAbstractReg(ctx, csrTSelect)
		if err != nil || got != uint32(n) {
			break
		}
		n++
	}
	r.numTriggers = n
	glog.V(2).Infof("%d triggers", n)
	return n, nil
}

func (r *Riscv32) EnableBreakpoints(ctx context.Context, state bool) error {
	// Triggers are armed individually, there is no global enable.
	r.hwBreakpointsEnabled = state
	return nil
}

func (r *Riscv32) HWBreakpointsEnabled() bool {
	return r.hwBreakpointsEnabled
}

func (r *Riscv32) HWBreakpoints(ctx context.Context) ([]*uint32, error) {
	n, err := r.AvailableBreakpointUnits(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	bps := make([]*uint32, n)
	for i := 0; i < n; i++ {
		if err := r.writeAbstractReg(ctx, csrTSelect, uint32(i)); err != nil {
			return nil, errors.Annotatef(err, "failed to select trigger %d", i)
		}
		tdata1, err := r.readAbstractReg(ctx, csrTData1)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to read tdata1")
		}
		if tdata1>>28 != 2 || tdata1&mcontrolExecute == 0 {
			continue
		}
		addr, err := r.readAbstractReg(ctx, csrTData2)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to read tdata2")
		}
		bps[i] = &addr
	}
	return bps, nil
}

func (r *Riscv32) SetHWBreakpoint(ctx context.Context, unitIndex int, addr uint32) error {
	if err := r.writeAbstractReg(ctx, csrTSelect, uint32(unitIndex)); err != nil {
		return errors.Annotatef(err, "failed to select trigger %d", unitIndex)
	}
	tdata1 := mcontrolType | mcontrolDMode | mcontrolAction |
		mcontrolM | mcontrolS | mcontrolU | mcontrolExecute
	if err := r.writeAbstractReg(ctx, csrTData1, tdata1); err != nil {
		return errors.Annotatef(err, "failed to write tdata1")
	}
	return errors.Annotatef(r.writeAbstractReg(ctx, csrTData2, addr),
		"failed to write tdata2")
}

func (r *Riscv32) ClearHWBreakpoint(ctx context.Context, unitIndex int) error {
	if err := r.writeAbstractReg(ctx, csrTSelect, uint32(unitIndex)); err != nil {
		return errors.Annotatef(err, "failed to select trigger %d", unitIndex)
	}
	return errors.Annotatef(r.writeAbstractReg(ctx, csrTData1, 0),
		"failed to clear tdata1")
}

func (r *Riscv32) Registers() *core.RegisterFile {
	return &RiscvRegisterFile
}

func (r *Riscv32) Architecture() core.Architecture {
	return core.ArchitectureRiscv
}
