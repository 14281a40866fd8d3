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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/mdbg/cli/debug/core"
	"github.com/mongoose-os/mdbg/cli/debug/probe"
)

// fakeDM simulates a Debug Module: halt/resume/reset via dmcontrol,
// abstract register access and a small trigger module.
type fakeDM struct {
	probe.MemoryInterface

	data0     uint32
	regs      map[uint32]uint32
	halted    bool
	resumeAck bool

	numTriggers int
	tselect     uint32
	tdata1      map[uint32]uint32
	tdata2      map[uint32]uint32
}

func newFakeDM(numTriggers int) *fakeDM {
	return &fakeDM{
		regs:        map[uint32]uint32{},
		numTriggers: numTriggers,
		tdata1:      map[uint32]uint32{},
		tdata2:      map[uint32]uint32{},
	}
}

func (f *fakeDM) setCause(cause uint32) {
	f.regs[csrDCSR] = (f.regs[csrDCSR] &^ dcsrCauseMask) | cause<<6
}

func (f *fakeDM) ReadDMReg(ctx context.Context, reg uint8) (uint32, error) {
	switch reg {
	case dmDMStatus:
		var v uint32
		if f.halted {
			v |= dmstatusAllHalted
		} else {
			v |= dmstatusAllRunning
		}
		if f.resumeAck {
			v |= dmstatusAllResumeAck
		}
		return v, nil
	case dmAbstractCS:
		return 0, nil
	case dmData0:
		return f.data0, nil
	}
	return 0, nil
}

func (f *fakeDM) WriteDMReg(ctx context.Context, reg uint8, value uint32) error {
	switch reg {
	case dmDMControl:
		switch {
		case value&dmcontrolHaltReq != 0:
			if !f.halted {
				f.halted = true
				f.setCause(dcsrCauseHaltReq)
			}
		case value&dmcontrolResumeReq != 0:
			f.resumeAck = true
			if f.regs[csrDCSR]&dcsrStep != 0 {
				// One instruction retires, the hart halts again.
				f.halted = true
				f.setCause(dcsrCauseStep)
			} else {
				f.halted = false
			}
		default:
			f.resumeAck = false
		}
	case dmData0:
		f.data0 = value
	case dmCommand:
		regno := value & 0xffff
		if value&cmdWrite != 0 {
			f.writeReg(regno, f.data0)
		} else {
			f.data0 = f.readReg(regno)
		}
	}
	return nil
}

func (f *fakeDM) writeReg(regno, value uint32) {
	switch regno {
	case csrTSelect:
		if int(value) < f.numTriggers {
			f.tselect = value
		}
	case csrTData1:
		f.tdata1[f.tselect] = value
	case csrTData2:
		f.tdata2[f.tselect] = value
	case csrDCSR:
		// cause is read-only.
		f.regs[csrDCSR] = (value &^ dcsrCauseMask) | (f.regs[csrDCSR] & dcsrCauseMask)
	default:
		f.regs[regno] = value
	}
}

func (f *fakeDM) readReg(regno uint32) uint32 {
	switch regno {
	case csrTSelect:
		return f.tselect
	case csrTData1:
		return f.tdata1[f.tselect]
	case csrTData2:
		return f.tdata2[f.tselect]
	}
	return f.regs[regno]
}

func (f *fakeDM) Flush(ctx context.Context) error { return nil }

func newTestRiscv32(t *testing.T, f *fakeDM) *Riscv32 {
	r, err := NewRiscv32(context.Background(), f)
	require.NoError(t, err)
	return r
}

func TestRiscvStatus(t *testing.T) {
	ctx := context.Background()
	f := newFakeDM(0)
	r := newTestRiscv32(t, f)

	st, err := r.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Running, st)

	f.halted = true
	f.setCause(dcsrCauseEbreak)
	st, _ = r.Status(ctx)
	assert.Equal(t, core.Halted(core.HaltReasonBreakpoint), st)

	f.setCause(dcsrCauseTrigger)
	st, _ = r.Status(ctx)
	assert.Equal(t, core.Halted(core.HaltReasonBreakpoint), st)

	f.setCause(0)
	st, _ = r.Status(ctx)
	assert.Equal(t, core.Halted(core.HaltReasonUnknown), st)
}

func TestRiscvHaltRun(t *testing.T) {
	ctx := context.Background()
	f := newFakeDM(0)
	r := newTestRiscv32(t, f)

	f.regs[csrDPC] = 0x20000400
	ci, err := r.Halt(ctx, internalTimeout)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x20000400), ci.PC)
	st, _ := r.Status(ctx)
	assert.Equal(t, core.Halted(core.HaltReasonRequest), st)

	require.NoError(t, r.Run(ctx))
	st, _ = r.Status(ctx)
	assert.Equal(t, core.Running, st)
}

func TestRiscvStep(t *testing.T) {
	ctx := context.Background()
	f := newFakeDM(0)
	r := newTestRiscv32(t, f)

	_, err := r.Halt(ctx, internalTimeout)
	require.NoError(t, err)
	_, err = r.Step(ctx)
	require.NoError(t, err)
	st, _ := r.Status(ctx)
	assert.Equal(t, core.Halted(core.HaltReasonStep), st)
	// The step bit does not stick.
	assert.Zero(t, f.regs[csrDCSR]&dcsrStep)
}

func TestRiscvResetAndHalt(t *testing.T) {
	ctx := context.Background()
	f := newFakeDM(0)
	r := newTestRiscv32(t, f)

	_, err := r.ResetAndHalt(ctx, internalTimeout)
	require.NoError(t, err)
	st, _ := r.Status(ctx)
	require.True(t, st.IsHalted())
	// A RISC-V hart never reports locked up.
	assert.NotEqual(t, core.StateLockedUp, st.State)
}

func TestRiscvTriggers(t *testing.T) {
	ctx := context.Background()
	f := newFakeDM(2)
	r := newTestRiscv32(t, f)

	n, err := r.AvailableBreakpointUnits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, r.SetHWBreakpoint(ctx, 0, 0x20001000))
	bps, err := r.HWBreakpoints(ctx)
	require.NoError(t, err)
	require.Len(t, bps, 2)
	require.NotNil(t, bps[0])
	assert.Equal(t, uint32(0x20001000), *bps[0])
	assert.Nil(t, bps[1])

	require.NoError(t, r.ClearHWBreakpoint(ctx, 0))
	bps, _ = r.HWBreakpoints(ctx)
	assert.Nil(t, bps[0])
}
