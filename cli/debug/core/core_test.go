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
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/mdbg/cli/debug/probe"
)

// fakeCore implements CoreInterface with an in-memory comparator bank.
type fakeCore struct {
	probe.MemoryInterface

	slots     []*uint32
	bpEnabled bool
	enableCnt int
	setCnt    int
	halted    bool
	regs      map[CoreRegisterAddress]uint32
}

func newFakeCore(numSlots int) *fakeCore {
	return &fakeCore{
		slots: make([]*uint32, numSlots),
		regs:  map[CoreRegisterAddress]uint32{},
	}
}

func (f *fakeCore) WaitForCoreHalted(ctx context.Context, timeout time.Duration) error {
	if !f.halted {
		return errors.Timeoutf("waiting for halt")
	}
	return nil
}

func (f *fakeCore) CoreHalted(ctx context.Context) (bool, error) { return f.halted, nil }

func (f *fakeCore) Status(ctx context.Context) (CoreStatus, error) {
	if f.halted {
		return Halted(HaltReasonRequest), nil
	}
	return Running, nil
}

func (f *fakeCore) Halt(ctx context.Context, timeout time.Duration) (*CoreInformation, error) {
	f.halted = true
	return &CoreInformation{PC: f.regs[15]}, nil
}

func (f *fakeCore) Run(ctx context.Context) error {
	f.halted = false
	return nil
}

func (f *fakeCore) Reset(ctx context.Context) error {
	f.halted = false
	return nil
}

func (f *fakeCore) ResetAndHalt(ctx context.Context, timeout time.Duration) (*CoreInformation, error) {
	f.halted = true
	return &CoreInformation{}, nil
}

func (f *fakeCore) Step(ctx context.Context) (*CoreInformation, error) {
	return &CoreInformation{PC: f.regs[15]}, nil
}

func (f *fakeCore) ReadCoreReg(ctx context.Context, addr CoreRegisterAddress) (uint32, error) {
	return f.regs[addr], nil
}

func (f *fakeCore) WriteCoreReg(ctx context.Context, addr CoreRegisterAddress, value uint32) error {
	f.regs[addr] = value
	return nil
}

func (f *fakeCore) AvailableBreakpointUnits(ctx context.Context) (int, error) {
	return len(f.slots), nil
}

func (f *fakeCore) HWBreakpoints(ctx context.Context) ([]*uint32, error) {
	res := make([]*uint32, len(f.slots))
	copy(res, f.slots)
	return res, nil
}

func (f *fakeCore) EnableBreakpoints(ctx context.Context, state bool) error {
	f.bpEnabled = state
	f.enableCnt++
	return nil
}

func (f *fakeCore) SetHWBreakpoint(ctx context.Context, unitIndex int, addr uint32) error {
	if unitIndex < 0 || unitIndex >= len(f.slots) {
		return errors.NotValidf("unit %d", unitIndex)
	}
	a := addr
	f.slots[unitIndex] = &a
	f.setCnt++
	return nil
}

func (f *fakeCore) ClearHWBreakpoint(ctx context.Context, unitIndex int) error {
	if unitIndex < 0 || unitIndex >= len(f.slots) {
		return errors.NotValidf("unit %d", unitIndex)
	}
	f.slots[unitIndex] = nil
	return nil
}

func (f *fakeCore) HWBreakpointsEnabled() bool { return f.bpEnabled }

func (f *fakeCore) Registers() *RegisterFile { return nil }

func (f *fakeCore) Architecture() Architecture { return ArchitectureArm }

func (f *fakeCore) numOccupied() int {
	n := 0
	for _, s := range f.slots {
		if s != nil {
			n++
		}
	}
	return n
}

func newTestCore(numSlots int) (*Core, *fakeCore) {
	f := newFakeCore(numSlots)
	return New(f, NewCoreState(0)), f
}

func TestSetHWBreakpointLazyEnable(t *testing.T) {
	ctx := context.Background()
	c, f := newTestCore(4)
	assert.False(t, f.bpEnabled)
	require.NoError(t, c.SetHWBreakpoint(ctx, 0x8000100))
	assert.True(t, f.bpEnabled)
	assert.Equal(t, 1, f.enableCnt)
	// Already enabled, no second enable call.
	require.NoError(t, c.SetHWBreakpoint(ctx, 0x8000200))
	assert.Equal(t, 1, f.enableCnt)
}

func TestSetHWBreakpointIdempotent(t *testing.T) {
	ctx := context.Background()
	c, f := newTestCore(4)
	require.NoError(t, c.SetHWBreakpoint(ctx, 0x8000100))
	require.Equal(t, 1, f.numOccupied())
	// Same address again reuses the slot but re-asserts it.
	require.NoError(t, c.SetHWBreakpoint(ctx, 0x8000100))
	assert.Equal(t, 1, f.numOccupied())
	assert.Equal(t, 2, f.setCnt)
}

func TestSetHWBreakpointExhaustion(t *testing.T) {
	ctx := context.Background()
	c, f := newTestCore(2)
	require.NoError(t, c.SetHWBreakpoint(ctx, 0x8000100))
	require.NoError(t, c.SetHWBreakpoint(ctx, 0x8000200))
	err := c.SetHWBreakpoint(ctx, 0x8000300)
	require.Error(t, err)
	assert.Equal(t, ErrNoAvailableBreakpoints, errors.Cause(err))
	// The failed set occupies no slot.
	assert.Equal(t, 2, f.numOccupied())
}

func TestSetHWBreakpointFirstFreeSlot(t *testing.T) {
	ctx := context.Background()
	c, f := newTestCore(4)
	require.NoError(t, c.SetHWBreakpoint(ctx, 0x8000100))
	require.NoError(t, c.SetHWBreakpoint(ctx, 0x8000200))
	require.NoError(t, c.ClearHWBreakpoint(ctx, 0x8000100))
	require.Nil(t, f.slots[0])
	// Slot 0 is free again and must be picked before slot 2.
	require.NoError(t, c.SetHWBreakpoint(ctx, 0x8000300))
	require.NotNil(t, f.slots[0])
	assert.Equal(t, uint32(0x8000300), *f.slots[0])
	assert.Nil(t, f.slots[2])
}

func TestClearHWBreakpointNotFound(t *testing.T) {
	ctx := context.Background()
	c, f := newTestCore(4)
	require.NoError(t, c.SetHWBreakpoint(ctx, 0x8000100))
	err := c.ClearHWBreakpoint(ctx, 0x8000200)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	// Existing slots are untouched.
	assert.Equal(t, 1, f.numOccupied())
}

func TestClearAllHWBreakpoints(t *testing.T) {
	ctx := context.Background()
	c, f := newTestCore(4)
	// Occupy slots 0 and 2.
	require.NoError(t, f.SetHWBreakpoint(ctx, 0, 0x8000100))
	require.NoError(t, f.SetHWBreakpoint(ctx, 2, 0x8000300))
	require.NoError(t, c.ClearAllHWBreakpoints(ctx))
	assert.Equal(t, 0, f.numOccupied())
	// No-op on a clean core.
	require.NoError(t, c.ClearAllHWBreakpoints(ctx))
	assert.Equal(t, 0, f.numOccupied())
}
