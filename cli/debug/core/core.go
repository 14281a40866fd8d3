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

	"github.com/golang/glog"
	"github.com/juju/errors"
)

// ErrNoAvailableBreakpoints is returned by Core.SetHWBreakpoint when every
// hardware comparator slot is occupied. Check with errors.Cause.
var ErrNoAvailableBreakpoints = errors.New("no available hardware breakpoints")

// CoreState is the per-core identity owned by the session layer. A
// *CoreState is lent to at most one Core at a time; the Core must not
// outlive it.
type CoreState struct {
	id int
}

func NewCoreState(id int) *CoreState {
	return &CoreState{id: id}
}

func (cs *CoreState) ID() int {
	return cs.id
}

type BreakpointID int

// Breakpoint records a target address and the hardware comparator slot it
// occupies.
type Breakpoint struct {
	Address   uint32
	UnitIndex int
}

// Core is the architecture-independent façade over a CoreInterface
// implementation. It is only valid while the underlying probe session and
// its CoreState remain alive.
type Core struct {
	inner CoreInterface
	state *CoreState
}

func New(inner CoreInterface, state *CoreState) *Core {
	return &Core{inner: inner, state: state}
}

func (c *Core) ID() int {
	return c.state.id
}

func (c *Core) WaitForCoreHalted(ctx context.Context, timeout time.Duration) error {
	return errors.Trace(c.inner.WaitForCoreHalted(ctx, timeout))
}

func (c *Core) CoreHalted(ctx context.Context) (bool, error) {
	return c.inner.CoreHalted(ctx)
}

func (c *Core) Status(ctx context.Context) (CoreStatus, error) {
	return c.inner.Status(ctx)
}

func (c *Core) Halt(ctx context.Context, timeout time.Duration) (*CoreInformation, error) {
	return c.inner.Halt(ctx, timeout)
}

func (c *Core) Run(ctx context.Context) error {
	return errors.Trace(c.inner.Run(ctx))
}

func (c *Core) Reset(ctx context.Context) error {
	return errors.Trace(c.inner.Reset(ctx))
}

func (c *Core) ResetAndHalt(ctx context.Context, timeout time.Duration) (*CoreInformation, error) {
	return c.inner.ResetAndHalt(ctx, timeout)
}

func (c *Core) Step(ctx context.Context) (*CoreInformation, error) {
	return c.inner.Step(ctx)
}

func (c *Core) ReadCoreReg(ctx context.Context, addr CoreRegisterAddress) (uint32, error) {
	return c.inner.ReadCoreReg(ctx, addr)
}

func (c *Core) WriteCoreReg(ctx context.Context, addr CoreRegisterAddress, value uint32) error {
	return errors.Trace(c.inner.WriteCoreReg(ctx, addr, value))
}

func (c *Core) AvailableBreakpointUnits(ctx context.Context) (int, error) {
	return c.inner.AvailableBreakpointUnits(ctx)
}

func (c *Core) Registers() *RegisterFile {
	return c.inner.Registers()
}

func (c *Core) Architecture() Architecture {
	return c.inner.Architecture()
}

// findFreeBreakpointComparator returns the index of the first free
// hardware comparator slot.
func (c *Core) findFreeBreakpointComparator(ctx context.Context) (int, error) {
	bps, err := c.inner.HWBreakpoints(ctx)
	if err != nil {
		return 0, errors.Trace(err)
	}
	for i, bp := range bps {
		if bp == nil {
			return i, nil
		}
	}
	return 0, errors.Trace(ErrNoAvailableBreakpoints)
}

// SetHWBreakpoint sets a hardware breakpoint at addr. The number of
// supported breakpoints is chip specific, see AvailableBreakpointUnits.
// Setting a breakpoint at an address that already has one reuses its slot.
func (c *Core) SetHWBreakpoint(ctx context.Context, addr uint32) error {
	// First use arms the breakpoint unit.
	if !c.inner.HWBreakpointsEnabled() {
		if err := c.inner.EnableBreakpoints(ctx, true); err != nil {
			return errors.Trace(err)
		}
	}

	bps, err := c.inner.HWBreakpoints(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	unitIndex := -1
	for i, bp := range bps {
		if bp != nil && *bp == addr {
			unitIndex = i
			break
		}
	}
	if unitIndex < 0 {
		if unitIndex, err = c.findFreeBreakpointComparator(ctx); err != nil {
			return errors.Trace(err)
		}
	}

	glog.V(2).Infof("Setting HW breakpoint #%d at 0x%08x", unitIndex, addr)

	// Set the breakpoint even if it was already present so it is
	// guaranteed active.
	return errors.Trace(c.inner.SetHWBreakpoint(ctx, unitIndex, addr))
}

// ClearHWBreakpoint clears the hardware breakpoint at addr.
// Returns a not-found error if no comparator matches addr.
func (c *Core) ClearHWBreakpoint(ctx context.Context, addr uint32) error {
	bps, err := c.inner.HWBreakpoints(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	for i, bp := range bps {
		if bp != nil && *bp == addr {
			glog.V(2).Infof("Clearing HW breakpoint #%d at 0x%08x", i, addr)
			return errors.Trace(c.inner.ClearHWBreakpoint(ctx, i))
		}
	}
	return errors.NotFoundf("breakpoint at 0x%08x", addr)
}

// ClearAllHWBreakpoints clears every programmed comparator, regardless of
// who set it and regardless of the enable bit. Called during session
// teardown so the hardware is left clean; a no-op when nothing is set.
func (c *Core) ClearAllHWBreakpoints(ctx context.Context) error {
	bps, err := c.inner.HWBreakpoints(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	for _, bp := range bps {
		if bp == nil {
			continue
		}
		if err := c.ClearHWBreakpoint(ctx, *bp); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// HWBreakpoints reports every comparator slot, nil meaning free.
func (c *Core) HWBreakpoints(ctx context.Context) ([]*uint32, error) {
	return c.inner.HWBreakpoints(ctx)
}

// Memory access passthrough: a Core can be used directly as a
// memory-mapped debug target.

func (c *Core) ReadWord32(ctx context.Context, addr uint32) (uint32, error) {
	return c.inner.ReadWord32(ctx, addr)
}

func (c *Core) ReadWord8(ctx context.Context, addr uint32) (uint8, error) {
	return c.inner.ReadWord8(ctx, addr)
}

func (c *Core) Read32(ctx context.Context, addr uint32, data []uint32) error {
	return c.inner.Read32(ctx, addr, data)
}

func (c *Core) Read8(ctx context.Context, addr uint32, data []uint8) error {
	return c.inner.Read8(ctx, addr, data)
}

func (c *Core) WriteWord32(ctx context.Context, addr uint32, value uint32) error {
	return c.inner.WriteWord32(ctx, addr, value)
}

func (c *Core) WriteWord8(ctx context.Context, addr uint32, value uint8) error {
	return c.inner.WriteWord8(ctx, addr, value)
}

func (c *Core) Write32(ctx context.Context, addr uint32, data []uint32) error {
	return c.inner.Write32(ctx, addr, data)
}

func (c *Core) Write8(ctx context.Context, addr uint32, data []uint8) error {
	return c.inner.Write8(ctx, addr, data)
}

func (c *Core) Flush(ctx context.Context) error {
	return c.inner.Flush(ctx)
}
