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
package gdb

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"

	"github.com/mongoose-os/mdbg/cli/debug/core"
)

// stubCore is a minimal halted core with two breakpoint slots and a
// byte-addressable memory.
type stubCore struct {
	mem       map[uint32]uint8
	regs      map[core.CoreRegisterAddress]uint32
	slots     []*uint32
	bpEnabled bool
	running   bool
}

func newStubCore() *stubCore {
	return &stubCore{
		mem:   map[uint32]uint8{},
		regs:  map[core.CoreRegisterAddress]uint32{},
		slots: make([]*uint32, 2),
	}
}

func (s *stubCore) ReadWord32(ctx context.Context, addr uint32) (uint32, error) {
	var v uint32
	for i := uint32(0); i < 4; i++ {
		v |= uint32(s.mem[addr+i]) << (i * 8)
	}
	return v, nil
}

func (s *stubCore) ReadWord8(ctx context.Context, addr uint32) (uint8, error) {
	return s.mem[addr], nil
}

func (s *stubCore) Read32(ctx context.Context, addr uint32, data []uint32) error {
	for i := range data {
		v, _ := s.ReadWord32(ctx, addr+uint32(i)*4)
		data[i] = v
	}
	return nil
}

func (s *stubCore) Read8(ctx context.Context, addr uint32, data []uint8) error {
	for i := range data {
		data[i] = s.mem[addr+uint32(i)]
	}
	return nil
}

func (s *stubCore) WriteWord32(ctx context.Context, addr uint32, value uint32) error {
	for i := uint32(0); i < 4; i++ {
		s.mem[addr+i] = uint8(value >> (i * 8))
	}
	return nil
}

func (s *stubCore) WriteWord8(ctx context.Context, addr uint32, value uint8) error {
	s.mem[addr] = value
	return nil
}

func (s *stubCore) Write32(ctx context.Context, addr uint32, data []uint32) error {
	for i, v := range data {
		s.WriteWord32(ctx, addr+uint32(i)*4, v)
	}
	return nil
}

func (s *stubCore) Write8(ctx context.Context, addr uint32, data []uint8) error {
	for i, v := range data {
		s.mem[addr+uint32(i)] = v
	}
	return nil
}

func (s *stubCore) Flush(ctx context.Context) error { return nil }

func (s *stubCore) WaitForCoreHalted(ctx context.Context, timeout time.Duration) error {
	if s.running {
		return errors.Timeoutf("core did not halt")
	}
	return nil
}

func (s *stubCore) CoreHalted(ctx context.Context) (bool, error) { return !s.running, nil }

func (s *stubCore) Status(ctx context.Context) (core.CoreStatus, error) {
	if s.running {
		return core.Running, nil
	}
	return core.Halted(core.HaltReasonRequest), nil
}

func (s *stubCore) Halt(ctx context.Context, timeout time.Duration) (*core.CoreInformation, error) {
	s.running = false
	return &core.CoreInformation{}, nil
}

func (s *stubCore) Run(ctx context.Context) error {
	s.running = true
	return nil
}

func (s *stubCore) Reset(ctx context.Context) error {
	s.running = true
	return nil
}

func (s *stubCore) ResetAndHalt(ctx context.Context, timeout time.Duration) (*core.CoreInformation, error) {
	s.running = false
	return &core.CoreInformation{}, nil
}

func (s *stubCore) Step(ctx context.Context) (*core.CoreInformation, error) {
	return &core.CoreInformation{}, nil
}

func (s *stubCore) ReadCoreReg(ctx context.Context, addr core.CoreRegisterAddress) (uint32, error) {
	return s.regs[addr], nil
}

func (s *stubCore) WriteCoreReg(ctx context.Context, addr core.CoreRegisterAddress, value uint32) error {
	s.regs[addr] = value
	return nil
}

func (s *stubCore) AvailableBreakpointUnits(ctx context.Context) (int, error) {
	return len(s.slots), nil
}

func (s *stubCore) HWBreakpoints(ctx context.Context) ([]*uint32, error) {
	res := make([]*uint32, len(s.slots))
	copy(res, s.slots)
	return res, nil
}

func (s *stubCore) EnableBreakpoints(ctx context.Context, state bool) error {
	s.bpEnabled = state
	return nil
}

func (s *stubCore) SetHWBreakpoint(ctx context.Context, unitIndex int, addr uint32) error {
	a := addr
	s.slots[unitIndex] = &a
	return nil
}

func (s *stubCore) ClearHWBreakpoint(ctx context.Context, unitIndex int) error {
	s.slots[unitIndex] = nil
	return nil
}

func (s *stubCore) HWBreakpointsEnabled() bool { return s.bpEnabled }

var stubRegisters = core.RegisterFile{
	PlatformRegisters: []core.RegisterDescription{
		{Name: "R0", Kind: core.RegisterKindGeneral, Address: 0},
		{Name: "R1", Kind: core.RegisterKindGeneral, Address: 1},
		{Name: "PC", Kind: core.RegisterKindPC, Address: 2},
	},
}

func (s *stubCore) Registers() *core.RegisterFile { return &stubRegisters }

func (s *stubCore) Architecture() core.Architecture { return core.ArchitectureArm }

func frame(payload string) string {
	return NewPacket([]byte(payload)).String()
}

// runSession feeds the commands to a server session, acking every reply,
// and returns the concatenated output stream.
func runSession(t *testing.T, sc *stubCore, cmds ...string) string {
	var sb strings.Builder
	for _, cmd := range cmds {
		sb.WriteString(frame(cmd))
		sb.WriteString("+") // ack the reply
	}
	rw := newFakeRW(sb.String())
	c := core.New(sc, core.NewCoreState(0))
	err := ServeConn(context.Background(), rw, c)
	if err != nil && errors.Cause(err) != io.EOF {
		t.Fatalf("session failed: %s", err)
	}
	return rw.out.String()
}

func TestServerStatus(t *testing.T) {
	out := runSession(t, newStubCore(), "?")
	assert.Contains(t, out, frame(fmt.Sprintf("S%02x", sigINT)))
}

func TestServerQSupported(t *testing.T) {
	out := runSession(t, newStubCore(), "qSupported:multiprocess+")
	assert.Contains(t, out, "QStartNoAckMode+")
}

func TestServerMemoryReadWrite(t *testing.T) {
	sc := newStubCore()
	out := runSession(t, sc, "M20000000,4:deadbeef", "m20000000,4")
	assert.Contains(t, out, frame("OK"))
	assert.Contains(t, out, frame("deadbeef"))
	assert.Equal(t, uint8(0xde), sc.mem[0x20000000])
	assert.Equal(t, uint8(0xef), sc.mem[0x20000003])
}

func TestServerRegisters(t *testing.T) {
	sc := newStubCore()
	sc.regs[2] = 0x080001ac
	out := runSession(t, sc, "p2", "P0=78563412", "g")
	assert.Contains(t, out, frame("ac010008"))
	assert.Equal(t, uint32(0x12345678), sc.regs[0])
	// g dumps R0, R1, PC in order.
	assert.Contains(t, out, frame("78563412"+"00000000"+"ac010008"))
}

func TestServerBreakpoints(t *testing.T) {
	sc := newStubCore()
	out := runSession(t, sc, "Z1,80001ac,2", "z1,80001ac,2")
	assert.Equal(t, 2, strings.Count(out, frame("OK")))
	assert.Nil(t, sc.slots[0])
	assert.Nil(t, sc.slots[1])
}

func TestServerBreakpointExhaustion(t *testing.T) {
	sc := newStubCore()
	out := runSession(t, sc, "Z1,100,2", "Z1,200,2", "Z1,300,2")
	assert.Contains(t, out, frame("E0c"))
}

func TestServerBreakpointClearMissing(t *testing.T) {
	out := runSession(t, newStubCore(), "z1,100,2")
	assert.Contains(t, out, frame("E02"))
}

func TestServerDetachClearsBreakpoints(t *testing.T) {
	sc := newStubCore()
	out := runSession(t, sc, "Z1,100,2", "D")
	assert.Contains(t, out, frame("OK"))
	assert.Nil(t, sc.slots[0])
	assert.True(t, sc.running)
}

func TestServerMonitorReset(t *testing.T) {
	sc := newStubCore()
	// "reset" in hex.
	out := runSession(t, sc, "qRcmd,7265736574")
	assert.Contains(t, out, frame("4f4b0a")) // "OK\n"
	assert.True(t, sc.running)
}

func TestServerUnknownCommand(t *testing.T) {
	out := runSession(t, newStubCore(), "qAttached")
	assert.Contains(t, out, frame(""))
}
