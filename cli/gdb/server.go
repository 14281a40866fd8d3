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

// A GDB remote serial protocol stub bridging a debugger to a Core.
// https://sourceware.org/gdb/onlinedocs/gdb/Remote-Protocol.html

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/mdbg/cli/debug/core"
	"github.com/mongoose-os/mdbg/cli/ourutil"
)

const (
	haltTimeout  = 3 * time.Second
	pollInterval = 100 * time.Millisecond
	maxPacket    = 4096

	sigINT  = 2
	sigTRAP = 5
)

var errDetached = errors.New("detached")

// ListenAndServe accepts debugger connections on a TCP address and
// serves them one at a time against the given core.
func ListenAndServe(ctx context.Context, addr string, c *core.Core) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Annotatef(err, "failed to listen on %s", addr)
	}
	defer l.Close()
	ourutil.Reportf("GDB server listening on %s", l.Addr())
	for {
		conn, err := l.Accept()
		if err != nil {
			return errors.Trace(err)
		}
		ourutil.Reportf("Debugger connected from %s", conn.RemoteAddr())
		if err := ServeConn(ctx, conn, c); err != nil && errors.Cause(err) != io.EOF {
			glog.Errorf("session ended: %s", err)
		}
		conn.Close()
		ourutil.Reportf("Debugger disconnected")
	}
}

// ServeConn runs a single debug session over rw. It returns when the
// debugger detaches or the transport fails. Hardware breakpoints are
// cleared on the way out so the target is left clean.
func ServeConn(ctx context.Context, rw io.ReadWriter, c *core.Core) error {
	s := &session{conn: NewConn(rw), core: c}
	defer s.core.ClearAllHWBreakpoints(context.Background())
	for {
		p, err := s.conn.ReadPacket()
		if err != nil {
			return errors.Trace(err)
		}
		if p.Kind == KindNotification {
			// Interrupt byte outside the run loop: halt and report.
			if _, err := s.core.Halt(ctx, haltTimeout); err != nil {
				return errors.Trace(err)
			}
			st, _ := s.core.Status(ctx)
			if err := s.reply(stopReply(st)); err != nil {
				return errors.Trace(err)
			}
			continue
		}
		if err := s.handle(ctx, string(p.Data)); err != nil {
			if errors.Cause(err) == errDetached {
				return nil
			}
			return errors.Trace(err)
		}
	}
}

type session struct {
	conn *Conn
	core *core.Core

	noAckPending bool
}

func (s *session) reply(data string) error {
	err := s.conn.WritePacket(NewPacket([]byte(data)))
	if err == nil && s.noAckPending {
		// The reply to QStartNoAckMode is still acked, everything after
		// it is not.
		s.conn.SetNoAckMode()
		s.noAckPending = false
	}
	return errors.Trace(err)
}

func (s *session) replyErr(err error) error {
	glog.Errorf("command failed: %s", err)
	code := 1
	switch {
	case errors.Cause(err) == core.ErrNoAvailableBreakpoints:
		code = 0x0c
	case errors.IsNotFound(err):
		code = 0x02
	}
	return s.reply(fmt.Sprintf("E%02x", code))
}

func (s *session) handle(ctx context.Context, cmd string) error {
	glog.V(2).Infof("cmd %q", cmd)
	switch {
	case strings.HasPrefix(cmd, "qSupported"):
		return s.reply(fmt.Sprintf("PacketSize=%x;QStartNoAckMode+", maxPacket))
	case cmd == "QStartNoAckMode":
		s.noAckPending = true
		return s.reply("OK")
	case strings.HasPrefix(cmd, "qRcmd,"):
		return s.monitor(ctx, cmd[len("qRcmd,"):])
	case cmd == "?":
		st, err := s.core.Status(ctx)
		if err != nil {
			return s.replyErr(err)
		}
		if !st.IsHalted() {
			if _, err := s.core.Halt(ctx, haltTimeout); err != nil {
				return s.replyErr(err)
			}
			st, _ = s.core.Status(ctx)
		}
		return s.reply(stopReply(st))
	case cmd == "g":
		return s.readRegisters(ctx)
	case strings.HasPrefix(cmd, "G"):
		return s.writeRegisters(ctx, cmd[1:])
	case strings.HasPrefix(cmd, "p"):
		return s.readRegister(ctx, cmd[1:])
	case strings.HasPrefix(cmd, "P"):
		return s.writeRegister(ctx, cmd[1:])
	case strings.HasPrefix(cmd, "m"):
		return s.readMemory(ctx, cmd[1:])
	case strings.HasPrefix(cmd, "M"):
		return s.writeMemory(ctx, cmd[1:])
	case cmd == "c":
		return s.resume(ctx)
	case cmd == "s":
		return s.step(ctx)
	case strings.HasPrefix(cmd, "Z0,"), strings.HasPrefix(cmd, "Z1,"):
		// Software breakpoint requests are also served with hardware
		// comparators, flash targets cannot take code patches.
		return s.setBreakpoint(ctx, cmd[3:])
	case strings.HasPrefix(cmd, "z0,"), strings.HasPrefix(cmd, "z1,"):
		return s.clearBreakpoint(ctx, cmd[3:])
	case cmd == "D":
		if err := s.detach(ctx); err != nil {
			return errors.Trace(err)
		}
		return errDetached
	case cmd == "k":
		s.core.ClearAllHWBreakpoints(ctx)
		s.core.Reset(ctx)
		return errDetached
	}
	// Unsupported command, the empty reply tells GDB so.
	return s.reply("")
}

func (s *session) monitor(ctx context.Context, hexCmd string) error {
	cmdBytes, err := hex.DecodeString(hexCmd)
	if err != nil {
		return s.replyErr(errors.Annotatef(err, "invalid monitor command"))
	}
	switch cmd := strings.TrimSpace(string(cmdBytes)); cmd {
	case "reset":
		if err := s.core.Reset(ctx); err != nil {
			return s.replyErr(err)
		}
	case "reset halt":
		if _, err := s.core.ResetAndHalt(ctx, haltTimeout); err != nil {
			return s.replyErr(err)
		}
	case "halt":
		if _, err := s.core.Halt(ctx, haltTimeout); err != nil {
			return s.replyErr(err)
		}
	default:
		return s.reply("")
	}
	return s.reply(hex.EncodeToString([]byte("OK\n")))
}

func (s *session) readRegisters(ctx context.Context) error {
	var sb strings.Builder
	for _, rd := range s.core.Registers().PlatformRegisters {
		v, err := s.core.ReadCoreReg(ctx, rd.Address)
		if err != nil {
			return s.replyErr(err)
		}
		sb.WriteString(hex32le(v))
	}
	return s.reply(sb.String())
}

func (s *session) writeRegisters(ctx context.Context, data string) error {
	regs := s.core.Registers().PlatformRegisters
	if len(data) < len(regs)*8 {
		return s.replyErr(errors.NotValidf("register dump of %d chars", len(data)))
	}
	for i, rd := range regs {
		v, err := parseHex32le(data[i*8 : i*8+8])
		if err != nil {
			return s.replyErr(err)
		}
		if err := s.core.WriteCoreReg(ctx, rd.Address, v); err != nil {
			return s.replyErr(err)
		}
	}
	return s.reply("OK")
}

func (s *session) readRegister(ctx context.Context, arg string) error {
	n, err := strconv.ParseUint(arg, 16, 16)
	if err != nil {
		return s.replyErr(errors.NotValidf("register number %q", arg))
	}
	regs := s.core.Registers().PlatformRegisters
	if int(n) >= len(regs) {
		return s.replyErr(errors.NotFoundf("register %d", n))
	}
	v, err := s.core.ReadCoreReg(ctx, regs[n].Address)
	if err != nil {
		return s.replyErr(err)
	}
	return s.reply(hex32le(v))
}

func (s *session) writeRegister(ctx context.Context, arg string) error {
	parts := strings.SplitN(arg, "=", 2)
	if len(parts) != 2 {
		return s.replyErr(errors.NotValidf("register write %q", arg))
	}
	n, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return s.replyErr(errors.NotValidf("register number %q", parts[0]))
	}
	regs := s.core.Registers().PlatformRegisters
	if int(n) >= len(regs) {
		return s.replyErr(errors.NotFoundf("register %d", n))
	}
	v, err := parseHex32le(parts[1])
	if err != nil {
		return s.replyErr(err)
	}
	if err := s.core.WriteCoreReg(ctx, regs[n].Address, v); err != nil {
		return s.replyErr(err)
	}
	return s.reply("OK")
}

func parseAddrLen(arg string) (uint32, int, error) {
	parts := strings.SplitN(arg, ",", 2)
	if len(parts) != 2 {
		return 0, 0, errors.NotValidf("address range %q", arg)
	}
	addr, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return 0, 0, errors.NotValidf("address %q", parts[0])
	}
	length, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return 0, 0, errors.NotValidf("length %q", parts[1])
	}
	if length > maxPacket/2 {
		return 0, 0, errors.NotValidf("length %d", length)
	}
	return uint32(addr), int(length), nil
}

func (s *session) readMemory(ctx context.Context, arg string) error {
	addr, length, err := parseAddrLen(arg)
	if err != nil {
		return s.replyErr(err)
	}
	data := make([]byte, length)
	if err := s.core.Read8(ctx, addr, data); err != nil {
		return s.replyErr(err)
	}
	return s.reply(hex.EncodeToString(data))
}

func (s *session) writeMemory(ctx context.Context, arg string) error {
	parts := strings.SplitN(arg, ":", 2)
	if len(parts) != 2 {
		return s.replyErr(errors.NotValidf("memory write %q", arg))
	}
	addr, length, err := parseAddrLen(parts[0])
	if err != nil {
		return s.replyErr(err)
	}
	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return s.replyErr(errors.NotValidf("memory write payload"))
	}
	if len(data) != length {
		return s.replyErr(errors.NotValidf("memory write length %d != %d", len(data), length))
	}
	if err := s.core.Write8(ctx, addr, data); err != nil {
		return s.replyErr(err)
	}
	if err := s.core.Flush(ctx); err != nil {
		return s.replyErr(err)
	}
	return s.reply("OK")
}

func (s *session) resume(ctx context.Context) error {
	if err := s.core.Run(ctx); err != nil {
		return s.replyErr(err)
	}
	// No reply until the core stops again, either on its own (breakpoint,
	// fault) or on a debugger interrupt byte.
	for {
		if s.conn.PollInterrupt(pollInterval) {
			if _, err := s.core.Halt(ctx, haltTimeout); err != nil {
				return s.replyErr(err)
			}
			return s.reply(fmt.Sprintf("S%02x", sigINT))
		}
		st, err := s.core.Status(ctx)
		if err != nil {
			return s.replyErr(err)
		}
		if st.IsHalted() || st.State == core.StateLockedUp {
			return s.reply(stopReply(st))
		}
	}
}

func (s *session) step(ctx context.Context) error {
	if _, err := s.core.Step(ctx); err != nil {
		return s.replyErr(err)
	}
	st, err := s.core.Status(ctx)
	if err != nil {
		return s.replyErr(err)
	}
	return s.reply(stopReply(st))
}

func parseBreakpointAddr(arg string) (uint32, error) {
	// addr,kind - kind is the instruction size, we don't need it.
	parts := strings.SplitN(arg, ",", 2)
	addr, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return 0, errors.NotValidf("breakpoint address %q", parts[0])
	}
	return uint32(addr), nil
}

func (s *session) setBreakpoint(ctx context.Context, arg string) error {
	addr, err := parseBreakpointAddr(arg)
	if err != nil {
		return s.replyErr(err)
	}
	if err := s.core.SetHWBreakpoint(ctx, addr); err != nil {
		return s.replyErr(err)
	}
	return s.reply("OK")
}

func (s *session) clearBreakpoint(ctx context.Context, arg string) error {
	addr, err := parseBreakpointAddr(arg)
	if err != nil {
		return s.replyErr(err)
	}
	if err := s.core.ClearHWBreakpoint(ctx, addr); err != nil {
		return s.replyErr(err)
	}
	return s.reply("OK")
}

func (s *session) detach(ctx context.Context) error {
	if err := s.core.ClearAllHWBreakpoints(ctx); err != nil {
		return s.replyErr(err)
	}
	if err := s.core.Run(ctx); err != nil {
		return s.replyErr(err)
	}
	return s.reply("OK")
}

// stopReply renders a halted status as an RSP stop reply.
func stopReply(st core.CoreStatus) string {
	sig := sigTRAP
	if st.IsHalted() && st.Reason == core.HaltReasonRequest {
		sig = sigINT
	}
	return fmt.Sprintf("S%02x", sig)
}

func hex32le(v uint32) string {
	return fmt.Sprintf("%02x%02x%02x%02x", v&0xff, (v>>8)&0xff, (v>>16)&0xff, (v>>24)&0xff)
}

func parseHex32le(s string) (uint32, error) {
	if len(s) != 8 {
		return 0, errors.NotValidf("register value %q", s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return 0, errors.NotValidf("register value %q", s)
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}
