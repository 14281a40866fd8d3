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

	"github.com/mongoose-os/mdbg/cli/debug/core"
	"github.com/mongoose-os/mdbg/cli/debug/probe/dap"
	"github.com/mongoose-os/mdbg/cli/debug/probe/dp"
	"github.com/mongoose-os/mdbg/cli/debug/probe/memap"
	"github.com/mongoose-os/mdbg/cli/debug/target"
	"github.com/mongoose-os/mdbg/cli/ourutil"
)

const defaultSWDClockHz = 1000000

// Session is an open connection to a target through a debug probe:
// the CMSIS-DAP link, the SWD debug port and MEM-AP on top of it,
// and an attached Core per target core.
type Session struct {
	Target *target.Target
	Cores  []*core.Core

	dapc dap.Client
	dpc  dp.Client
	mapc memap.Client
}

// Open connects to the probe, brings up the SWD link and attaches all
// the target's cores. The caller owns the session and must Close it.
func Open(ctx context.Context, t *target.Target, opts *dap.Opts) (*Session, error) {
	dapc, err := dap.NewClient(ctx, opts)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open debug probe")
	}
	s := &Session{Target: t, dapc: dapc}
	if err := s.init(ctx); err != nil {
		s.Close(ctx)
		return nil, errors.Trace(err)
	}
	return s, nil
}

func (s *Session) init(ctx context.Context) error {
	vendor, _ := s.dapc.GetVendorID(ctx)
	product, _ := s.dapc.GetProductID(ctx)
	serial, _ := s.dapc.GetSerialNumber(ctx)
	version, _ := s.dapc.GetFirmwareVersion(ctx)
	ourutil.Reportf("CMSIS-DAP probe %s %s v%s S/N %s", vendor, product, version, serial)
	if err := s.dapc.Connect(ctx, dap.ConnectModeSWD); err != nil {
		return errors.Annotatef(err, "failed to connect to debug probe in SWD mode")
	}
	clockHz := s.Target.DebugSequence.SWDClockHz
	if clockHz == 0 {
		clockHz = defaultSWDClockHz
	}
	if err := s.dapc.SWJClock(ctx, clockHz); err != nil {
		return errors.Annotatef(err, "failed to set clock")
	}
	if err := s.dapc.SWDConfigure(ctx, 0); err != nil {
		return errors.Annotatef(err, "failed to configure SWD")
	}
	if err := s.lineReset(ctx); err != nil {
		return errors.Trace(err)
	}
	if err := s.dapc.TransferConfigure(ctx, 0, 100, 100); err != nil {
		return errors.Annotatef(err, "failed to configure transfers")
	}
	s.dpc = dp.NewClient(s.dapc)
	if err := s.dpc.Init(ctx); err != nil {
		return errors.Annotatef(err, "failed to init DP, is the target connected and powered on?")
	}
	dpidr, err := s.dpc.GetIDR(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	ourutil.Reportf("DP v%d rev%d (%s), minimal? %t",
		dpidr.Version(), dpidr.Revision(), dpidr.Designer(), dpidr.Minimal())
	s.mapc = memap.NewClient(s.dpc, 0 /* apSel */)
	if err := s.mapc.Init(ctx); err != nil {
		return errors.Annotatef(err, "failed to init AP")
	}
	for i, scs := range CreateCores(s.Target) {
		c, err := scs.Attach(ctx, core.NewCoreState(i), s.mapc, s.Target)
		if err != nil {
			return errors.Annotatef(err, "failed to attach core %d (%s)", i, scs.CoreType())
		}
		s.Cores = append(s.Cores, c)
	}
	return nil
}

// lineReset performs the SWD line reset and JTAG-to-SWD switch sequence.
func (s *Session) lineReset(ctx context.Context) error {
	ones := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	// Put into reset first (50+ of 1, 8+ of 0).
	if err := s.dapc.SWJSequence(ctx, 64, ones); err != nil {
		return errors.Annotatef(err, "SWD reset sequence failed")
	}
	if err := s.dapc.SWJSequence(ctx, 16, []byte{0, 0}); err != nil {
		return errors.Annotatef(err, "SWD reset sequence failed")
	}
	// Send JTAG-to-SWD switch sequence.
	if err := s.dapc.SWJSequence(ctx, 64, ones); err != nil {
		return errors.Annotatef(err, "SWD reset sequence failed")
	}
	if err := s.dapc.SWJSequence(ctx, 16, []byte{0x9e, 0xe7}); err != nil {
		return errors.Annotatef(err, "SWD reset sequence failed")
	}
	// Reset again.
	if err := s.dapc.SWJSequence(ctx, 64, ones); err != nil {
		return errors.Annotatef(err, "SWD reset sequence failed")
	}
	if err := s.dapc.SWJSequence(ctx, 16, []byte{0, 0}); err != nil {
		return errors.Annotatef(err, "SWD reset sequence failed")
	}
	return nil
}

func (s *Session) Close(ctx context.Context) error {
	if s.dapc == nil {
		return nil
	}
	s.dapc.Disconnect(ctx)
	err := s.dapc.Close(ctx)
	s.dapc = nil
	return errors.Trace(err)
}
