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
package main

import (
	"context"
	"strings"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/mdbg/cli/debug"
	"github.com/mongoose-os/mdbg/cli/debug/core"
	"github.com/mongoose-os/mdbg/cli/debug/probe/dap"
	"github.com/mongoose-os/mdbg/cli/debug/probe/usb"
	"github.com/mongoose-os/mdbg/cli/debug/target"
	"github.com/mongoose-os/mdbg/cli/gdb"
	"github.com/mongoose-os/mdbg/cli/ourutil"
)

func probeOpts() *dap.Opts {
	return &dap.Opts{VID: *probeVID, PID: *probePID}
}

// openSession loads the target definition and attaches to it through the
// probe. The returned core is the one selected with --core.
func openSession(ctx context.Context) (*debug.Session, *core.Core, error) {
	t, err := target.Load(*targetFile)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	s, err := debug.Open(ctx, t, probeOpts())
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	if *coreIndex < 0 || *coreIndex >= len(s.Cores) {
		s.Close(ctx)
		return nil, nil, errors.NotFoundf("core %d (target has %d)", *coreIndex, len(s.Cores))
	}
	return s, s.Cores[*coreIndex], nil
}

func listProbes(ctx context.Context) error {
	probes, err := dap.Enumerate(probeOpts())
	if err != nil {
		return errors.Trace(err)
	}
	if len(probes) == 0 {
		reportInaccessibleProbes()
		return nil
	}
	for i, p := range probes {
		ourutil.Reportf("%d: %04x:%04x %s", i, p.VID, p.PID, p.Path)
	}
	return nil
}

// reportInaccessibleProbes looks for probes at the USB bus level when HID
// enumeration comes up empty. A device visible here but not over HID is
// usually a permission problem (no udev rule on Linux).
func reportInaccessibleProbes() {
	devs, err := usb.List(*probeVID, *probePID)
	if err != nil {
		glog.V(1).Infof("USB enumeration failed: %s", err)
	}
	var found []usb.DeviceInfo
	for _, d := range devs {
		if *probeVID == 0 && !strings.Contains(strings.ToUpper(d.Product), "CMSIS-DAP") {
			continue
		}
		found = append(found, d)
	}
	if len(found) == 0 {
		ourutil.Reportf("No probes found")
		return
	}
	ourutil.Reportf("No usable probes found. These USB devices look like probes")
	ourutil.Reportf("but could not be opened, check device permissions:")
	for _, d := range found {
		ourutil.Reportf("  %04x:%04x %s %s", d.VID, d.PID, d.Product, d.Serial)
	}
}

func gdbServer(ctx context.Context) error {
	s, c, err := openSession(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	defer s.Close(context.Background())
	if *port != "" {
		return errors.Trace(gdb.ServeSerial(ctx, *port, *baudRate, c))
	}
	return errors.Trace(gdb.ListenAndServe(ctx, *listenAddr, c))
}

func coreStatus(ctx context.Context) error {
	s, c, err := openSession(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	defer s.Close(context.Background())
	st, err := c.Status(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	ourutil.Reportf("Core %d (%s): %s", c.ID(), c.Architecture(), st)
	return nil
}

func coreHalt(ctx context.Context) error {
	s, c, err := openSession(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	defer s.Close(context.Background())
	ci, err := c.Halt(ctx, *timeout)
	if err != nil {
		return errors.Trace(err)
	}
	ourutil.Reportf("Halted at 0x%08x", ci.PC)
	return nil
}

func coreResume(ctx context.Context) error {
	s, c, err := openSession(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	defer s.Close(context.Background())
	if err := c.Run(ctx); err != nil {
		return errors.Trace(err)
	}
	ourutil.Reportf("Running")
	return nil
}

func coreReset(ctx context.Context) error {
	s, c, err := openSession(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	defer s.Close(context.Background())
	if err := c.Reset(ctx); err != nil {
		return errors.Trace(err)
	}
	ourutil.Reportf("Reset done")
	return nil
}

func coreResetHalt(ctx context.Context) error {
	s, c, err := openSession(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	defer s.Close(context.Background())
	ci, err := c.ResetAndHalt(ctx, *timeout)
	if err != nil {
		return errors.Trace(err)
	}
	ourutil.Reportf("Halted at 0x%08x", ci.PC)
	return nil
}

func coreRegs(ctx context.Context) error {
	s, c, err := openSession(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	defer s.Close(context.Background())
	st, err := c.Status(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if !st.IsHalted() {
		return errors.Errorf("core is %s, halt it first", st)
	}
	for _, rd := range c.Registers().PlatformRegisters {
		v, err := c.ReadCoreReg(ctx, rd.Address)
		if err != nil {
			return errors.Annotatef(err, "failed to read %s", rd.Name)
		}
		ourutil.Reportf("%-5s 0x%08x", rd.Name, v)
	}
	return nil
}
