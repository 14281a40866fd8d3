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
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/golang/glog"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/mdbg/common/pflagenv"
	"github.com/mongoose-os/mdbg/version"
)

const (
	envPrefix = "MDBG_"
)

var (
	targetFile = flag.String("target", "", "Target definition YAML file")
	listenAddr = flag.String("listen-addr", "localhost:3333", "TCP address for the GDB server to listen on")
	port       = flag.String("port", "", "Serve GDB over this serial port instead of TCP")
	baudRate   = flag.Uint("baud-rate", 115200, "Baud rate of the serial port")
	probeVID   = flag.Uint16("probe-vid", 0, "USB vendor ID of the debug probe, 0 - any")
	probePID   = flag.Uint16("probe-pid", 0, "USB product ID of the debug probe, 0 - any")
	coreIndex  = flag.Int("core", 0, "Index of the core to debug on multi-core targets")
	timeout    = flag.Duration("timeout", 3*time.Second, "Timeout for halt/reset operations")

	versionFlag = flag.Bool("version", false, "Print version and exit")
	helpFull    = flag.Bool("helpfull", false, "Show full help, including advanced flags")
)

var commands = []command{
	{"gdb-server", gdbServer, `Attach to the target and serve the GDB remote protocol`, []string{"target"}, []string{"listen-addr", "port", "baud-rate", "core"}},
	{"probes", listProbes, `List connected CMSIS-DAP debug probes`, []string{}, []string{"probe-vid", "probe-pid"}},
	{"status", coreStatus, `Print the core's run state`, []string{"target"}, []string{"core"}},
	{"halt", coreHalt, `Halt the core`, []string{"target"}, []string{"core", "timeout"}},
	{"resume", coreResume, `Resume the core`, []string{"target"}, []string{"core"}},
	{"reset", coreReset, `Reset the target`, []string{"target"}, []string{"core"}},
	{"reset-halt", coreResetHalt, `Reset the target and halt before the first instruction`, []string{"target"}, []string{"core", "timeout"}},
	{"regs", coreRegs, `Dump the core's registers`, []string{"target"}, []string{"core"}},
}

type command struct {
	name     string
	handler  handler
	short    string
	required []string
	optional []string
}

type handler func(ctx context.Context) error

func run() error {
	for _, c := range commands {
		if c.name == flag.Arg(0) {
			if err := checkFlags(c.required); err != nil {
				return errors.Trace(err)
			}
			if err := c.handler(context.Background()); err != nil {
				return errors.Trace(err)
			}
			return nil
		}
	}
	usage()
	return nil
}

func main() {
	initFlags()
	flag.Parse()
	pflagenv.Parse(envPrefix)

	if *helpFull {
		unhideFlags()
		usage()
		return
	} else if *versionFlag {
		fmt.Printf(
			"%s\nVersion: %s\nBuild ID: %s\n",
			"The Mongoose OS debug probe tool", version.Version, version.BuildId,
		)
		return
	}

	if err := run(); err != nil {
		glog.Infof("Error: %+v", err)
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
