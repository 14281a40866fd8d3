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

	"github.com/cesanta/go-serial/serial"
	"github.com/juju/errors"

	"github.com/mongoose-os/mdbg/cli/debug/core"
	"github.com/mongoose-os/mdbg/cli/ourutil"
)

// ServeSerial runs a debug session over a serial port instead of TCP,
// for debuggers on the far side of a console line.
func ServeSerial(ctx context.Context, portName string, baudRate uint, c *core.Core) error {
	if baudRate == 0 {
		baudRate = 115200
	}
	sp, err := serial.Open(serial.OpenOptions{
		PortName:        portName,
		BaudRate:        baudRate,
		DataBits:        8,
		ParityMode:      serial.PARITY_NONE,
		StopBits:        1,
		MinimumReadSize: 1,
	})
	if err != nil {
		return errors.Annotatef(err, "failed to open %s", portName)
	}
	defer sp.Close()
	ourutil.Reportf("GDB server on %s @ %d", portName, baudRate)
	return errors.Trace(ServeConn(ctx, sp, c))
}
