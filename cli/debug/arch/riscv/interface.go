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

// Doc: RISC-V External Debug Support v0.13.

import (
	"context"

	"github.com/juju/errors"

	"github.com/mongoose-os/mdbg/cli/debug/probe"
)

// Debug Module registers (DMI address space).
const (
	dmData0      uint8 = 0x04
	dmDMControl  uint8 = 0x10
	dmDMStatus   uint8 = 0x11
	dmAbstractCS uint8 = 0x16
	dmCommand    uint8 = 0x17
)

// CommunicationInterface is the channel to a RISC-V Debug Module. Unlike
// the ARM backends, per-core debug state lives behind this interface, so
// the core itself carries none.
type CommunicationInterface interface {
	probe.MemoryInterface

	// ReadDMReg reads a Debug Module register.
	ReadDMReg(ctx context.Context, addr uint8) (uint32, error)
	// WriteDMReg writes a Debug Module register.
	WriteDMReg(ctx context.Context, addr uint8, value uint32) error
}

// memoryMappedDM talks to a Debug Module exposed on the system bus, as
// found on SoCs that memory-map the DM at a fixed base address.
type memoryMappedDM struct {
	probe.MemoryInterface
	base uint32
}

// NewMemoryMappedInterface returns a CommunicationInterface for a Debug
// Module whose registers are memory-mapped at base.
func NewMemoryMappedInterface(mem probe.MemoryInterface, base uint32) CommunicationInterface {
	return &memoryMappedDM{MemoryInterface: mem, base: base}
}

func (m *memoryMappedDM) ReadDMReg(ctx context.Context, addr uint8) (uint32, error) {
	value, err := m.ReadWord32(ctx, m.base+uint32(addr)*4)
	return value, errors.Annotatef(err, "failed to read DM reg 0x%02x", addr)
}

func (m *memoryMappedDM) WriteDMReg(ctx context.Context, addr uint8, value uint32) error {
	return errors.Annotatef(m.WriteWord32(ctx, m.base+uint32(addr)*4, value),
		"failed to write DM reg 0x%02x", addr)
}
