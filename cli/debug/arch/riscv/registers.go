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
	"github.com/mongoose-os/mdbg/cli/debug/core"
)

// Register addresses are abstract command regnos: 0x1000+n for GPR xn,
// CSR number for CSRs. The program counter is accessed through dpc.
const (
	regnoGPRBase = 0x1000
	regnoDPC     = 0x7b1 // csrDPC
)

var riscvPlatformRegisters = []core.RegisterDescription{
	{Name: "zero", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 0},
	{Name: "ra", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 1},
	{Name: "sp", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 2},
	{Name: "gp", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 3},
	{Name: "tp", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 4},
	{Name: "t0", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 5},
	{Name: "t1", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 6},
	{Name: "t2", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 7},
	{Name: "s0", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 8},
	{Name: "s1", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 9},
	{Name: "a0", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 10},
	{Name: "a1", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 11},
	{Name: "a2", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 12},
	{Name: "a3", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 13},
	{Name: "a4", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 14},
	{Name: "a5", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 15},
	{Name: "a6", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 16},
	{Name: "a7", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 17},
	{Name: "s2", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 18},
	{Name: "s3", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 19},
	{Name: "s4", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 20},
	{Name: "s5", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 21},
	{Name: "s6", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 22},
	{Name: "s7", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 23},
	{Name: "s8", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 24},
	{Name: "s9", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 25},
	{Name: "s10", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 26},
	{Name: "s11", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 27},
	{Name: "t3", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 28},
	{Name: "t4", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 29},
	{Name: "t5", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 30},
	{Name: "t6", Kind: core.RegisterKindGeneral, Address: regnoGPRBase + 31},
	{Name: "pc", Kind: core.RegisterKindPC, Address: regnoDPC},
}

// RiscvRegisterFile follows the RISC-V calling convention: a0-a7 carry
// arguments, a0-a1 carry results.
var RiscvRegisterFile = core.RegisterFile{
	PlatformRegisters: riscvPlatformRegisters,
	ProgramCounter:    &riscvPlatformRegisters[32],
	StackPointer:      &riscvPlatformRegisters[2],
	ReturnAddress:     &riscvPlatformRegisters[1],
	ArgumentRegisters: riscvPlatformRegisters[10:18],
	ResultRegisters:   riscvPlatformRegisters[10:12],
}
