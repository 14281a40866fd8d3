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
package arm

import (
	"github.com/mongoose-os/mdbg/cli/debug/core"
)

// Register addresses are DCRSR REGSEL values (ARMv7-M ARM C1.6.3).
const (
	regnoSP   = 13
	regnoLR   = 14
	regnoPC   = 15
	regnoXPSR = 16
	regnoMSP  = 17
	regnoPSP  = 18
)

var cortexMPlatformRegisters = []core.RegisterDescription{
	{Name: "R0", Kind: core.RegisterKindGeneral, Address: 0},
	{Name: "R1", Kind: core.RegisterKindGeneral, Address: 1},
	{Name: "R2", Kind: core.RegisterKindGeneral, Address: 2},
	{Name: "R3", Kind: core.RegisterKindGeneral, Address: 3},
	{Name: "R4", Kind: core.RegisterKindGeneral, Address: 4},
	{Name: "R5", Kind: core.RegisterKindGeneral, Address: 5},
	{Name: "R6", Kind: core.RegisterKindGeneral, Address: 6},
	{Name: "R7", Kind: core.RegisterKindGeneral, Address: 7},
	{Name: "R8", Kind: core.RegisterKindGeneral, Address: 8},
	{Name: "R9", Kind: core.RegisterKindGeneral, Address: 9},
	{Name: "R10", Kind: core.RegisterKindGeneral, Address: 10},
	{Name: "R11", Kind: core.RegisterKindGeneral, Address: 11},
	{Name: "R12", Kind: core.RegisterKindGeneral, Address: 12},
	{Name: "SP", Kind: core.RegisterKindGeneral, Address: regnoSP},
	{Name: "LR", Kind: core.RegisterKindGeneral, Address: regnoLR},
	{Name: "PC", Kind: core.RegisterKindPC, Address: regnoPC},
	{Name: "xPSR", Kind: core.RegisterKindGeneral, Address: regnoXPSR},
	{Name: "MSP", Kind: core.RegisterKindGeneral, Address: regnoMSP},
	{Name: "PSP", Kind: core.RegisterKindGeneral, Address: regnoPSP},
}

// CortexMRegisterFile is shared by all Cortex-M variants. Argument and
// result registers follow AAPCS.
var CortexMRegisterFile = core.RegisterFile{
	PlatformRegisters: cortexMPlatformRegisters,
	ProgramCounter:    &cortexMPlatformRegisters[regnoPC],
	StackPointer:      &cortexMPlatformRegisters[regnoSP],
	ReturnAddress:     &cortexMPlatformRegisters[regnoLR],
	ArgumentRegisters: cortexMPlatformRegisters[0:4],
	ResultRegisters:   cortexMPlatformRegisters[0:2],
}
