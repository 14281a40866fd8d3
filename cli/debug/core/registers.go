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

// CoreRegisterAddress identifies a register in architecture-specific
// numbering. For Cortex-M this is the DCRSR REGSEL value, for RISC-V the
// abstract command regno.
type CoreRegisterAddress uint16

type RegisterKind int

const (
	RegisterKindGeneral RegisterKind = iota
	RegisterKindPC
)

// RegisterDescription describes a single core register. Instances are
// process-wide constants supplied by the architecture packages.
type RegisterDescription struct {
	Name    string
	Kind    RegisterKind
	Address CoreRegisterAddress
}

// RegisterFile is the immutable register layout of an architecture.
// One shared instance exists per architecture variant.
type RegisterFile struct {
	PlatformRegisters []RegisterDescription

	ProgramCounter *RegisterDescription
	StackPointer   *RegisterDescription
	ReturnAddress  *RegisterDescription

	ArgumentRegisters []RegisterDescription
	ResultRegisters   []RegisterDescription
}

func (rf *RegisterFile) Registers() []RegisterDescription {
	return rf.PlatformRegisters
}

// PlatformRegister returns the register at index i, or nil if out of range.
func (rf *RegisterFile) PlatformRegister(i int) *RegisterDescription {
	if i < 0 || i >= len(rf.PlatformRegisters) {
		return nil
	}
	return &rf.PlatformRegisters[i]
}

func (rf *RegisterFile) ArgumentRegister(i int) *RegisterDescription {
	if i < 0 || i >= len(rf.ArgumentRegisters) {
		return nil
	}
	return &rf.ArgumentRegisters[i]
}

func (rf *RegisterFile) ResultRegister(i int) *RegisterDescription {
	if i < 0 || i >= len(rf.ResultRegisters) {
		return nil
	}
	return &rf.ResultRegisters[i]
}
