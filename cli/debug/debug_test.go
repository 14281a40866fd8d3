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
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/mdbg/cli/debug/core"
	"github.com/mongoose-os/mdbg/cli/debug/target"
)

func TestAttachArmFamilyMismatch(t *testing.T) {
	scs := NewSpecificCoreState(core.CoreTypeArmv7em)
	_, err := scs.AttachArm(context.Background(), core.NewCoreState(0), nil,
		target.DebugSequence{Family: target.FamilyRiscv})
	require.Error(t, err)
	assert.True(t, errors.IsNotValid(err), "got %v", err)
}

func TestAttachRiscvCoreTypeMismatch(t *testing.T) {
	scs := NewSpecificCoreState(core.CoreTypeArmv6m)
	_, err := scs.AttachRiscv(context.Background(), core.NewCoreState(0), nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotValid(err), "got %v", err)
}

func TestAttachArmRiscvCoreType(t *testing.T) {
	// A RISC-V core type handed the ARM attach path is a configuration
	// error, caught before any probe traffic.
	scs := NewSpecificCoreState(core.CoreTypeRiscv)
	_, err := scs.AttachArm(context.Background(), core.NewCoreState(0), nil,
		target.DebugSequence{Family: target.FamilyArm})
	require.Error(t, err)
	assert.True(t, errors.IsNotValid(err), "got %v", err)
}

func TestCreateCores(t *testing.T) {
	tgt, err := target.Parse([]byte(`
name: stm32f407
debug_sequence:
  family: arm
cores:
  - cortex-m4
  - cortex-m0
`))
	require.NoError(t, err)
	scss := CreateCores(tgt)
	require.Len(t, scss, 2)
	assert.Equal(t, core.CoreTypeArmv7em, scss[0].CoreType())
	assert.Equal(t, core.CoreTypeArmv6m, scss[1].CoreType())
}
