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

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCoreType(t *testing.T) {
	cases := []struct {
		s    string
		fail bool
		ct   CoreType
	}{
		{s: "armv6m", ct: CoreTypeArmv6m},
		{s: "cortex-m0", ct: CoreTypeArmv6m},
		{s: "armv7m", ct: CoreTypeArmv7m},
		{s: "cortex-m3", ct: CoreTypeArmv7m},
		{s: "armv7em", ct: CoreTypeArmv7em},
		{s: "cortex-m4", ct: CoreTypeArmv7em},
		{s: "cortex-m7", ct: CoreTypeArmv7em},
		{s: "armv8m", ct: CoreTypeArmv8m},
		{s: "cortex-m33", ct: CoreTypeArmv8m},
		{s: "riscv", ct: CoreTypeRiscv},
		{s: "riscv32", ct: CoreTypeRiscv},
		{s: "", fail: true},
		{s: "z80", fail: true},
	}
	for _, c := range cases {
		ct, err := ParseCoreType(c.s)
		if c.fail {
			assert.Errorf(t, err, "case %q", c.s)
			assert.True(t, errors.IsNotFound(err), "case %q", c.s)
		} else {
			require.NoErrorf(t, err, "case %q", c.s)
			assert.Equalf(t, c.ct, ct, "case %q", c.s)
		}
	}
}

func TestCoreTypeArchitecture(t *testing.T) {
	for _, ct := range []CoreType{CoreTypeArmv6m, CoreTypeArmv7m, CoreTypeArmv7em, CoreTypeArmv8m} {
		assert.Equal(t, ArchitectureArm, ct.Architecture())
	}
	assert.Equal(t, ArchitectureRiscv, CoreTypeRiscv.Architecture())
}

func TestCoreStatusString(t *testing.T) {
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "locked up", LockedUp.String())
	assert.Equal(t, "sleeping", Sleeping.String())
	assert.Equal(t, "unknown", UnknownStatus.String())
	assert.Equal(t, "halted (breakpoint)", Halted(HaltReasonBreakpoint).String())
	assert.True(t, Halted(HaltReasonStep).IsHalted())
	assert.False(t, Running.IsHalted())
}
