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
package target

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/mdbg/cli/debug/core"
)

func TestParseArmTarget(t *testing.T) {
	data := `
name: stm32f407
cores:
  - cortex-m4
debug_sequence:
  family: arm
  reset_catch: true
  swd_clock_hz: 4000000
`
	tgt, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "stm32f407", tgt.Name)
	assert.Equal(t, []core.CoreType{core.CoreTypeArmv7em}, tgt.CoreTypes())
	assert.Equal(t, FamilyArm, tgt.DebugSequence.Family)
	assert.True(t, tgt.DebugSequence.ResetCatch)
	assert.Equal(t, uint32(4000000), tgt.DebugSequence.SWDClockHz)
}

func TestParseRiscvTarget(t *testing.T) {
	data := `
name: esp32c3
cores:
  - riscv32
debug_sequence:
  family: riscv
  dm_base: 0x20000000
`
	tgt, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, []core.CoreType{core.CoreTypeRiscv}, tgt.CoreTypes())
	assert.Equal(t, FamilyRiscv, tgt.DebugSequence.Family)
	assert.Equal(t, uint32(0x20000000), tgt.DebugSequence.DMBase)
}

func TestParseMultiCore(t *testing.T) {
	data := `
name: lpc4350
cores:
  - cortex-m4
  - cortex-m0
debug_sequence:
  family: arm
`
	tgt, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.Equal(t,
		[]core.CoreType{core.CoreTypeArmv7em, core.CoreTypeArmv6m},
		tgt.CoreTypes())
}

func TestParseInvalid(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"no name", `
cores: [cortex-m4]
debug_sequence: {family: arm}
`},
		{"no cores", `
name: foo
debug_sequence: {family: arm}
`},
		{"no family", `
name: foo
cores: [cortex-m4]
`},
		{"bad family", `
name: foo
cores: [cortex-m4]
debug_sequence: {family: mips}
`},
		{"bad core type", `
name: foo
cores: [cortex-m12]
debug_sequence: {family: arm}
`},
		{"not yaml", "\t{"},
	}
	for _, c := range cases {
		_, err := Parse([]byte(c.data))
		assert.Errorf(t, err, "case %q", c.name)
	}
}

func TestParseUnknownCoreTypeIsNotFound(t *testing.T) {
	_, err := Parse([]byte(`
name: foo
cores: [cortex-m12]
debug_sequence: {family: arm}
`))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestLoad(t *testing.T) {
	dir, err := ioutil.TempDir("", "target_test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	fname := filepath.Join(dir, "nrf52.yml")
	require.NoError(t, ioutil.WriteFile(fname, []byte(`
name: nrf52832
cores: [cortex-m4]
debug_sequence: {family: arm}
`), 0644))

	tgt, err := Load(fname)
	require.NoError(t, err)
	assert.Equal(t, "nrf52832", tgt.Name)

	_, err = Load(filepath.Join(dir, "nope.yml"))
	assert.Error(t, err)
}
