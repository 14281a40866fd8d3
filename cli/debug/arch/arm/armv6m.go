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
	"context"

	"github.com/juju/errors"

	"github.com/mongoose-os/mdbg/cli/debug/core"
	"github.com/mongoose-os/mdbg/cli/debug/probe"
	"github.com/mongoose-os/mdbg/cli/debug/target"
)

// Armv6m is the backend for Cortex-M0/M0+/M1 cores. The v6-M BPU uses the
// same halfword-replace comparator encoding as the v7-M FPB rev 1.
type Armv6m struct {
	*cortexM
}

func NewArmv6m(ctx context.Context, mem probe.MemoryInterface, state *State, seq target.DebugSequence) (*Armv6m, error) {
	c, err := newCortexM(ctx, mem, state, seq, core.CoreTypeArmv6m, 1)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Armv6m{cortexM: c}, nil
}
