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
package probe

import (
	"context"
)

// MemoryReader provides read access to the target's memory space.
type MemoryReader interface {
	// ReadWord32 reads a single 32-bit word. addr must be word-aligned.
	ReadWord32(ctx context.Context, addr uint32) (uint32, error)
	// ReadWord8 reads a single byte.
	ReadWord8(ctx context.Context, addr uint32) (uint8, error)
	// Read32 fills data with 32-bit words starting at addr.
	// addr must be word-aligned.
	Read32(ctx context.Context, addr uint32, data []uint32) error
	// Read8 fills data with bytes starting at addr.
	Read8(ctx context.Context, addr uint32, data []uint8) error
}

// MemoryWriter provides write access to the target's memory space.
type MemoryWriter interface {
	// WriteWord32 writes a single 32-bit word. addr must be word-aligned.
	WriteWord32(ctx context.Context, addr uint32, value uint32) error
	// WriteWord8 writes a single byte.
	WriteWord8(ctx context.Context, addr uint32, value uint8) error
	// Write32 writes 32-bit words starting at addr. addr must be word-aligned.
	Write32(ctx context.Context, addr uint32, data []uint32) error
	// Write8 writes bytes starting at addr.
	Write8(ctx context.Context, addr uint32, data []uint8) error
}

// MemoryInterface is the memory access capability supplied by the probe
// transport. Core implementations use it both for target RAM and for
// memory-mapped debug peripheral registers.
type MemoryInterface interface {
	MemoryReader
	MemoryWriter

	// Flush pushes out any buffered writes. Implementations that do not
	// buffer simply return nil.
	Flush(ctx context.Context) error
}
