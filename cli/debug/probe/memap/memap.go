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
package memap

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/mdbg/cli/debug/probe"
	"github.com/mongoose-os/mdbg/cli/debug/probe/dp"
)

type MemAPReg uint8

const (
	CSW  MemAPReg = 0x00
	TAR  MemAPReg = 0x04
	DRW  MemAPReg = 0x0c
	BD0  MemAPReg = 0x10
	BD1  MemAPReg = 0x14
	BD2  MemAPReg = 0x18
	BD3  MemAPReg = 0x1c
	BASE MemAPReg = 0xf8
)

const (
	cswDeviceEn = 0x40

	// Basic mode, increment by access size.
	cswBase     = 0x23000050
	cswSizeByte = 0x0
	cswSizeWord = 0x2
)

type Client interface {
	probe.MemoryInterface

	Init(ctx context.Context) error
	ReadReg(ctx context.Context, reg MemAPReg) (uint32, error)
	WriteReg(ctx context.Context, reg MemAPReg, value uint32) error
}

type memAPClient struct {
	dpc   dp.Client
	apSel uint8

	cswValue uint32
}

func NewClient(dpc dp.Client, apSel uint8) Client {
	return &memAPClient{dpc: dpc, apSel: apSel}
}

func (mapc *memAPClient) ReadReg(ctx context.Context, reg MemAPReg) (uint32, error) {
	value, err := mapc.dpc.ReadAPReg(ctx, mapc.apSel, uint8(reg))
	glog.V(4).Infof("%s == 0x%08x", reg, value)
	return value, err
}

func (mapc *memAPClient) WriteReg(ctx context.Context, reg MemAPReg, value uint32) error {
	glog.V(4).Infof("%s = 0x%08x", reg, value)
	return mapc.dpc.WriteAPReg(ctx, mapc.apSel, uint8(reg), value)
}

func (mapc *memAPClient) Init(ctx context.Context) error {
	csw, err := mapc.ReadReg(ctx, CSW)
	if err != nil {
		return errors.Trace(err)
	}
	if csw&cswDeviceEn == 0 {
		return errors.Errorf("MEM-AP is disabled")
	}
	return mapc.setCSW(ctx, cswSizeWord)
}

func (mapc *memAPClient) setCSW(ctx context.Context, size uint32) error {
	csw := cswBase | size
	if csw == mapc.cswValue {
		return nil
	}
	if err := mapc.WriteReg(ctx, CSW, csw); err != nil {
		return errors.Trace(err)
	}
	mapc.cswValue = csw
	return nil
}

func (mapc *memAPClient) ReadWord32(ctx context.Context, addr uint32) (uint32, error) {
	if err := mapc.setCSW(ctx, cswSizeWord); err != nil {
		return 0, errors.Trace(err)
	}
	if err := mapc.WriteReg(ctx, TAR, addr); err != nil {
		return 0, errors.Trace(err)
	}
	value, err := mapc.ReadReg(ctx, DRW)
	glog.V(4).Infof("ReadWord32(0x%08x) == 0x%08x", addr, value)
	return value, errors.Trace(err)
}

func (mapc *memAPClient) WriteWord32(ctx context.Context, addr uint32, value uint32) error {
	if err := mapc.setCSW(ctx, cswSizeWord); err != nil {
		return errors.Trace(err)
	}
	if err := mapc.WriteReg(ctx, TAR, addr); err != nil {
		return errors.Trace(err)
	}
	glog.V(4).Infof("WriteWord32(0x%08x, 0x%08x)", addr, value)
	return mapc.WriteReg(ctx, DRW, value)
}

func (mapc *memAPClient) ReadWord8(ctx context.Context, addr uint32) (uint8, error) {
	if err := mapc.setCSW(ctx, cswSizeByte); err != nil {
		return 0, errors.Trace(err)
	}
	if err := mapc.WriteReg(ctx, TAR, addr); err != nil {
		return 0, errors.Trace(err)
	}
	value, err := mapc.ReadReg(ctx, DRW)
	if err != nil {
		return 0, errors.Trace(err)
	}
	// Byte accesses come back on their byte lane.
	b := uint8(value >> ((addr & 3) * 8))
	glog.V(4).Infof("ReadWord8(0x%08x) == 0x%02x", addr, b)
	return b, nil
}

func (mapc *memAPClient) WriteWord8(ctx context.Context, addr uint32, value uint8) error {
	if err := mapc.setCSW(ctx, cswSizeByte); err != nil {
		return errors.Trace(err)
	}
	if err := mapc.WriteReg(ctx, TAR, addr); err != nil {
		return errors.Trace(err)
	}
	glog.V(4).Infof("WriteWord8(0x%08x, 0x%02x)", addr, value)
	return mapc.WriteReg(ctx, DRW, uint32(value)<<((addr&3)*8))
}

func (mapc *memAPClient) Read32(ctx context.Context, addr uint32, data []uint32) error {
	glog.V(4).Infof("Read32(0x%08x, %d)", addr, len(data))
	if addr%4 != 0 {
		return errors.NotValidf("addr must be word-aligned, got 0x%x", addr)
	}
	if err := mapc.setCSW(ctx, cswSizeWord); err != nil {
		return errors.Trace(err)
	}
	for i := 0; i < len(data); {
		if err := mapc.WriteReg(ctx, TAR, addr); err != nil {
			return errors.Trace(err)
		}
		// Autoincrement only works on lower 10 bits.
		cl := int((0x400 - addr&0x3ff) / 4)
		if cl > len(data)-i {
			cl = len(data) - i
		}
		values, err := mapc.dpc.ReadAPRegMulti(ctx, mapc.apSel, uint8(DRW), cl)
		if err != nil {
			return errors.Trace(err)
		}
		copy(data[i:], values)
		addr += uint32(cl * 4)
		i += cl
	}
	return nil
}

func (mapc *memAPClient) Write32(ctx context.Context, addr uint32, data []uint32) error {
	glog.V(4).Infof("Write32(0x%08x, %d)", addr, len(data))
	if addr%4 != 0 {
		return errors.NotValidf("addr must be word-aligned, got 0x%x", addr)
	}
	if err := mapc.setCSW(ctx, cswSizeWord); err != nil {
		return errors.Trace(err)
	}
	for i := 0; i < len(data); {
		if err := mapc.WriteReg(ctx, TAR, addr); err != nil {
			return errors.Trace(err)
		}
		// Autoincrement only works on lower 10 bits.
		cl := int((0x400 - addr&0x3ff) / 4)
		if cl > len(data)-i {
			cl = len(data) - i
		}
		if err := mapc.dpc.WriteAPRegMulti(ctx, mapc.apSel, uint8(DRW), data[i:i+cl]); err != nil {
			return errors.Trace(err)
		}
		addr += uint32(cl * 4)
		i += cl
	}
	return nil
}

// Read8 uses word transfers for the aligned middle of the range and byte
// accesses for the unaligned edges.
func (mapc *memAPClient) Read8(ctx context.Context, addr uint32, data []uint8) error {
	glog.V(4).Infof("Read8(0x%08x, %d)", addr, len(data))
	i := 0
	for ; i < len(data) && (addr+uint32(i))%4 != 0; i++ {
		b, err := mapc.ReadWord8(ctx, addr+uint32(i))
		if err != nil {
			return errors.Trace(err)
		}
		data[i] = b
	}
	numWords := (len(data) - i) / 4
	if numWords > 0 {
		words := make([]uint32, numWords)
		if err := mapc.Read32(ctx, addr+uint32(i), words); err != nil {
			return errors.Trace(err)
		}
		for _, w := range words {
			data[i] = uint8(w)
			data[i+1] = uint8(w >> 8)
			data[i+2] = uint8(w >> 16)
			data[i+3] = uint8(w >> 24)
			i += 4
		}
	}
	for ; i < len(data); i++ {
		b, err := mapc.ReadWord8(ctx, addr+uint32(i))
		if err != nil {
			return errors.Trace(err)
		}
		data[i] = b
	}
	return nil
}

func (mapc *memAPClient) Write8(ctx context.Context, addr uint32, data []uint8) error {
	glog.V(4).Infof("Write8(0x%08x, %d)", addr, len(data))
	i := 0
	for ; i < len(data) && (addr+uint32(i))%4 != 0; i++ {
		if err := mapc.WriteWord8(ctx, addr+uint32(i), data[i]); err != nil {
			return errors.Trace(err)
		}
	}
	numWords := (len(data) - i) / 4
	if numWords > 0 {
		words := make([]uint32, numWords)
		for j := range words {
			words[j] = uint32(data[i+j*4]) |
				uint32(data[i+j*4+1])<<8 |
				uint32(data[i+j*4+2])<<16 |
				uint32(data[i+j*4+3])<<24
		}
		if err := mapc.Write32(ctx, addr+uint32(i), words); err != nil {
			return errors.Trace(err)
		}
		i += numWords * 4
	}
	for ; i < len(data); i++ {
		if err := mapc.WriteWord8(ctx, addr+uint32(i), data[i]); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (mapc *memAPClient) Flush(ctx context.Context) error {
	// Transfers are synchronous, nothing is buffered.
	return nil
}

func (r MemAPReg) String() string {
	switch r {
	case CSW:
		return "CSW"
	case TAR:
		return "TAR"
	case DRW:
		return "DRW"
	case BD0:
		return "BD0"
	case BD1:
		return "BD1"
	case BD2:
		return "BD2"
	case BD3:
		return "BD3"
	case BASE:
		return "BASE"
	}
	return fmt.Sprintf("0x%x", uint8(r))
}
