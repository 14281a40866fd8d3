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
// +build !no_libudev

package dap

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"

	"github.com/cesanta/hid"
	"github.com/golang/glog"
	"github.com/juju/errors"
)

type cmd uint8

const (
	cmdInfo              cmd = 0x00
	cmdConnect           cmd = 0x02
	cmdDisconnect        cmd = 0x03
	cmdTransferConfigure cmd = 0x04
	cmdTransfer          cmd = 0x05
	cmdTransferBlock     cmd = 0x06
	cmdResetTarget       cmd = 0x0a
	cmdSWJClock          cmd = 0x11
	cmdSWJSequence       cmd = 0x12
	cmdSWDConfigure      cmd = 0x13
)

const (
	infoVendorID        = 1
	infoProductID       = 2
	infoSerialNumber    = 3
	infoFirmwareVersion = 4
	infoCapsAndSizes    = 0xff
)

type client struct {
	d             hid.Device
	di            *hid.DeviceInfo
	waitRetries   int
	maxPacketSize int
}

func matches(di *hid.DeviceInfo, opts *Opts) bool {
	if opts.VID != 0 && di.VendorID != opts.VID {
		return false
	}
	if opts.PID != 0 && di.ProductID != opts.PID {
		return false
	}
	return true
}

// Enumerate lists HID devices matching opts. CMSIS-DAP probes advertise
// themselves in the product string, but not all HID backends expose it,
// so the list may include unrelated HID devices.
func Enumerate(opts *Opts) ([]ProbeInfo, error) {
	devs, err := hid.Devices()
	if err != nil {
		return nil, errors.Annotatef(err, "failed to enumerate HID devices")
	}
	var res []ProbeInfo
	for _, di := range devs {
		if !matches(di, opts) {
			continue
		}
		res = append(res, ProbeInfo{VID: di.VendorID, PID: di.ProductID, Path: di.Path})
	}
	return res, nil
}

// NewClient opens a CMSIS-DAP probe over HID.
// TODO(rojer): Serial number matching.
func NewClient(ctx context.Context, opts *Opts) (Client, error) {
	devs, err := hid.Devices()
	if err != nil {
		return nil, errors.Annotatef(err, "failed to enumerate HID devices")
	}
	for i, di := range devs {
		glog.V(1).Infof("%d: %04x:%04x %s", i, di.VendorID, di.ProductID, di.Path)
		if !matches(di, opts) {
			continue
		}
		d, err := di.Open()
		if err != nil {
			return nil, errors.Annotatef(err, "failed to open device %04x:%04x (%s)", di.VendorID, di.ProductID, di.Path)
		}
		glog.Infof("Opened %04x:%04x (%s)", di.VendorID, di.ProductID, di.Path)
		c := &client{
			di:          di,
			d:           d,
			waitRetries: opts.WaitRetries,
			// Start with a conservative guess, the probe reports the
			// real value below.
			maxPacketSize: 8,
		}
		if c.waitRetries <= 0 {
			c.waitRetries = defaultWaitRetries
		}
		resp, err := c.GetInfo(ctx, infoCapsAndSizes)
		if err != nil {
			c.Close(ctx)
			return nil, errors.Annotatef(err, "failed to get max packet size")
		}
		var rl uint8
		var mps uint16
		binary.Read(resp, binary.LittleEndian, &rl)
		binary.Read(resp, binary.LittleEndian, &mps)
		c.maxPacketSize = int(mps)
		glog.V(2).Infof("max packet size: %d", c.maxPacketSize)
		return c, nil
	}
	return nil, errors.NotFoundf("CMSIS-DAP probe")
}

func newCmd(cmd cmd) *bytes.Buffer {
	return bytes.NewBuffer([]uint8{
		0, // HID report number (unused)
		uint8(cmd),
	})
}

func (c *client) exec(ctx context.Context, args *bytes.Buffer) (*bytes.Buffer, error) {
	glog.V(4).Infof(" => %s", hex.EncodeToString(args.Bytes()[1:]))
	if len(args.Bytes()) > c.maxPacketSize {
		return nil, errors.Errorf("packet too long (max %d, got %d)", c.maxPacketSize, len(args.Bytes()))
	}
	if err := c.d.Write(args.Bytes()); err != nil {
		return nil, errors.Annotatef(err, "device write failed")
	}
	select {
	case <-ctx.Done():
		return nil, errors.Annotatef(ctx.Err(), "DAP exec")
	case resp, ok := <-c.d.ReadCh():
		if !ok {
			return nil, errors.Annotatef(c.d.ReadError(), "device read failed")
		}
		glog.V(4).Infof("<=  %s", hex.EncodeToString(resp))
		cmd := args.Bytes()[1]
		if resp[0] != cmd {
			return nil, errors.Errorf("response to wrong command (want 0x%02x, got 0x%02x)", cmd, resp[0])
		}
		return bytes.NewBuffer(resp[1:]), nil
	}
}

func (c *client) execCheckStatus(ctx context.Context, args *bytes.Buffer) error {
	resp, err := c.exec(ctx, args)
	if err != nil {
		return errors.Trace(err)
	}
	cmd := args.Bytes()[1]
	if status := resp.Bytes()[0]; status != 0 {
		return errors.Errorf("command 0x%02x returned error (0x%02x)", cmd, status)
	}
	return nil
}

func (c *client) GetInfo(ctx context.Context, info uint8) (*bytes.Buffer, error) {
	glog.V(3).Infof("GetInfo(%d)", info)
	args := newCmd(cmdInfo)
	binary.Write(args, binary.LittleEndian, info)
	resp, err := c.exec(ctx, args)
	return resp, errors.Annotatef(err, "failed to get info 0x%02x", info)
}

func (c *client) getInfoString(ctx context.Context, info uint8) (string, error) {
	resp, err := c.GetInfo(ctx, info)
	if err != nil {
		return "", errors.Trace(err)
	}
	var sl uint8
	binary.Read(resp, binary.LittleEndian, &sl)
	s := make([]uint8, sl)
	resp.Read(s)
	return string(s), nil
}

func (c *client) GetVendorID(ctx context.Context) (string, error) {
	return c.getInfoString(ctx, infoVendorID)
}

func (c *client) GetProductID(ctx context.Context) (string, error) {
	return c.getInfoString(ctx, infoProductID)
}

func (c *client) GetSerialNumber(ctx context.Context) (string, error) {
	return c.getInfoString(ctx, infoSerialNumber)
}

func (c *client) GetFirmwareVersion(ctx context.Context) (string, error) {
	return c.getInfoString(ctx, infoFirmwareVersion)
}

func (c *client) Connect(ctx context.Context, mode ConnectMode) error {
	glog.V(3).Infof("Connect(%d)", mode)
	args := newCmd(cmdConnect)
	binary.Write(args, binary.LittleEndian, uint8(mode))
	resp, err := c.exec(ctx, args)
	if err != nil {
		return errors.Trace(err)
	}
	if resp.Bytes()[0] == 0 {
		return errors.Errorf("connect error")
	}
	return nil
}

func (c *client) Disconnect(ctx context.Context) error {
	return errors.Trace(c.execCheckStatus(ctx, newCmd(cmdDisconnect)))
}

func (c *client) TransferConfigure(ctx context.Context, idleCycles uint8, waitRetry uint16, matchRetry uint16) error {
	glog.V(3).Infof("TransferConfigure(%d, %d, %d)", idleCycles, waitRetry, matchRetry)
	args := newCmd(cmdTransferConfigure)
	binary.Write(args, binary.LittleEndian, idleCycles)
	binary.Write(args, binary.LittleEndian, waitRetry)
	binary.Write(args, binary.LittleEndian, matchRetry)
	return errors.Trace(c.execCheckStatus(ctx, args))
}

func (c *client) doTransfer(ctx context.Context, dapIndex uint8, reqs []TransferRequest) (TransferStatus, []uint32, error) {
	args := newCmd(cmdTransfer)
	binary.Write(args, binary.LittleEndian, dapIndex)
	binary.Write(args, binary.LittleEndian, uint8(len(reqs)))
	for i, req := range reqs {
		if req.Reg&3 != 0 {
			return 0, nil, errors.Errorf("treq %d invalid reg 0x%x", i, req.Reg)
		}
		treq := req.Reg & 0xc
		haveData := true
		if req.AP {
			treq |= 1 << 0
		}
		switch req.Op {
		case OpRead:
			treq |= 1 << 1
			haveData = false
		case OpReadMatch:
			treq |= 1<<1 | 1<<4
		case OpWrite:
			// Nothing
		case OpWriteMatch:
			treq |= 1 << 5
		}
		binary.Write(args, binary.LittleEndian, treq)
		if haveData {
			binary.Write(args, binary.LittleEndian, req.Data)
		}
	}
	resp, err := c.exec(ctx, args)
	if err != nil {
		return 0, nil, errors.Trace(err)
	}
	var tc uint8
	var st TransferStatus
	if binary.Read(resp, binary.LittleEndian, &tc) != nil ||
		binary.Read(resp, binary.LittleEndian, &st) != nil {
		return st, nil, errors.Errorf("response is too short")
	}
	if !st.Ok() {
		return st, nil, errors.Errorf("transfer failed (tc %d/%d st 0x%02x)", tc, len(reqs), st)
	}
	if int(tc) != len(reqs) {
		return st, nil, errors.Errorf("not all transfers completed (%d/%d)", tc, len(reqs))
	}
	var data []uint32
	for _, req := range reqs {
		if req.Op != OpRead {
			continue
		}
		var d uint32
		if binary.Read(resp, binary.LittleEndian, &d) != nil {
			return st, nil, errors.Errorf("response is too short")
		}
		data = append(data, d)
	}
	return st, data, nil
}

func (c *client) Transfer(ctx context.Context, dapIndex uint8, reqs []TransferRequest) (TransferStatus, []uint32, error) {
	for i := 0; i < c.waitRetries; i++ {
		st, res, err := c.doTransfer(ctx, dapIndex, reqs)
		if err != nil && st == TransferStatusWait {
			continue
		}
		return st, res, err
	}
	return TransferStatusWait, nil, errors.Timeoutf("transfer kept returning WAIT")
}

func (c *client) GetTransferBlockMaxSize() int {
	headerLen := 1 /* op */ + 1 /* dap index */ + 2 /* transfer count */ + 1 /* request */
	return (c.maxPacketSize - headerLen) / 4
}

func (c *client) TransferBlockRead(ctx context.Context, dapIndex uint8, ap bool, reg uint8, length int) ([]uint32, error) {
	glog.V(3).Infof("TransferBlockRead(%d, %t, 0x%x, %d)", dapIndex, ap, reg, length)
	if length > c.GetTransferBlockMaxSize() {
		return nil, errors.Errorf("request too big (max %d, got %d)", c.GetTransferBlockMaxSize(), length)
	}
	if reg&3 != 0 {
		return nil, errors.Errorf("invalid reg 0x%x", reg)
	}
	args := newCmd(cmdTransferBlock)
	binary.Write(args, binary.LittleEndian, dapIndex)
	binary.Write(args, binary.LittleEndian, uint16(length))
	treq := uint8(reg&0xc) | 2 /* read */
	if ap {
		treq |= 1 << 0
	}
	binary.Write(args, binary.LittleEndian, treq)
	resp, err := c.exec(ctx, args)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var tc uint16
	var st TransferStatus
	if binary.Read(resp, binary.LittleEndian, &tc) != nil ||
		binary.Read(resp, binary.LittleEndian, &st) != nil {
		return nil, errors.Errorf("response is too short")
	}
	if !st.Ok() {
		return nil, errors.Errorf("transfer failed (tc %d/%d st 0x%02x)", tc, length, st)
	}
	if int(tc) != length {
		return nil, errors.Errorf("not all transfers completed (%d/%d)", tc, length)
	}
	var res []uint32
	for i := 0; i < length; i++ {
		var w uint32
		if binary.Read(resp, binary.LittleEndian, &w) != nil {
			return nil, errors.Errorf("response is too short")
		}
		res = append(res, w)
	}
	return res, nil
}

func (c *client) TransferBlockWrite(ctx context.Context, dapIndex uint8, ap bool, reg uint8, data []uint32) error {
	glog.V(3).Infof("TransferBlockWrite(%d, %t, 0x%x, %d)", dapIndex, ap, reg, len(data))
	if reg&3 != 0 {
		return errors.Errorf("invalid reg 0x%x", reg)
	}
	args := newCmd(cmdTransferBlock)
	binary.Write(args, binary.LittleEndian, dapIndex)
	binary.Write(args, binary.LittleEndian, uint16(len(data)))
	treq := uint8(reg & 0xc)
	if ap {
		treq |= 1 << 0
	}
	binary.Write(args, binary.LittleEndian, treq)
	for _, value := range data {
		binary.Write(args, binary.LittleEndian, value)
	}
	resp, err := c.exec(ctx, args)
	if err != nil {
		return errors.Trace(err)
	}
	var tc uint16
	var st TransferStatus
	if binary.Read(resp, binary.LittleEndian, &tc) != nil ||
		binary.Read(resp, binary.LittleEndian, &st) != nil {
		return errors.Errorf("response is too short")
	}
	if !st.Ok() {
		return errors.Errorf("transfer failed (tc %d/%d st 0x%02x)", tc, len(data), st)
	}
	if int(tc) != len(data) {
		return errors.Errorf("not all transfers completed (%d/%d)", tc, len(data))
	}
	return nil
}

func (c *client) ResetTarget(ctx context.Context) error {
	return errors.Trace(c.execCheckStatus(ctx, newCmd(cmdResetTarget)))
}

func (c *client) SWJClock(ctx context.Context, clockHz uint32) error {
	glog.V(3).Infof("SWJClock(%d)", clockHz)
	args := newCmd(cmdSWJClock)
	binary.Write(args, binary.LittleEndian, clockHz)
	return errors.Trace(c.execCheckStatus(ctx, args))
}

func (c *client) SWJSequence(ctx context.Context, numBits int, data []uint8) error {
	glog.V(3).Infof("SWJSequence(%d, %v)", numBits, data)
	if numBits < 1 || numBits > 256 {
		return errors.Errorf("numBits must be between 1 and 256 (got %d)", numBits)
	}
	args := newCmd(cmdSWJSequence)
	binary.Write(args, binary.LittleEndian, uint8(numBits))
	args.Write(data)
	return errors.Trace(c.execCheckStatus(ctx, args))
}

func (c *client) SWDConfigure(ctx context.Context, config uint8) error {
	glog.V(3).Infof("SWDConfigure(0x%02x)", config)
	args := newCmd(cmdSWDConfigure)
	binary.Write(args, binary.LittleEndian, config)
	return errors.Trace(c.execCheckStatus(ctx, args))
}

func (c *client) Close(ctx context.Context) error {
	if c.d != nil {
		c.d.Close()
	}
	return nil
}
