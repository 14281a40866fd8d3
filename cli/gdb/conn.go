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
package gdb

import (
	"bytes"
	"io"
	"strconv"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"
)

// maxResend bounds the nack retry loop so a permanently-nacking peer
// surfaces as an error instead of stalling the session forever.
const maxResend = 16

// Conn frames packets over a byte stream. The receive buffer is shared
// between the ack-wait phase of WritePacket and ReadPacket: bytes that
// arrive early (pipelined commands, interrupt bytes) are kept for the
// next read stage, never dropped.
type Conn struct {
	rw    io.ReadWriter
	buf   []byte
	noAck bool
}

func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{rw: rw}
}

// SetNoAckMode disables the ack/nack exchange in both directions
// (QStartNoAckMode). Only valid on reliable transports.
func (c *Conn) SetNoAckMode() {
	c.noAck = true
}

func (c *Conn) fill() error {
	var tmp [128]byte
	n, err := c.rw.Read(tmp[:])
	if n > 0 {
		c.buf = append(c.buf, tmp[:n]...)
	}
	if err != nil {
		return errors.Trace(err)
	}
	return nil
}

// takeAck scans the buffer for the first '+' or '-', consumes it and
// returns it. Other bytes are left in place for the reader stage.
func (c *Conn) takeAck() (byte, bool) {
	for i, b := range c.buf {
		if b == '+' || b == '-' {
			c.buf = append(c.buf[:i], c.buf[i+1:]...)
			return b, true
		}
	}
	return 0, false
}

// WritePacket sends the packet and, unless no-ack mode is active, waits
// for the peer's acknowledgement, re-sending the identical frame on
// every nack.
func (c *Conn) WritePacket(p *CheckedPacket) error {
	var frame bytes.Buffer
	if err := Encode(p, &frame); err != nil {
		return errors.Trace(err)
	}
	glog.V(3).Infof("=> %s", frame.Bytes())
	if _, err := c.rw.Write(frame.Bytes()); err != nil {
		return errors.Trace(err)
	}
	if c.noAck {
		return nil
	}
	for resends := 0; ; {
		b, ok := c.takeAck()
		if !ok {
			if err := c.fill(); err != nil {
				return errors.Trace(err)
			}
			continue
		}
		if b == '+' {
			return nil
		}
		glog.V(2).Infof("nack, re-sending %q", p.Data)
		resends++
		if resends >= maxResend {
			return errors.Timeoutf("peer unresponsive after %d re-sends", resends)
		}
		if _, err := c.rw.Write(frame.Bytes()); err != nil {
			return errors.Trace(err)
		}
	}
}

// ReadPacket reads one '$'-framed packet, verifies its checksum and
// acknowledges it. A checksum failure is nacked and reading continues
// with the peer's retransmission. An interrupt byte (0x03) arriving
// outside a frame is returned as a packet of kind KindNotification with
// that single byte as payload.
func (c *Conn) ReadPacket() (*CheckedPacket, error) {
	for {
		p, n, err := c.parsePacket()
		if err != nil {
			return nil, errors.Trace(err)
		}
		if p == nil {
			if err := c.fill(); err != nil {
				return nil, errors.Trace(err)
			}
			continue
		}
		c.buf = c.buf[n:]
		if p.Kind == KindNotification {
			// Interrupt byte, no ack exchange.
			return p, nil
		}
		if !p.VerifyChecksum() {
			glog.V(2).Infof("bad checksum on %q", p.Data)
			if !c.noAck {
				if _, err := c.rw.Write([]byte{'-'}); err != nil {
					return nil, errors.Trace(err)
				}
			}
			continue
		}
		if !c.noAck {
			if _, err := c.rw.Write([]byte{'+'}); err != nil {
				return nil, errors.Trace(err)
			}
		}
		data, err := Unescape(p.Data)
		if err != nil {
			return nil, errors.Trace(err)
		}
		data, err = RLEDecode(data)
		if err != nil {
			return nil, errors.Trace(err)
		}
		p.Data = data
		glog.V(3).Infof("<= %s", p.Data)
		return p, nil
	}
}

// parsePacket attempts to parse one frame from the head of the buffer.
// Returns the packet and the number of buffer bytes it consumed, or
// (nil, 0, nil) if the buffer does not yet hold a complete frame.
func (c *Conn) parsePacket() (*CheckedPacket, int, error) {
	for i, b := range c.buf {
		switch b {
		case interruptByte:
			return &CheckedPacket{Kind: KindNotification, Data: []byte{b}}, i + 1, nil
		case '$':
			end := bytes.IndexByte(c.buf[i:], '#')
			if end < 0 || i+end+2 >= len(c.buf) {
				return nil, 0, nil
			}
			p := &CheckedPacket{Kind: KindPacket}
			p.Data = append(p.Data, c.buf[i+1:i+end]...)
			copy(p.Checksum[:], c.buf[i+end+1:i+end+3])
			if _, err := strconv.ParseUint(string(p.Checksum[:]), 16, 8); err != nil {
				return nil, 0, errors.NotValidf("checksum %q", string(p.Checksum[:]))
			}
			return p, i + end + 3, nil
		default:
			// Stray byte outside a frame, skip it.
		}
	}
	return nil, 0, nil
}

const interruptByte = 0x03

func (c *Conn) takeInterrupt() bool {
	for i, b := range c.buf {
		if b == interruptByte {
			c.buf = append(c.buf[:i], c.buf[i+1:]...)
			return true
		}
	}
	return false
}

// PollInterrupt waits up to timeout for an interrupt byte (0x03) from
// the peer. Other bytes that arrive stay buffered for ReadPacket.
// Used while the core is running and the session has no packet to read.
func (c *Conn) PollInterrupt(timeout time.Duration) bool {
	if c.takeInterrupt() {
		return true
	}
	dl, ok := c.rw.(interface{ SetReadDeadline(time.Time) error })
	if !ok {
		time.Sleep(timeout)
		return false
	}
	dl.SetReadDeadline(time.Now().Add(timeout))
	c.fill() // a deadline error just means nothing arrived
	dl.SetReadDeadline(time.Time{})
	return c.takeInterrupt()
}
