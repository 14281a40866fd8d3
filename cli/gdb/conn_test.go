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
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRW plays back a canned peer byte stream and records what we send.
type fakeRW struct {
	in  bytes.Buffer
	out bytes.Buffer
}

func newFakeRW(peerBytes string) *fakeRW {
	f := &fakeRW{}
	f.in.WriteString(peerBytes)
	return f
}

func (f *fakeRW) Read(p []byte) (int, error) {
	if f.in.Len() == 0 {
		return 0, io.EOF
	}
	return f.in.Read(p)
}

func (f *fakeRW) Write(p []byte) (int, error) {
	return f.out.Write(p)
}

func TestWritePacketAck(t *testing.T) {
	rw := newFakeRW("+")
	c := NewConn(rw)
	require.NoError(t, c.WritePacket(NewPacket([]byte("OK"))))
	assert.Equal(t, "$OK#9a", rw.out.String())
}

func TestWritePacketNackResend(t *testing.T) {
	// A nack followed by an ack causes exactly two identical frames.
	rw := newFakeRW("-+")
	c := NewConn(rw)
	require.NoError(t, c.WritePacket(NewPacket([]byte("OK"))))
	assert.Equal(t, "$OK#9a$OK#9a", rw.out.String())
}

func TestWritePacketAckBufferPreserved(t *testing.T) {
	// Bytes around the ack markers belong to the next frame and must
	// survive the ack scan for the reader stage.
	rw := newFakeRW("-$O+K#9a")
	c := NewConn(rw)
	require.NoError(t, c.WritePacket(NewPacket([]byte("x"))))
	p, err := c.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, "OK", string(p.Data))
}

func TestWritePacketPeerUnresponsive(t *testing.T) {
	rw := newFakeRW(strings.Repeat("-", maxResend+5))
	c := NewConn(rw)
	err := c.WritePacket(NewPacket([]byte("OK")))
	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err))
	// The initial send plus maxResend-1 retries.
	assert.Equal(t, maxResend, strings.Count(rw.out.String(), "$OK#9a"))
}

func TestWritePacketNoAckMode(t *testing.T) {
	rw := newFakeRW("") // nothing to read, WritePacket must not block
	c := NewConn(rw)
	c.SetNoAckMode()
	require.NoError(t, c.WritePacket(NewPacket([]byte("OK"))))
	assert.Equal(t, "$OK#9a", rw.out.String())
}

func TestReadPacket(t *testing.T) {
	rw := newFakeRW("$qSupported:swbreak+#8b")
	c := NewConn(rw)
	p, err := c.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, "qSupported:swbreak+", string(p.Data))
	assert.Equal(t, "+", rw.out.String())
}

func TestReadPacketBadChecksumRecovers(t *testing.T) {
	// The corrupted frame is nacked, the retransmission is accepted.
	rw := newFakeRW("$OK#00$OK#9a")
	c := NewConn(rw)
	p, err := c.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, "OK", string(p.Data))
	assert.Equal(t, "-+", rw.out.String())
}

func TestReadPacketSkipsNoise(t *testing.T) {
	rw := newFakeRW("\r\n$OK#9a")
	c := NewConn(rw)
	p, err := c.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, "OK", string(p.Data))
}

func TestReadPacketUnescapesAndExpands(t *testing.T) {
	wire := "a}\x03b*!"
	frame := "$" + wire + "#" + checksumString(wire)
	rw := newFakeRW(frame)
	c := NewConn(rw)
	got, err := c.ReadPacket()
	require.NoError(t, err)
	// '}' 0x03 unescapes to '#', 'b*!' expands to 5 b's.
	assert.Equal(t, "a#bbbbb", string(got.Data))
}

func TestReadPacketInterrupt(t *testing.T) {
	rw := newFakeRW("\x03")
	c := NewConn(rw)
	p, err := c.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, KindNotification, p.Kind)
	assert.Equal(t, []byte{0x03}, p.Data)
	// Interrupt bytes are out of band, no ack.
	assert.Equal(t, "", rw.out.String())
}

func TestReadPacketEOF(t *testing.T) {
	rw := newFakeRW("")
	c := NewConn(rw)
	_, err := c.ReadPacket()
	require.Error(t, err)
	assert.Equal(t, io.EOF, errors.Cause(err))
}

func checksumString(wire string) string {
	p := NewPacket([]byte(wire))
	return string(p.Checksum[:])
}
