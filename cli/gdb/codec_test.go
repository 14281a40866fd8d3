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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeNoEscapes(t *testing.T) {
	p := NewPacket([]byte("OK"))
	var b bytes.Buffer
	require.NoError(t, Encode(p, &b))
	// 'O' + 'K' == 0x4f + 0x4b == 0x9a.
	assert.Equal(t, "$OK#9a", b.String())
	assert.NotContains(t, b.String(), "}")
}

func TestEncodeNotificationMarker(t *testing.T) {
	var b bytes.Buffer
	require.NoError(t, Encode(NewNotification([]byte("Stop")), &b))
	assert.Equal(t, byte('%'), b.Bytes()[0])

	b.Reset()
	require.NoError(t, Encode(NewPacket([]byte("Stop")), &b))
	assert.Equal(t, byte('$'), b.Bytes()[0])
}

func TestEncodeEscaping(t *testing.T) {
	cases := []struct {
		payload string
		encoded string
	}{
		{"#", "}\x03"},
		{"$", "}\x04"},
		{"}", "}]"},
		{"*", "}\x0a"},
		{"a#b$c}d*e", "a}\x03b}\x04c}]d}\x0ae"},
		{"##", "}\x03}\x03"},
	}
	for _, c := range cases {
		p := NewPacket([]byte(c.payload))
		var b bytes.Buffer
		require.NoError(t, Encode(p, &b))
		want := fmt.Sprintf("$%s#%s", c.encoded, p.Checksum[:])
		assert.Equalf(t, want, b.String(), "payload %q", c.payload)
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("plain"),
		[]byte("#$}*"),
		[]byte("*#*#*#"),
		{0x00, 0x23, 0x24, 0x7d, 0x2a, 0xff},
		bytes.Repeat([]byte("}"), 100),
	}
	for _, payload := range payloads {
		p := NewPacket(payload)
		var b bytes.Buffer
		require.NoError(t, Encode(p, &b))
		enc := b.Bytes()
		// Strip the frame: marker, trailer.
		body := enc[1 : len(enc)-3]
		dec, err := Unescape(body)
		require.NoErrorf(t, err, "payload %q", payload)
		assert.Equalf(t, payload, dec, "payload %q", payload)
	}
}

func TestUnescapeTrailingEscape(t *testing.T) {
	_, err := Unescape([]byte("abc}"))
	assert.Error(t, err)
}

func TestRLEDecode(t *testing.T) {
	cases := []struct {
		in   string
		out  string
		fail bool
	}{
		{in: "abc", out: "abc"},
		// '!' is 33, 33-29 = 4 repeats on top of the original.
		{in: "x*!", out: "xxxxx"},
		{in: "0* ", out: "0000"},
		{in: "a*!b*!", out: "aaaaabbbbb"},
		{in: "*!", fail: true},
		{in: "x*", fail: true},
	}
	for _, c := range cases {
		out, err := RLEDecode([]byte(c.in))
		if c.fail {
			assert.Errorf(t, err, "case %q", c.in)
		} else {
			require.NoErrorf(t, err, "case %q", c.in)
			assert.Equalf(t, c.out, string(out), "case %q", c.in)
		}
	}
}

func TestChecksumOverUnescapedPayload(t *testing.T) {
	// The trailer is computed over the raw payload before escaping and
	// emitted verbatim.
	p := NewPacket([]byte("#"))
	assert.Equal(t, "23", string(p.Checksum[:]))
	var b bytes.Buffer
	require.NoError(t, Encode(p, &b))
	assert.Equal(t, "$}\x03#23", b.String())
}
