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

	"github.com/juju/errors"
)

// needsEscape reports whether b must be escaped on the wire:
// frame delimiters, the RLE introducer and the escape byte itself.
func needsEscape(b byte) bool {
	return b == '#' || b == '$' || b == '}' || b == '*'
}

// Encode writes the packet to w: the kind marker, the payload with RSP
// escaping applied, then '#' and the checksum trailer verbatim.
func Encode(p *CheckedPacket, w io.Writer) error {
	marker := []byte{'$'}
	if p.Kind == KindNotification {
		marker[0] = '%'
	}
	if _, err := w.Write(marker); err != nil {
		return errors.Trace(err)
	}
	remaining := p.Data
	for len(remaining) > 0 {
		i := 0
		for i < len(remaining) && !needsEscape(remaining[i]) {
			i++
		}
		if _, err := w.Write(remaining[:i]); err != nil {
			return errors.Trace(err)
		}
		remaining = remaining[i:]
		if len(remaining) > 0 {
			if _, err := w.Write([]byte{'}', remaining[0] ^ 0x20}); err != nil {
				return errors.Trace(err)
			}
			remaining = remaining[1:]
		}
	}
	if _, err := w.Write([]byte{'#'}); err != nil {
		return errors.Trace(err)
	}
	if _, err := w.Write(p.Checksum[:]); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Unescape reverses the RSP escape transform: each '}' swallows the
// following byte and restores it by XOR 0x20.
func Unescape(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '}' {
			out = append(out, data[i])
			continue
		}
		i++
		if i >= len(data) {
			return nil, errors.NotValidf("trailing escape byte")
		}
		out = append(out, data[i]^0x20)
	}
	return out, nil
}

// RLEDecode expands run-length-encoded payload bytes: 'X*r' repeats X
// (r - 29) more times.
func RLEDecode(data []byte) ([]byte, error) {
	if !bytes.ContainsRune(data, '*') {
		return data, nil
	}
	var out []byte
	for i := 0; i < len(data); i++ {
		if data[i] != '*' {
			out = append(out, data[i])
			continue
		}
		if len(out) == 0 || i+1 >= len(data) {
			return nil, errors.NotValidf("run-length encoding in %q", data)
		}
		v := out[len(out)-1]
		i++
		rep := int(data[i]) - 29
		if rep < 0 {
			return nil, errors.NotValidf("run length %d", rep)
		}
		for j := 0; j < rep; j++ {
			out = append(out, v)
		}
	}
	return out, nil
}
