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
	"fmt"
)

type Kind uint8

const (
	// KindPacket is a regular packet, framed with '$'.
	KindPacket Kind = iota
	// KindNotification is an asynchronous notification, framed with '%'.
	KindNotification
)

// CheckedPacket is a remote serial protocol packet with its checksum
// trailer already computed. The checksum covers the raw, unescaped
// payload - Encode escapes on the wire but does not touch the trailer.
type CheckedPacket struct {
	Kind     Kind
	Data     []byte
	Checksum [2]byte
}

func checksum(data []byte) uint8 {
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return sum
}

func newChecked(kind Kind, data []byte) *CheckedPacket {
	p := &CheckedPacket{Kind: kind, Data: data}
	copy(p.Checksum[:], fmt.Sprintf("%02x", checksum(data)))
	return p
}

// NewPacket builds a '$'-framed packet over data.
func NewPacket(data []byte) *CheckedPacket {
	return newChecked(KindPacket, data)
}

// NewNotification builds a '%'-framed notification over data.
func NewNotification(data []byte) *CheckedPacket {
	return newChecked(KindNotification, data)
}

// VerifyChecksum checks the trailer against the payload.
func (p *CheckedPacket) VerifyChecksum() bool {
	var want [2]byte
	copy(want[:], fmt.Sprintf("%02x", checksum(p.Data)))
	return p.Checksum == want
}

func (p *CheckedPacket) String() string {
	marker := byte('$')
	if p.Kind == KindNotification {
		marker = '%'
	}
	return fmt.Sprintf("%c%s#%s", marker, p.Data, p.Checksum[:])
}
