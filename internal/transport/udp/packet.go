// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

/*
Packet layout (big endian)

	+-----------------+----------+--------------+------------------------------+
	| Field           | Type     | Size (Bytes) | Description                  |
	|-----------------|----------|--------------|------------------------------|
	| Sequence Number | uint32   | 4            | Monotonically increasing     |
	| Frame Index     | int32    | 4            | -1 marks the end of a run    |
	| Timestamp       | int64    | 8            | Nanoseconds since epoch      |
	| Count           | uint16   | 2            | Number of magnitudes (N)     |
	| Magnitudes      | float32  | N * 4        | Decibels, one per bin        |
	+-----------------+----------+--------------+------------------------------+
*/

// HeaderSize is the byte length of the fixed packet header.
const HeaderSize = 4 + 4 + 8 + 2

// MaxMagnitudes is the largest count that fits in one IPv4 datagram.
const MaxMagnitudes = (65507 - HeaderSize) / 4

// Packet is a decoded datagram.
type Packet struct {
	Sequence   uint32
	FrameIndex int32
	Timestamp  int64
	Magnitudes []float32
}

// appendPacket writes p into buf, which is reset first.
func appendPacket(buf *bytes.Buffer, p Packet) error {
	if len(p.Magnitudes) > MaxMagnitudes {
		return fmt.Errorf("%d magnitudes exceed the packet limit of %d", len(p.Magnitudes), MaxMagnitudes)
	}
	buf.Reset()

	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[0:], p.Sequence)
	binary.BigEndian.PutUint32(header[4:], uint32(p.FrameIndex))
	binary.BigEndian.PutUint64(header[8:], uint64(p.Timestamp))
	binary.BigEndian.PutUint16(header[16:], uint16(len(p.Magnitudes)))
	buf.Write(header[:])

	return binary.Write(buf, binary.BigEndian, p.Magnitudes)
}

// Decode parses a datagram built by a Publisher.
func Decode(data []byte) (Packet, error) {
	if len(data) < HeaderSize {
		return Packet{}, fmt.Errorf("packet of %d bytes is shorter than the header", len(data))
	}
	p := Packet{
		Sequence:   binary.BigEndian.Uint32(data[0:]),
		FrameIndex: int32(binary.BigEndian.Uint32(data[4:])),
		Timestamp:  int64(binary.BigEndian.Uint64(data[8:])),
	}
	count := int(binary.BigEndian.Uint16(data[16:]))
	if want := HeaderSize + 4*count; len(data) != want {
		return Packet{}, fmt.Errorf("packet length %d does not match %d magnitudes", len(data), count)
	}

	p.Magnitudes = make([]float32, count)
	for i := range p.Magnitudes {
		p.Magnitudes[i] = math.Float32frombits(binary.BigEndian.Uint32(data[HeaderSize+4*i:]))
	}
	return p, nil
}
