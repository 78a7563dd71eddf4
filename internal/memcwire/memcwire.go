// Package memcwire implements the subset of the memcached binary protocol
// wire format this tool needs: request/response header layout and the
// synthetic key-pool naming convention both the latency generator and the
// bulk loader draw keys from.
package memcwire

import (
	"encoding/binary"
	"fmt"
)

const (
	MagicRequest  = 0x80
	MagicResponse = 0x81

	OpGet  = 0x00
	OpSet  = 0x01
	OpSetQ = 0x11

	HeaderSize = 24
	KeySize    = 30 // "key-" + 26 digits
)

// Key formats a pool sequence id into the fixed-width key this protocol
// uses throughout: "key-" followed by a 26-digit zero-padded decimal id.
func Key(seq int) string {
	return fmt.Sprintf("key-%026d", seq)
}

// PutHeader writes a 24-byte request header into buf[0:24].
func PutHeader(buf []byte, opcode byte, keyLen, extraLen, bodyLen int, opaque uint32) {
	buf[0] = MagicRequest
	buf[1] = opcode
	binary.BigEndian.PutUint16(buf[2:4], uint16(keyLen))
	buf[4] = byte(extraLen)
	buf[5] = 0 // datatype
	binary.BigEndian.PutUint16(buf[6:8], 0)
	binary.BigEndian.PutUint32(buf[8:12], uint32(bodyLen))
	binary.BigEndian.PutUint32(buf[12:16], opaque)
	binary.BigEndian.PutUint64(buf[16:24], 0) // CAS
}

// Header is a parsed response header.
type Header struct {
	Magic   byte
	Opcode  byte
	Status  uint16
	BodyLen uint32
	Opaque  uint32
}

// ParseHeader reads a 24-byte response header from hdr[0:24].
func ParseHeader(hdr []byte) Header {
	return Header{
		Magic:   hdr[0],
		Opcode:  hdr[1],
		Status:  binary.BigEndian.Uint16(hdr[6:8]),
		BodyLen: binary.BigEndian.Uint32(hdr[8:12]),
		Opaque:  binary.BigEndian.Uint32(hdr[12:16]),
	}
}

// Concat copies seg1/seg2 into a single contiguous buffer of length n,
// since header parsing needs byte offsets that may straddle a ring
// buffer's wrap point.
func Concat(seg1, seg2 []byte, n int) []byte {
	if len(seg2) == 0 {
		return seg1[:n]
	}
	out := make([]byte, n)
	k := copy(out, seg1)
	copy(out[k:], seg2)
	return out
}
