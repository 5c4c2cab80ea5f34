// Package rdb encodes and decodes the small subset of the RDB file
// format this server needs: enough to hand a replica a well-formed
// snapshot during the PSYNC handshake, and to decode string keys back
// out of such a payload. Only string keys are encoded or decoded; list,
// stream, and sorted-set values are not. The package does no file I/O.
package rdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	opExpireMs   = 0xFC
	opExpireSec  = 0xFD
	opSelectDB   = 0xFE
	opResizeDB   = 0xFB
	opEOF        = 0xFF
	typeString   = 0x00
	headerMagic  = "REDIS0011"
	crcFooterLen = 8
)

// StringEntry is one key/value pair with an optional absolute expiry,
// the unit of data this package encodes and decodes.
type StringEntry struct {
	Key    string
	Value  string
	Expiry time.Time // zero value means no expiry
}

// Empty returns a minimal, syntactically valid RDB payload: header, a
// selector for database 0, the EOF opcode, and an 8-byte CRC64
// placeholder. This is what
// the master sends a freshly attached replica per the handshake.
func Empty() []byte {
	return Encode(nil)
}

// Encode serializes entries into a complete RDB byte sequence: header,
// a database selector, one string-type record per entry, EOF, and an
// 8-byte CRC footer. The footer is left zeroed; this server never
// validates it on read, matching real Redis's permissive replicas.
func Encode(entries []StringEntry) []byte {
	var buf bytes.Buffer
	buf.WriteString(headerMagic)
	buf.WriteByte(opSelectDB)
	writeLength(&buf, 0)

	if len(entries) > 0 {
		buf.WriteByte(opResizeDB)
		writeLength(&buf, len(entries))
		writeLength(&buf, 0)
	}

	for _, e := range entries {
		if !e.Expiry.IsZero() {
			buf.WriteByte(opExpireMs)
			var ts [8]byte
			binary.LittleEndian.PutUint64(ts[:], uint64(e.Expiry.UnixMilli()))
			buf.Write(ts[:])
		}
		buf.WriteByte(typeString)
		writeString(&buf, e.Key)
		writeString(&buf, e.Value)
	}

	buf.WriteByte(opEOF)
	buf.Write(make([]byte, crcFooterLen))
	return buf.Bytes()
}

// ErrInvalidHeader is returned by Decode when the payload doesn't open
// with the expected "REDIS" magic.
var ErrInvalidHeader = fmt.Errorf("rdb: invalid header")

// Decode parses an RDB payload produced by Encode (or by a compatible
// writer restricted to opcodes this package understands) into its
// string entries, skipping any other value type it encounters.
func Decode(data []byte) ([]StringEntry, error) {
	if len(data) < 9 || string(data[:5]) != "REDIS" {
		return nil, ErrInvalidHeader
	}
	i := 9
	var expiry time.Time
	var out []StringEntry

	for i < len(data) {
		b := data[i]
		i++
		switch b {
		case opSelectDB:
			_, n := readLength(data[i:])
			i += n
		case opResizeDB:
			_, n1 := readLength(data[i:])
			i += n1
			_, n2 := readLength(data[i:])
			i += n2
		case opExpireMs:
			if i+8 > len(data) {
				return out, fmt.Errorf("rdb: truncated expiry-ms field")
			}
			ts := binary.LittleEndian.Uint64(data[i : i+8])
			expiry = time.UnixMilli(int64(ts))
			i += 8
		case opExpireSec:
			if i+4 > len(data) {
				return out, fmt.Errorf("rdb: truncated expiry-sec field")
			}
			ts := binary.LittleEndian.Uint32(data[i : i+4])
			expiry = time.Unix(int64(ts), 0)
			i += 4
		case typeString:
			key, n1, err := readString(data[i:])
			if err != nil {
				return out, err
			}
			i += n1
			val, n2, err := readString(data[i:])
			if err != nil {
				return out, err
			}
			i += n2
			out = append(out, StringEntry{Key: key, Value: val, Expiry: expiry})
			expiry = time.Time{}
		case opEOF:
			return out, nil
		default:
			return out, fmt.Errorf("rdb: unsupported opcode 0x%02x", b)
		}
	}
	return out, nil
}

// writeLength encodes n using the 6-/14-/32-bit length scheme.
func writeLength(buf *bytes.Buffer, n int) {
	switch {
	case n < 1<<6:
		buf.WriteByte(byte(n))
	case n < 1<<14:
		buf.WriteByte(byte(0x40 | (n >> 8)))
		buf.WriteByte(byte(n))
	default:
		buf.WriteByte(0x80)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(n))
		buf.Write(b[:])
	}
}

func writeString(buf *bytes.Buffer, s string) {
	writeLength(buf, len(s))
	buf.WriteString(s)
}

func readLength(data []byte) (int, int) {
	if len(data) == 0 {
		return 0, 0
	}
	first := data[0]
	switch (first & 0xC0) >> 6 {
	case 0:
		return int(first & 0x3F), 1
	case 1:
		return int(first&0x3F)<<8 | int(data[1]), 2
	default:
		return int(binary.BigEndian.Uint32(data[1:5])), 5
	}
}

func readString(data []byte) (string, int, error) {
	length, n := readLength(data)
	start, end := n, n+length
	if end > len(data) {
		return "", 0, fmt.Errorf("rdb: truncated string field")
	}
	return string(data[start:end]), end, nil
}
