package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version  byte = 1
	kindItem byte = 1
	kindInv  byte = 2
)

var (
	ErrCorrupt = errors.New("relaycache: corrupt frame")

	// ErrBadKey is returned by EncodeInvalidation for keys the frame cannot
	// carry. Key length is otherwise unbounded.
	ErrBadKey = errors.New("relaycache: invalid invalidation key")

	magic4 = [...]byte{'R', 'L', 'C', 'H'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entry: magic(4) | ver(1) | kind(1=entry) | stamp(u64 be) | expiresAt(u64 be, unix-nano, 0=none) | vlen(u32 be) | payload(vlen)
//
// Framing is strict: trailing bytes after the payload are rejected, so
// foreign writes under our key prefix are treated as corruption.
func EncodeEntry(stamp, expiresAt uint64, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 8 + 8 + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindItem)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], stamp)
	buf.Write(u8[:])

	binary.BigEndian.PutUint64(u8[:], expiresAt)
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

func DecodeEntry(b []byte) (stamp, expiresAt uint64, payload []byte, err error) {
	const hdr = 4 + 1 + 1 + 8 + 8 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindItem {
		return 0, 0, nil, ErrCorrupt
	}

	off := 6

	stamp = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	expiresAt = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // strict: no trailing bytes
		return 0, 0, nil, ErrCorrupt
	}

	return stamp, expiresAt, b[off : off+vlen], nil
}

// Invalidation: magic(4) | ver(1) | kind(2=inv) | stamp(u64 be) | klen(u32 be) | key(klen)
func EncodeInvalidation(stamp uint64, key string) ([]byte, error) {
	if l := len(key); l == 0 || uint64(l) > 0xFFFFFFFF {
		return nil, ErrBadKey
	}

	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 8 + 4 + len(key))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindInv)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], stamp)
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(key)))
	buf.Write(u4[:])
	buf.WriteString(key)

	return buf.Bytes(), nil
}

func DecodeInvalidation(b []byte) (stamp uint64, key string, err error) {
	const hdr = 4 + 1 + 1 + 8 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindInv {
		return 0, "", ErrCorrupt
	}

	off := 6

	stamp = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	klen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if klen == 0 || klen != len(b)-off { // strict: no trailing bytes
		return 0, "", ErrCorrupt
	}

	return stamp, string(b[off : off+klen]), nil
}
