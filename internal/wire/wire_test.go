package wire

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

func TestEntryRoundTrip(t *testing.T) {
	payload := []byte(`{"id":"1"}`)
	enc := EncodeEntry(42, 1234567890, payload)

	stamp, exp, got, err := DecodeEntry(enc)
	if err != nil {
		t.Fatalf("DecodeEntry: %v", err)
	}
	if stamp != 42 || exp != 1234567890 {
		t.Fatalf("header mismatch: stamp=%d exp=%d", stamp, exp)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload mismatch: %q", got)
	}
}

func TestEntryEmptyPayload(t *testing.T) {
	enc := EncodeEntry(1, 0, nil)
	_, _, got, err := DecodeEntry(enc)
	if err != nil {
		t.Fatalf("DecodeEntry: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(got))
	}
}

// DecodeEntry must reject trailing bytes (strict framing).
func TestEntryRejectsTrailing(t *testing.T) {
	b := EncodeEntry(7, 0, []byte("x"))
	b = append(b, 0xDE, 0xAD)
	if _, _, _, err := DecodeEntry(b); err == nil {
		t.Fatalf("DecodeEntry should reject trailing bytes")
	}
}

func TestEntryRejectsCorrupt(t *testing.T) {
	enc := EncodeEntry(7, 0, []byte("xyz"))

	// not even a frame
	if _, _, _, err := DecodeEntry([]byte("junk")); err == nil {
		t.Fatalf("expected error on junk")
	}

	// wrong version
	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, _, _, err := DecodeEntry(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	// wrong kind
	badKind := append([]byte(nil), enc...)
	badKind[5] = kindInv
	if _, _, _, err := DecodeEntry(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// vlen beyond remaining
	// header: 4 magic + 1 ver + 1 kind + 8 stamp + 8 expiresAt = 22 bytes, then vlen
	badVlen := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(badVlen[22:26], uint32(len("xyz")+1))
	if _, _, _, err := DecodeEntry(badVlen); err == nil {
		t.Fatalf("expected error on vlen beyond buffer")
	}
}

func TestInvalidationRoundTrip(t *testing.T) {
	enc, err := EncodeInvalidation(99, "entry:user:u:1")
	if err != nil {
		t.Fatalf("EncodeInvalidation: %v", err)
	}
	stamp, key, err := DecodeInvalidation(enc)
	if err != nil {
		t.Fatalf("DecodeInvalidation: %v", err)
	}
	if stamp != 99 || key != "entry:user:u:1" {
		t.Fatalf("mismatch: stamp=%d key=%q", stamp, key)
	}
}

// Key length is unbounded in practice; frames past the old 64KiB mark must
// still round-trip instead of failing at encode time.
func TestInvalidationLongKey(t *testing.T) {
	long := "entry:user:" + strings.Repeat("k", 70_000)
	enc, err := EncodeInvalidation(7, long)
	if err != nil {
		t.Fatalf("EncodeInvalidation: %v", err)
	}
	_, key, err := DecodeInvalidation(enc)
	if err != nil {
		t.Fatalf("DecodeInvalidation: %v", err)
	}
	if key != long {
		t.Fatalf("long key did not round-trip (got %d bytes)", len(key))
	}
}

func TestInvalidationRejectsTrailing(t *testing.T) {
	b, err := EncodeInvalidation(1, "k")
	if err != nil {
		t.Fatalf("EncodeInvalidation: %v", err)
	}
	b = append(b, 0x00)
	if _, _, err := DecodeInvalidation(b); err == nil {
		t.Fatalf("DecodeInvalidation should reject trailing bytes")
	}
}

func TestInvalidationRejectsEntryFrame(t *testing.T) {
	b := EncodeEntry(1, 0, []byte("v"))
	if _, _, err := DecodeInvalidation(b); err == nil {
		t.Fatalf("entry frame must not decode as invalidation")
	}
}

func TestInvalidationRejectsEmptyKey(t *testing.T) {
	if _, err := EncodeInvalidation(1, ""); !errors.Is(err, ErrBadKey) {
		t.Fatalf("want ErrBadKey on empty key, got %v", err)
	}
}

func TestDecodedPayloadIsZeroCopy(t *testing.T) {
	enc := EncodeEntry(1, 0, []byte("X"))
	_, _, got, err := DecodeEntry(enc)
	if err != nil {
		t.Fatalf("DecodeEntry: %v", err)
	}

	// mutate decoded payload. should mutate underlying enc bytes
	got[0] = 'Q'

	_, _, got2, err := DecodeEntry(enc)
	if err != nil {
		t.Fatalf("DecodeEntry: %v", err)
	}
	if got2[0] != 'Q' {
		t.Fatalf("expected zero-copy payload subslice into enc buffer")
	}
}
