package resp

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestWriteCommand(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	if err := WriteCommand(w, []byte("SET"), []byte("k"), []byte("v"), []byte("EX"), []byte("60")); err != nil {
		t.Fatalf("WriteCommand: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	want := "*5\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n$2\r\nEX\r\n$2\r\n60\r\n"
	if buf.String() != want {
		t.Fatalf("wire mismatch:\n got %q\nwant %q", buf.String(), want)
	}
}

func TestWriteCommandEmpty(t *testing.T) {
	w := bufio.NewWriter(&bytes.Buffer{})
	if err := WriteCommand(w); err == nil {
		t.Fatalf("empty command should fail")
	}
}

func readFrom(t *testing.T, s string) (Reply, error) {
	t.Helper()
	return ReadReply(bufio.NewReader(strings.NewReader(s)))
}

func TestReadStatus(t *testing.T) {
	rep, err := readFrom(t, "+OK\r\n")
	if err != nil || rep.Kind != KindStatus || rep.Str != "OK" {
		t.Fatalf("status: rep=%+v err=%v", rep, err)
	}
}

func TestReadError(t *testing.T) {
	rep, err := readFrom(t, "-ERR wrong type\r\n")
	if err != nil || !rep.IsError() || rep.Str != "ERR wrong type" {
		t.Fatalf("error: rep=%+v err=%v", rep, err)
	}
}

func TestReadInteger(t *testing.T) {
	rep, err := readFrom(t, ":42\r\n")
	if err != nil || rep.Kind != KindInt || rep.Int != 42 {
		t.Fatalf("integer: rep=%+v err=%v", rep, err)
	}
}

func TestReadBulk(t *testing.T) {
	rep, err := readFrom(t, "$5\r\nhello\r\n")
	if err != nil || rep.Kind != KindBulk || string(rep.Bulk) != "hello" {
		t.Fatalf("bulk: rep=%+v err=%v", rep, err)
	}
}

// Bulk payloads are binary-safe, including embedded CRLF.
func TestReadBulkBinary(t *testing.T) {
	rep, err := readFrom(t, "$4\r\na\r\nb\r\n")
	if err != nil || string(rep.Bulk) != "a\r\nb" {
		t.Fatalf("binary bulk: rep=%+v err=%v", rep, err)
	}
}

func TestReadNil(t *testing.T) {
	rep, err := readFrom(t, "$-1\r\n")
	if err != nil || rep.Kind != KindNil {
		t.Fatalf("nil bulk: rep=%+v err=%v", rep, err)
	}
	rep, err = readFrom(t, "*-1\r\n")
	if err != nil || rep.Kind != KindNil {
		t.Fatalf("nil array: rep=%+v err=%v", rep, err)
	}
}

func TestReadArray(t *testing.T) {
	// the shape of a SUBSCRIBE push: ["message", channel, payload]
	rep, err := readFrom(t, "*3\r\n$7\r\nmessage\r\n$4\r\nchan\r\n$2\r\nhi\r\n")
	if err != nil || rep.Kind != KindArray || len(rep.Array) != 3 {
		t.Fatalf("array: rep=%+v err=%v", rep, err)
	}
	if string(rep.Array[0].Bulk) != "message" || string(rep.Array[2].Bulk) != "hi" {
		t.Fatalf("array members: %+v", rep.Array)
	}
}

func TestReadMalformed(t *testing.T) {
	for _, in := range []string{
		"?what\r\n",
		":\r\nnotanum",
		"$3\r\nab\r\n", // short bulk body ends in EOF
		"+OK\n",       // bare LF
	} {
		if _, err := readFrom(t, in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
	if _, err := readFrom(t, "?what\r\n"); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol")
	}
}
