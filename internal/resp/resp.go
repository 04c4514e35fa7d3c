// Package resp implements the minimal RESP framing the pooled store speaks:
// command arrays out, simple-string / error / integer / bulk / array replies
// in. One command per connection lease, one reply per command.
package resp

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
)

var ErrProtocol = errors.New("resp: protocol error")

type Kind byte

const (
	KindStatus Kind = '+'
	KindError  Kind = '-'
	KindInt    Kind = ':'
	KindBulk   Kind = '$'
	KindArray  Kind = '*'
	KindNil    Kind = '_' // nil bulk/array ($-1 / *-1)
)

// Reply is one parsed server reply. Exactly the fields for its Kind are set.
type Reply struct {
	Kind  Kind
	Str   string // KindStatus, KindError
	Int   int64  // KindInt
	Bulk  []byte // KindBulk
	Array []Reply
}

// IsError reports whether the server answered with an error line.
func (r Reply) IsError() bool { return r.Kind == KindError }

// WriteCommand writes a command as a RESP array of bulk strings.
// The caller flushes.
func WriteCommand(w *bufio.Writer, args ...[]byte) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: empty command", ErrProtocol)
	}
	if _, err := w.WriteString("*" + strconv.Itoa(len(args)) + "\r\n"); err != nil {
		return err
	}
	for _, a := range args {
		if _, err := w.WriteString("$" + strconv.Itoa(len(a)) + "\r\n"); err != nil {
			return err
		}
		if _, err := w.Write(a); err != nil {
			return err
		}
		if _, err := w.WriteString("\r\n"); err != nil {
			return err
		}
	}
	return nil
}

// ReadReply reads exactly one reply frame.
func ReadReply(r *bufio.Reader) (Reply, error) {
	line, err := readLine(r)
	if err != nil {
		return Reply{}, err
	}
	if len(line) == 0 {
		return Reply{}, fmt.Errorf("%w: empty line", ErrProtocol)
	}

	switch line[0] {
	case '+':
		return Reply{Kind: KindStatus, Str: string(line[1:])}, nil
	case '-':
		return Reply{Kind: KindError, Str: string(line[1:])}, nil
	case ':':
		n, err := strconv.ParseInt(string(line[1:]), 10, 64)
		if err != nil {
			return Reply{}, fmt.Errorf("%w: bad integer %q", ErrProtocol, line)
		}
		return Reply{Kind: KindInt, Int: n}, nil
	case '$':
		n, err := strconv.Atoi(string(line[1:]))
		if err != nil {
			return Reply{}, fmt.Errorf("%w: bad bulk length %q", ErrProtocol, line)
		}
		if n < 0 {
			return Reply{Kind: KindNil}, nil
		}
		buf := make([]byte, n+2)
		if _, err := readFull(r, buf); err != nil {
			return Reply{}, err
		}
		if buf[n] != '\r' || buf[n+1] != '\n' {
			return Reply{}, fmt.Errorf("%w: bulk not CRLF-terminated", ErrProtocol)
		}
		return Reply{Kind: KindBulk, Bulk: buf[:n]}, nil
	case '*':
		n, err := strconv.Atoi(string(line[1:]))
		if err != nil {
			return Reply{}, fmt.Errorf("%w: bad array length %q", ErrProtocol, line)
		}
		if n < 0 {
			return Reply{Kind: KindNil}, nil
		}
		items := make([]Reply, 0, n)
		for i := 0; i < n; i++ {
			item, err := ReadReply(r)
			if err != nil {
				return Reply{}, err
			}
			items = append(items, item)
		}
		return Reply{Kind: KindArray, Array: items}, nil
	default:
		return Reply{}, fmt.Errorf("%w: unknown type %q", ErrProtocol, line[0])
	}
}

func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, fmt.Errorf("%w: line not CRLF-terminated", ErrProtocol)
	}
	return line[:len(line)-2], nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
