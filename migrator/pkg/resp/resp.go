// Package resp speaks the subset of the Redis serialization protocol needed to
// check a migrated cluster: commands are sent as arrays of bulk strings and
// replies of the five RESP2 types are read back.
package resp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DefaultMaxBulkSize bounds a single bulk string reply.
const DefaultMaxBulkSize = 512 * 1024 * 1024

const (
	typeSimpleString = '+'
	typeError        = '-'
	typeInteger      = ':'
	typeBulkString   = '$'
	typeArray        = '*'
)

var (
	ErrTooLarge = errors.New("reply exceeds size limit")
	ErrProtocol = errors.New("protocol error")
)

// Error is an error reply sent by the server.
type Error string

func (e Error) Error() string {
	return string(e)
}

// Kind identifies the type of a Reply.
type Kind int

const (
	KindSimpleString Kind = iota
	KindError
	KindInteger
	KindBulkString
	KindNull
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindSimpleString:
		return "simple string"
	case KindError:
		return "error"
	case KindInteger:
		return "integer"
	case KindBulkString:
		return "bulk string"
	case KindNull:
		return "null"
	case KindArray:
		return "array"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Reply is one decoded server reply.
type Reply struct {
	Kind    Kind
	Str     string
	Integer int64
	Array   []*Reply
}

// Text returns the string value of a simple or bulk string reply.
func (r *Reply) Text() (string, error) {
	switch r.Kind {
	case KindSimpleString, KindBulkString:
		return r.Str, nil
	case KindError:
		return "", Error(r.Str)
	}
	return "", fmt.Errorf("%w: expected string reply, got %v", ErrProtocol, r.Kind)
}

func (r *Reply) Int() (int64, error) {
	switch r.Kind {
	case KindInteger:
		return r.Integer, nil
	case KindError:
		return 0, Error(r.Str)
	}
	return 0, fmt.Errorf("%w: expected integer reply, got %v", ErrProtocol, r.Kind)
}

// Strings returns the elements of an array of strings.
func (r *Reply) Strings() ([]string, error) {
	switch r.Kind {
	case KindArray:
	case KindNull:
		return nil, nil
	case KindError:
		return nil, Error(r.Str)
	default:
		return nil, fmt.Errorf("%w: expected array reply, got %v", ErrProtocol, r.Kind)
	}
	result := make([]string, 0, len(r.Array))
	for _, e := range r.Array {
		s, err := e.Text()
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, nil
}

// WriteCommand encodes args as an array of bulk strings.
func WriteCommand(w io.Writer, args ...string) error {
	b := &strings.Builder{}
	b.WriteByte(typeArray)
	b.WriteString(strconv.Itoa(len(args)))
	b.WriteString("\r\n")
	for _, a := range args {
		b.WriteByte(typeBulkString)
		b.WriteString(strconv.Itoa(len(a)))
		b.WriteString("\r\n")
		b.WriteString(a)
		b.WriteString("\r\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Reader decodes replies from a buffered stream.
type Reader struct {
	r *bufio.Reader
	// MaxBulkSize is the largest bulk string or array length accepted. Larger
	// replies fail with ErrTooLarge rather than being truncated.
	MaxBulkSize int64
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r), MaxBulkSize: DefaultMaxBulkSize}
}

func (r *Reader) readLine() (string, error) {
	line, err := r.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return "", fmt.Errorf("%w: line not terminated by CRLF", ErrProtocol)
	}
	return line[:len(line)-2], nil
}

func (r *Reader) readLength(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid length %q", ErrProtocol, s)
	}
	if n > r.MaxBulkSize {
		return 0, fmt.Errorf("%w: %v bytes, limit is %v", ErrTooLarge, n, r.MaxBulkSize)
	}
	return n, nil
}

// ReadReply reads one complete reply. Error replies are returned as a Reply of
// KindError, not as a Go error.
func (r *Reader) ReadReply() (*Reply, error) {
	line, err := r.readLine()
	if err != nil {
		return nil, err
	}
	if len(line) == 0 {
		return nil, fmt.Errorf("%w: empty reply", ErrProtocol)
	}

	switch line[0] {
	case typeSimpleString:
		return &Reply{Kind: KindSimpleString, Str: line[1:]}, nil
	case typeError:
		return &Reply{Kind: KindError, Str: line[1:]}, nil
	case typeInteger:
		n, err := strconv.ParseInt(line[1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid integer %q", ErrProtocol, line[1:])
		}
		return &Reply{Kind: KindInteger, Integer: n}, nil
	case typeBulkString:
		n, err := r.readLength(line[1:])
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return &Reply{Kind: KindNull}, nil
		}
		buf := make([]byte, n+2)
		if _, err = io.ReadFull(r.r, buf); err != nil {
			return nil, err
		}
		if buf[n] != '\r' || buf[n+1] != '\n' {
			return nil, fmt.Errorf("%w: bulk string not terminated by CRLF", ErrProtocol)
		}
		return &Reply{Kind: KindBulkString, Str: string(buf[:n])}, nil
	case typeArray:
		n, err := r.readLength(line[1:])
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return &Reply{Kind: KindNull}, nil
		}
		reply := &Reply{Kind: KindArray, Array: make([]*Reply, 0, min(n, 1024))}
		for i := int64(0); i < n; i++ {
			e, err := r.ReadReply()
			if err != nil {
				return nil, err
			}
			reply.Array = append(reply.Array, e)
		}
		return reply, nil
	}
	return nil, fmt.Errorf("%w: unknown reply type %q", ErrProtocol, line[0])
}
