package resp

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCommand(t *testing.T) {
	buf := &bytes.Buffer{}
	require.Nil(t, WriteCommand(buf, "KEYS", "*"))
	require.Equal(t, "*2\r\n$4\r\nKEYS\r\n$1\r\n*\r\n", buf.String())
}

func TestReadReply(t *testing.T) {
	input := "+PONG\r\n" +
		"-ERR unknown command\r\n" +
		":45\r\n" +
		"$5\r\nhello\r\n" +
		"$-1\r\n" +
		"*2\r\n$1\r\na\r\n+b\r\n" +
		"*0\r\n"
	r := NewReader(strings.NewReader(input))

	reply, err := r.ReadReply()
	require.Nil(t, err)
	text, err := reply.Text()
	require.Nil(t, err)
	require.Equal(t, "PONG", text)

	reply, err = r.ReadReply()
	require.Nil(t, err)
	require.Equal(t, KindError, reply.Kind)
	_, err = reply.Int()
	require.Equal(t, Error("ERR unknown command"), err)

	reply, err = r.ReadReply()
	require.Nil(t, err)
	n, err := reply.Int()
	require.Nil(t, err)
	require.Equal(t, int64(45), n)

	reply, err = r.ReadReply()
	require.Nil(t, err)
	require.Equal(t, &Reply{Kind: KindBulkString, Str: "hello"}, reply)

	reply, err = r.ReadReply()
	require.Nil(t, err)
	require.Equal(t, KindNull, reply.Kind)

	reply, err = r.ReadReply()
	require.Nil(t, err)
	values, err := reply.Strings()
	require.Nil(t, err)
	require.Equal(t, []string{"a", "b"}, values)

	reply, err = r.ReadReply()
	require.Nil(t, err)
	values, err = reply.Strings()
	require.Nil(t, err)
	require.Empty(t, values)
}

func TestReadReply_TooLarge(t *testing.T) {
	r := NewReader(strings.NewReader("$100\r\n" + strings.Repeat("x", 100) + "\r\n"))
	r.MaxBulkSize = 10

	_, err := r.ReadReply()
	require.True(t, errors.Is(err, ErrTooLarge))
}

func TestReadReply_Malformed(t *testing.T) {
	for _, input := range []string{"?what\r\n", ":abc\r\n", "+missing-cr\n", "$3\r\nabcd\r\n"} {
		_, err := NewReader(strings.NewReader(input)).ReadReply()
		assert.True(t, errors.Is(err, ErrProtocol), input)
	}
}

func TestConn_Do(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		defer server.Close()
		r := NewReader(server)
		cmd, err := r.ReadReply()
		if err != nil {
			return
		}
		args, _ := cmd.Strings()
		if len(args) == 1 && args[0] == "PING" {
			server.Write([]byte("+PONG\r\n"))
		}
	}()

	conn := NewConn(client)
	reply, err := conn.Do(context.Background(), "PING")
	require.Nil(t, err)
	text, err := reply.Text()
	require.Nil(t, err)
	require.Equal(t, "PONG", text)
}

func TestConn_DoCancelled(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewConn(client).Do(ctx, "PING")
	require.True(t, errors.Is(err, context.Canceled))
}
