// Package rpc provides the JSON-RPC transport over a backend subprocess's
// standard streams.
package rpc

import (
	"context"
	"io"
	"os/exec"

	"go.lsp.dev/jsonrpc2"
	"go.uber.org/multierr"
)

// stdio adapts a subprocess's stdout/stdin pipe pair into a single
// io.ReadWriteCloser usable as a jsonrpc2 stream. Messages are UTF-8 text
// with Content-Length framing, handled by jsonrpc2.NewStream.
type stdio struct {
	out io.ReadCloser
	in  io.WriteCloser
}

// NewStdio combines a read side and a write side into one transport.
func NewStdio(out io.ReadCloser, in io.WriteCloser) io.ReadWriteCloser {
	return &stdio{out: out, in: in}
}

func (s *stdio) Read(p []byte) (int, error) {
	return s.out.Read(p)
}

func (s *stdio) Write(p []byte) (int, error) {
	return s.in.Write(p)
}

func (s *stdio) Close() error {
	return multierr.Append(s.in.Close(), s.out.Close())
}

// FromCommand attaches pipes to a not-yet-started command and returns the
// combined transport. Must be called before the command is started.
func FromCommand(cmd *exec.Cmd) (io.ReadWriteCloser, error) {
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	return NewStdio(out, in), nil
}

// NewClientConn wraps the transport in a jsonrpc2 connection and begins
// request handling. Server-initiated requests the caller does not handle are
// answered with MethodNotFound.
func NewClientConn(ctx context.Context, rwc io.ReadWriteCloser, handler jsonrpc2.Handler) jsonrpc2.Conn {
	if handler == nil {
		handler = jsonrpc2.MethodNotFoundHandler
	}
	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(rwc))
	conn.Go(ctx, handler)
	return conn
}
