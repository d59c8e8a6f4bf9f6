package testutil

import (
	"io"
	"time"
)

// WaitForStability mirrors the teacher's adapter.WaitForStability: tests
// against channel-driven components need a small grace period for the
// receiving goroutine to process a just-sent message before asserting on
// its effects.
func WaitForStability() {
	time.Sleep(5 * time.Millisecond)
}

// pipeConn joins an io.PipeReader/io.PipeWriter pair into one
// io.ReadWriteCloser, for fake serial streams in tests.
type pipeConn struct {
	*io.PipeReader
	*io.PipeWriter
}

func (p pipeConn) Close() error {
	_ = p.PipeReader.Close()
	return p.PipeWriter.Close()
}

// DuplexPipe returns two connected io.ReadWriteClosers: writes to side A
// are readable from side B and vice versa, standing in for a real serial
// port in tests.
func DuplexPipe() (a, b io.ReadWriteCloser) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return pipeConn{PipeReader: ar, PipeWriter: aw}, pipeConn{PipeReader: br, PipeWriter: bw}
}
