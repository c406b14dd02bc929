// Package fileadapter bridges the streamcodec AEAD layer (spec.md §4.B)
// to the shapes the directory façade's backing directory expects: a
// buffered streaming writer on the write path, and a fully materialized
// byte buffer on the read path, per spec.md §4.C.
package fileadapter

import (
	"bufio"
	"fmt"
	"io"

	"seshat-index/streamcodec"
)

// bufferSize matches streamcodec.ChunkSize so a bufio flush lines up with
// a codec frame boundary; it isn't load-bearing for correctness.
const bufferSize = streamcodec.ChunkSize

// BufferedWriter wraps the codec writer in a bufio.Writer that amortizes
// per-call overhead for small, frequent appends from the index layer.
//
// Flush only drains the bufio buffer into the codec writer: it does not
// finalize the codec stream, so a flushed-but-not-closed file is still
// unreadable (by design — the trailing authentication tag isn't written
// yet). Close finalizes unconditionally, guaranteeing the terminal tag is
// written even on an early or erroring release.
type BufferedWriter struct {
	buffered *bufio.Writer
	codec    *streamcodec.Writer
	backing  io.Closer
}

// NewBufferedWriter wraps backing (the file the directory opened for
// writing) in a codec writer and a buffering layer on top of it.
func NewBufferedWriter(backing io.WriteCloser, keys streamcodec.Keys) (*BufferedWriter, error) {
	codec, err := streamcodec.NewWriter(backing, keys)
	if err != nil {
		return nil, fmt.Errorf("fileadapter: opening codec writer: %w", err)
	}
	return &BufferedWriter{
		buffered: bufio.NewWriterSize(codec, bufferSize),
		codec:    codec,
		backing:  backing,
	}, nil
}

// Write appends plaintext bytes destined for the content file.
func (bw *BufferedWriter) Write(p []byte) (int, error) {
	return bw.buffered.Write(p)
}

// Flush drains the bufio buffer into the codec writer. It does not write
// the codec's terminal tag: the file is still not readable afterwards.
func (bw *BufferedWriter) Flush() error {
	return bw.buffered.Flush()
}

// Close flushes any buffered bytes, finalizes the codec's trailing
// authentication tag, and closes the backing file. Finalize itself is
// idempotent (spec.md's idempotent-close invariant), so calling Close
// twice only fails on the backing file's own double-close error, never on
// a duplicated trailing tag.
func (bw *BufferedWriter) Close() error {
	if err := bw.buffered.Flush(); err != nil {
		return fmt.Errorf("fileadapter: flushing buffer on close: %w", err)
	}
	if err := bw.codec.Finalize(); err != nil {
		return fmt.Errorf("fileadapter: finalizing codec stream: %w", err)
	}
	if err := bw.backing.Close(); err != nil {
		return fmt.Errorf("fileadapter: closing backing file: %w", err)
	}
	return nil
}
