package streamcodec

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
)

// Writer is the write-side contract of spec.md §4.B: append-plaintext and
// finalize. Finalize must run before the backing sink is closed, or the
// final frame is left incomplete and the stream will fail authentication
// on read.
type Writer struct {
	w      io.Writer
	stream cipher.Stream
	mac    hash.Hash

	buf       []byte
	finalized bool
}

// NewWriter generates a random IV, writes the codec header, and returns a
// Writer ready to accept plaintext via Write.
func NewWriter(w io.Writer, keys Keys) (*Writer, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("streamcodec: generating iv: %w", err)
	}

	stream, err := newCipherStream(keys.DataKey, iv)
	if err != nil {
		return nil, err
	}

	if err := writeFull(w, iv); err != nil {
		return nil, fmt.Errorf("streamcodec: writing header: %w", err)
	}

	mac := hmac.New(sha256.New, keys.MacKey[:])
	mac.Write(iv) // binds the IV into every frame tag that follows

	return &Writer{
		w:      w,
		stream: stream,
		mac:    mac,
		buf:    make([]byte, 0, ChunkSize),
	}, nil
}

// Write appends plaintext, flushing full ChunkSize frames as the internal
// buffer fills. It never returns a short write for a nil error, matching
// io.Writer's contract, and retries partial writes to the backing sink
// until the buffer drains or a hard error occurs.
func (w *Writer) Write(p []byte) (int, error) {
	if w.finalized {
		return 0, fmt.Errorf("streamcodec: write after finalize")
	}

	total := len(p)
	for len(p) > 0 {
		space := ChunkSize - len(w.buf)
		n := len(p)
		if n > space {
			n = space
		}
		w.buf = append(w.buf, p[:n]...)
		p = p[n:]

		if len(w.buf) == ChunkSize {
			if err := w.flushFrame(false); err != nil {
				return total - len(p), err
			}
		}
	}
	return total, nil
}

// Finalize flushes any buffered plaintext as the terminal frame and writes
// its authentication tag. Calling Finalize twice is a no-op: the second
// call returns nil without touching the sink again.
func (w *Writer) Finalize() error {
	if w.finalized {
		return nil
	}
	w.finalized = true
	return w.flushFrame(true)
}

// Flush is a deliberate non-operation distinct from Finalize: the codec
// has no intermediate buffering to drain beyond a single in-progress
// frame, and flushing that frame early without the final flag would
// produce a non-terminal frame a reader can't yet authenticate to EOF.
// Callers that want a partial frame forced to disk should call Finalize
// and open a new Writer for subsequent data instead.
func (w *Writer) Flush() error {
	return nil
}

func (w *Writer) flushFrame(final bool) error {
	plaintext := w.buf
	ciphertext := make([]byte, len(plaintext))
	w.stream.XORKeyStream(ciphertext, plaintext)
	w.buf = w.buf[:0]

	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint32(header[:lengthSize], uint32(len(ciphertext)))
	if final {
		header[lengthSize] = 1
	}

	tag := frameTag(w.mac, header, ciphertext)

	if err := writeFull(w.w, header); err != nil {
		return fmt.Errorf("streamcodec: writing frame header: %w", err)
	}
	if err := writeFull(w.w, ciphertext); err != nil {
		return fmt.Errorf("streamcodec: writing frame ciphertext: %w", err)
	}
	if err := writeFull(w.w, tag); err != nil {
		return fmt.Errorf("streamcodec: writing frame tag: %w", err)
	}
	return nil
}
