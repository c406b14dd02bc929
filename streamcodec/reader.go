package streamcodec

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
)

// Reader is the read-side contract of spec.md §4.B: it yields the
// original plaintext as a sequential stream, authenticating each frame as
// it arrives. Once a tag mismatch or truncation is detected the reader
// enters a permanently-failed state and surfaces no further plaintext.
type Reader struct {
	r      io.Reader
	stream cipher.Stream
	mac    hash.Hash

	pending []byte // decrypted bytes not yet returned to the caller
	sawFinal bool
	failed   bool
	failErr  error
}

// NewReader reads the codec header (the IV) from r and returns a Reader
// ready to decrypt the frames that follow.
func NewReader(r io.Reader, keys Keys) (*Reader, error) {
	iv := make([]byte, ivSize)
	if err := readFull(r, iv); err != nil {
		return nil, fmt.Errorf("streamcodec: reading header: %w", err)
	}

	stream, err := newCipherStream(keys.DataKey, iv)
	if err != nil {
		return nil, err
	}

	mac := hmac.New(sha256.New, keys.MacKey[:])
	mac.Write(iv)

	return &Reader{
		r:      r,
		stream: stream,
		mac:    mac,
	}, nil
}

// Read implements io.Reader. It never returns plaintext from a frame
// whose tag hasn't verified.
func (r *Reader) Read(p []byte) (int, error) {
	if r.failed {
		return 0, r.failErr
	}

	for len(r.pending) == 0 {
		if r.sawFinal {
			return 0, io.EOF
		}
		if err := r.readFrame(); err != nil {
			r.fail(err)
			return 0, err
		}
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *Reader) fail(err error) {
	r.failed = true
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		r.failErr = ErrAuthenticationFailed
	} else {
		r.failErr = err
	}
}

// readFrame reads one length||final||ciphertext||tag frame, verifies its
// tag, decrypts it, and appends the plaintext to r.pending. Any I/O
// failure while reading a frame (truncation mid-header, mid-ciphertext,
// or mid-tag) is reported as authentication failure: the spec requires
// truncation detection, not a distinct error class from tampering.
func (r *Reader) readFrame() error {
	header := make([]byte, frameHeaderSize)
	if err := readFull(r.r, header); err != nil {
		if err == io.EOF {
			// Clean EOF before a final frame ever arrived: the stream was
			// truncated right at a frame boundary.
			return ErrAuthenticationFailed
		}
		return ErrAuthenticationFailed
	}

	length := binary.BigEndian.Uint32(header[:lengthSize])
	final := header[lengthSize] == 1

	ciphertext := make([]byte, length)
	if err := readFull(r.r, ciphertext); err != nil {
		return ErrAuthenticationFailed
	}

	tag := make([]byte, tagSize)
	if err := readFull(r.r, tag); err != nil {
		return ErrAuthenticationFailed
	}

	expectedTag := frameTag(r.mac, header, ciphertext)
	if !hmac.Equal(tag, expectedTag) {
		return ErrAuthenticationFailed
	}

	plaintext := make([]byte, length)
	r.stream.XORKeyStream(plaintext, ciphertext)
	r.pending = append(r.pending, plaintext...)

	if final {
		r.sawFinal = true
		if err := r.rejectTrailingGarbage(); err != nil {
			return err
		}
	}
	return nil
}

// rejectTrailingGarbage makes sure nothing follows the final frame: a
// codec stream that has extra bytes appended after its terminal tag is
// just as tampered-with as one missing bytes from the middle.
func (r *Reader) rejectTrailingGarbage() error {
	var probe [1]byte
	n, err := r.r.Read(probe[:])
	if n > 0 {
		return ErrAuthenticationFailed
	}
	if err != nil && err != io.EOF {
		return ErrAuthenticationFailed
	}
	return nil
}
