// Package streamcodec implements the AEAD stream codec from spec.md
// §4.B: it turns an arbitrary io.Writer into a framed, authenticated
// ciphertext sink, and an arbitrary io.Reader positioned at the start of
// such a stream back into the original plaintext, failing closed the
// moment a frame's tag doesn't check out.
//
// Framing (an implementation choice, not part of the public contract):
//
//	header: iv(16)
//	frame*: length(4, big-endian) || final(1) || ciphertext(length) || tag(32)
//
// AES-256-CTR runs as one continuous keystream across every frame; the
// HMAC-SHA256 tag on each frame covers the running digest of every frame
// header and ciphertext seen so far, so the final frame's tag is also a
// whole-stream authentication tag. A missing or short final frame is
// truncation; the reader treats it the same as a bad tag.
package streamcodec

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"hash"
	"io"
)

// ChunkSize is the plaintext size buffered per frame before it is
// flushed. 16 KiB sits comfortably inside spec.md §4.B's recommended
// 1 KiB-64 KiB range.
const ChunkSize = 16 * 1024

const (
	ivSize     = 16
	tagSize    = 32
	lengthSize = 4
	finalSize  = 1
	frameHeaderSize = lengthSize + finalSize
)

// Keys bundles the two working keys a codec instance needs. Both are
// expanded from the vault's master key (vault.Vault.DataKey / MacKey).
type Keys struct {
	DataKey [32]byte
	MacKey  [32]byte
}

func newCipherStream(key [32]byte, iv []byte) (cipher.Stream, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("streamcodec: creating AES cipher: %w", err)
	}
	return cipher.NewCTR(block, iv), nil
}

func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func readFull(r io.Reader, p []byte) error {
	_, err := io.ReadFull(r, p)
	return err
}

func frameTag(mac hash.Hash, header []byte, ciphertext []byte) []byte {
	mac.Write(header)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}
