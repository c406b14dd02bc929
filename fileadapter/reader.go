package fileadapter

import (
	"bytes"
	"fmt"
	"io"

	"seshat-index/streamcodec"
)

// DecryptWhole consumes ciphertext (an entire content file, already read
// fully from a memory map or a byte buffer by the caller — see spec.md
// §4.C item 2) and returns the fully decrypted plaintext as a byte slice.
//
// This is the adapter's random-access-free answer to spec.md's Non-goal
// of random-access decryption: the codec only ever decrypts sequentially
// from the start, so the whole-file read path buffers the ciphertext and
// decrypts it in one sequential pass.
func DecryptWhole(ciphertext []byte, keys streamcodec.Keys) ([]byte, error) {
	reader, err := streamcodec.NewReader(bytes.NewReader(ciphertext), keys)
	if err != nil {
		return nil, fmt.Errorf("fileadapter: opening codec reader: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// EncryptWhole encrypts plaintext with a fresh codec instance and returns
// the complete ciphertext, for the atomic_write path (spec.md §4.D),
// which encrypts the entire input in memory before handing it to the
// backing directory's atomic write.
func EncryptWhole(plaintext []byte, keys streamcodec.Keys) ([]byte, error) {
	var buf bytes.Buffer
	writer, err := streamcodec.NewWriter(&buf, keys)
	if err != nil {
		return nil, fmt.Errorf("fileadapter: opening codec writer: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, err
	}
	if err := writer.Finalize(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
