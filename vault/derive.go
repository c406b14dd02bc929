package vault

import (
	"crypto/sha512"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// PBKDFIterations is the PBKDF2 iteration count used to stretch a
// passphrase into (KEK, HMAC_KEK). Production uses 10 000 per spec.md
// §4.A; tests override this to 10 so the suite stays fast.
var PBKDFIterations = 10000

// deriveKeys runs PBKDF2-HMAC-SHA512(passphrase, salt, PBKDFIterations, 64)
// and splits the output into a 32-byte KEK and a 32-byte HMAC key.
func deriveKeys(passphrase string, salt [saltSize]byte) (kek, hmacKey [32]byte) {
	out := pbkdf2.Key([]byte(passphrase), salt[:], PBKDFIterations, 64, sha512.New)
	copy(kek[:], out[:32])
	copy(hmacKey[:], out[32:])
	return kek, hmacKey
}

// expandMasterKey runs HKDF-Expand-SHA512(masterKey, info=nil, 64) and
// splits the output into DATA_KEY and MAC_KEY, the per-content-file
// working keys.
func expandMasterKey(masterKey [masterKeySize]byte) (dataKey, macKey [32]byte) {
	reader := hkdf.New(sha512.New, masterKey[:], nil, nil)
	var out [64]byte
	if _, err := io.ReadFull(reader, out[:]); err != nil {
		// HKDF-Expand only fails once the requested output exceeds
		// 255*hash-size; 64 bytes never does.
		panic("vault: unreachable hkdf read failure: " + err.Error())
	}
	copy(dataKey[:], out[:32])
	copy(macKey[:], out[32:])
	return dataKey, macKey
}
