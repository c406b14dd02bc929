// Package vault implements the passphrase-derived key hierarchy that
// protects a seshat-index directory: it derives (KEK, HMAC_KEK) from a
// passphrase, generates or loads the versioned master-key file, and
// expands the master key into the working keys that encrypt content
// files.
package vault

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Vault holds the working keys for one opened store. The passphrase
// itself is never retained past derivation.
type Vault struct {
	DataKey [32]byte
	MacKey  [32]byte

	logger *logrus.Logger
}

// Option configures Open.
type Option func(*Vault)

// WithLogger attaches a logger; Open logs nothing sensitive, only
// operational events (store created, passphrase changed).
func WithLogger(logger *logrus.Logger) Option {
	return func(v *Vault) { v.logger = logger }
}

// Open derives or loads the master key for the store rooted at dir and
// returns the expanded working keys. If dir has no key file yet, one is
// created with a fresh random master key; otherwise the existing file is
// loaded and authenticated against passphrase.
func Open(dir string, passphrase string, opts ...Option) (*Vault, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}

	v := &Vault{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(v)
	}

	path := filepath.Join(dir, KeyFileName)

	masterKey, created, err := loadOrCreateStoreKey(path, passphrase)
	if err != nil {
		return nil, err
	}

	v.DataKey, v.MacKey = expandMasterKey(masterKey)

	if created {
		v.logger.WithField("path", path).Info("vault: created new index store key file")
	} else {
		v.logger.WithField("path", path).Debug("vault: opened index store")
	}
	return v, nil
}

// ChangePassphrase re-encrypts the master key under a freshly derived KEK
// without rotating the master key itself, so existing content files stay
// readable after the change. If decryption under old fails, the key file
// on disk is left byte-for-byte unchanged.
func ChangePassphrase(dir string, old, newPassphrase string, opts ...Option) error {
	if old == "" || newPassphrase == "" {
		return ErrEmptyPassphrase
	}

	logger := logrus.StandardLogger()
	v := &Vault{}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger != nil {
		logger = v.logger
	}

	path := filepath.Join(dir, KeyFileName)

	masterKey, err := loadStoreKey(path, old)
	if err != nil {
		return err
	}

	if err := encryptAndWriteStoreKey(path, newPassphrase, masterKey); err != nil {
		return err
	}

	logger.WithField("path", path).Info("vault: passphrase changed")
	return nil
}

// loadOrCreateStoreKey loads the existing key file, or creates a new one
// (with a fresh random master key) if none exists yet.
func loadOrCreateStoreKey(path, passphrase string) (masterKey [masterKeySize]byte, created bool, err error) {
	existing, err := readKeyFile(path)
	if err == ErrKeyFileMissing {
		masterKey, err = createNewStore(path, passphrase)
		return masterKey, true, err
	}
	if err != nil {
		return masterKey, false, err
	}

	masterKey, err = decryptAndVerify(existing, passphrase)
	return masterKey, false, err
}

func loadStoreKey(path, passphrase string) ([masterKeySize]byte, error) {
	existing, err := readKeyFile(path)
	if err != nil {
		return [masterKeySize]byte{}, err
	}
	return decryptAndVerify(existing, passphrase)
}

// decryptAndVerify checks the key file's MAC before attempting
// decryption, per spec.md §4.A ("MAC is checked before attempting
// decryption").
func decryptAndVerify(f *storeKeyFile, passphrase string) ([masterKeySize]byte, error) {
	kek, hmacKey := deriveKeys(passphrase, f.salt)

	expectedMAC := calculateMAC(hmacKey[:], f)
	if !constantTimeEqual(expectedMAC[:], f.mac[:]) {
		return [masterKeySize]byte{}, ErrWrongPassphrase
	}

	masterKey, err := decryptMasterKey(kek[:], f.iv, f.ciphertext)
	if err != nil {
		return [masterKeySize]byte{}, fmt.Errorf("vault: decrypting master key: %w", err)
	}
	return masterKey, nil
}

func createNewStore(path, passphrase string) ([masterKeySize]byte, error) {
	masterKeyBytes, err := randomBytes(masterKeySize)
	if err != nil {
		return [masterKeySize]byte{}, err
	}
	var masterKey [masterKeySize]byte
	copy(masterKey[:], masterKeyBytes)

	if err := encryptAndWriteStoreKey(path, passphrase, masterKey); err != nil {
		return [masterKeySize]byte{}, err
	}
	return masterKey, nil
}

func encryptAndWriteStoreKey(path, passphrase string, masterKey [masterKeySize]byte) error {
	saltBytes, err := randomBytes(saltSize)
	if err != nil {
		return err
	}
	var salt [saltSize]byte
	copy(salt[:], saltBytes)

	ivBytes, err := randomBytes(ivSize)
	if err != nil {
		return err
	}
	var iv [ivSize]byte
	copy(iv[:], ivBytes)

	kek, hmacKey := deriveKeys(passphrase, salt)

	ciphertext, err := encryptMasterKey(kek[:], iv, masterKey)
	if err != nil {
		return fmt.Errorf("vault: encrypting master key: %w", err)
	}

	f := &storeKeyFile{
		version:    keyFileVersion,
		iv:         iv,
		salt:       salt,
		ciphertext: ciphertext,
	}
	f.mac = calculateMAC(hmacKey[:], f)

	return writeKeyFileAtomic(path, f)
}
