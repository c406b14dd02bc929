package vault

import "errors"

var (
	ErrEmptyPassphrase       = errors.New("vault: passphrase must not be empty")
	ErrWrongPassphrase       = errors.New("vault: wrong passphrase")
	ErrCorruptKeyFile        = errors.New("vault: key file is corrupt")
	ErrRandomnessUnavailable = errors.New("vault: could not draw randomness from the OS")
	ErrKeyFileMissing        = errors.New("vault: key file does not exist")
)
