package streamcodec

import "errors"

var (
	// ErrAuthenticationFailed is returned by Reader.Read once a frame tag
	// mismatch or truncation has been detected. The reader stays in this
	// state permanently: no later Read call will surface more plaintext.
	ErrAuthenticationFailed = errors.New("streamcodec: authentication failed")

	errAlreadyFailed = errors.New("streamcodec: reader already failed authentication")
)
