package session

import (
	"context"
	"io"
)

// Microphone grants exclusive access to the audio input device for the span
// of one session. The returned closer releases the device.
type Microphone interface {
	Acquire(ctx context.Context) (io.Closer, error)
}

// GrantedMicrophone always grants access. Default for development setups
// where the host device is not mediated by a permission prompt.
type GrantedMicrophone struct{}

func (GrantedMicrophone) Acquire(ctx context.Context) (io.Closer, error) {
	return nopStream{}, nil
}

// DeniedMicrophone always refuses access.
type DeniedMicrophone struct{}

func (DeniedMicrophone) Acquire(ctx context.Context) (io.Closer, error) {
	return nil, ErrMicrophoneAccessDenied
}

type nopStream struct{}

func (nopStream) Close() error { return nil }
