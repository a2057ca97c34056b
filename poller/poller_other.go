//go:build !linux && !darwin

package poller

func newBackend() (backend, error) { return nil, ErrNotSupported }
