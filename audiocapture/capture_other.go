//go:build !windows

package audiocapture

// DefaultDevice returns ErrUnsupported on non-Windows platforms.
func DefaultDevice() (Device, error) {
	return nil, ErrUnsupported
}
