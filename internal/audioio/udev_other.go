//go:build !linux

package audioio

// AutoDetectDevice is a no-op off Linux: udev has no equivalent, so
// callers fall back to NewPortAudioSource's default-device behavior.
func AutoDetectDevice() (string, error) {
	return "", nil
}
