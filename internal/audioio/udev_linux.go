//go:build linux

package audioio

import (
	"strings"

	"github.com/jochenvg/go-udev"
)

// candidateNames lists the ID_MODEL/ID_VENDOR substrings that identify
// an IC-705's USB audio CODEC. The list order is not a preference: the
// first enumerated device matching any of them wins, and its name is a
// substring a caller can feed to NewPortAudioSource.
var candidateNames = []string{"IC-705", "ICOM", "USB Audio CODEC"}

// AutoDetectDevice enumerates "sound" subsystem devices via udev and
// returns the first ID_MODEL (falling back to ID_VENDOR) containing one
// of candidateNames. Returns "" if nothing matched - the caller then
// falls back to the default input device.
func AutoDetectDevice() (string, error) {
	u := udev.Udev{}
	e := u.NewEnumerate()
	if err := e.AddMatchSubsystem("sound"); err != nil {
		return "", err
	}

	devices, err := e.Devices()
	if err != nil {
		return "", err
	}

	for _, d := range devices {
		props := d.Properties()
		model := props["ID_MODEL"]
		vendor := props["ID_VENDOR"]
		for _, want := range candidateNames {
			if containsFold(model, want) {
				return model, nil
			}
			if containsFold(vendor, want) {
				return vendor, nil
			}
		}
	}
	return "", nil
}

func containsFold(s, substr string) bool {
	if s == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
