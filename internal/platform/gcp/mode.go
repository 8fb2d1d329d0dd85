package gcp

import (
	"fmt"
	"net/url"
	"strings"
)

type Mode string

const (
	ModeGCS      Mode = "gcs"
	ModeEmulator Mode = "gcs_emulator"
)

// ModeError reports an object storage mode that cannot be used.
type ModeError struct {
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *ModeError) Error() string {
	switch {
	case e.Mode != string(ModeGCS) && e.Mode != string(ModeEmulator):
		return fmt.Sprintf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q)", e.Mode, ModeGCS, ModeEmulator)
	case e.EmulatorHost == "":
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST", ModeEmulator)
	default:
		return fmt.Sprintf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", e.EmulatorHost)
	}
}

func (e *ModeError) Unwrap() error { return e.Cause }

// ResolveMode picks the storage mode. An empty mode with an emulator host
// set selects the emulator.
func ResolveMode(raw, emulatorHost string) (Mode, error) {
	emulatorHost = strings.TrimSpace(emulatorHost)
	mode := Mode(strings.ToLower(strings.TrimSpace(raw)))
	if mode == "" {
		if emulatorHost != "" {
			return ModeEmulator, nil
		}
		return ModeGCS, nil
	}
	switch mode {
	case ModeGCS:
		return mode, nil
	case ModeEmulator:
		if emulatorHost == "" {
			return "", &ModeError{Mode: string(mode)}
		}
		u, err := url.Parse(emulatorHost)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "", &ModeError{Mode: string(mode), EmulatorHost: emulatorHost, Cause: err}
		}
		return mode, nil
	default:
		return "", &ModeError{Mode: raw}
	}
}
