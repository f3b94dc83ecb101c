package opus

import (
	"errors"
	"strings"
	"time"

	opus "gopkg.in/hraban/opus.v2"
)

// ValidSamplerate reports whether opus supports the sample rate.
func ValidSamplerate(sr int) bool {
	switch sr {
	case 8000, 12000, 16000, 24000, 48000:
		return true
	}
	return false
}

// ValidFrameDuration reports whether d is an opus frame duration.
func ValidFrameDuration(d time.Duration) bool {
	switch d {
	case 2500 * time.Microsecond, 5 * time.Millisecond, 10 * time.Millisecond,
		20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond:
		return true
	}
	return false
}

// ParseApplication returns the opus application for its name.
func ParseApplication(app string) (opus.Application, error) {
	switch strings.ToLower(app) {
	case "audio":
		return opus.AppAudio, nil
	case "restricted_lowdelay":
		return opus.AppRestrictedLowdelay, nil
	case "voip":
		return opus.AppVoIP, nil
	}
	return 0, errors.New("unknown opus application value")
}

// ParseMaxBandwidth returns the opus bandwidth for its name.
func ParseMaxBandwidth(maxBw string) (opus.Bandwidth, error) {
	switch strings.ToLower(maxBw) {
	case "narrowband":
		return opus.Narrowband, nil
	case "mediumband":
		return opus.Mediumband, nil
	case "wideband":
		return opus.Wideband, nil
	case "superwideband":
		return opus.SuperWideband, nil
	case "fullband":
		return opus.Fullband, nil
	}

	return 0, errors.New("unknown opus max bandwidth value")
}
