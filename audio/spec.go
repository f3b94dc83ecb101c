package audio

import (
	"fmt"
	"strings"
)

// SampleFormat describes how samples are represented.
type SampleFormat int

// Supported sample formats.
const (
	FormatInvalid SampleFormat = iota
	FormatU8
	FormatS16LE
	FormatS16BE
	FormatS32LE
	FormatS32BE
	FormatFloat32LE
	FormatFloat32BE
)

var formatNames = map[SampleFormat]string{
	FormatU8:        "u8",
	FormatS16LE:     "s16le",
	FormatS16BE:     "s16be",
	FormatS32LE:     "s32le",
	FormatS32BE:     "s32be",
	FormatFloat32LE: "float32le",
	FormatFloat32BE: "float32be",
}

func (f SampleFormat) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return "invalid"
}

// ParseSampleFormat returns the SampleFormat for its name. "s16", "s32"
// and "float32" are accepted as little endian aliases.
func ParseSampleFormat(name string) (SampleFormat, error) {
	n := strings.ToLower(name)
	switch n {
	case "s16", "s16ne":
		n = "s16le"
	case "s32", "s32ne":
		n = "s32le"
	case "float32", "float32ne":
		n = "float32le"
	}
	for f, fn := range formatNames {
		if fn == n {
			return f, nil
		}
	}
	return FormatInvalid, fmt.Errorf("unknown sample format '%s'", name)
}

// MaxChannels is the highest number of channels a SampleSpec may carry.
const MaxChannels = 32

// SampleSpec describes the format of a stream of samples.
type SampleSpec struct {
	Format   SampleFormat
	Rate     uint32
	Channels uint8
}

// Valid reports whether the SampleSpec can be used for a sink.
func (ss SampleSpec) Valid() bool {
	return ss.Format != FormatInvalid &&
		ss.Rate > 0 && ss.Rate <= 384000 &&
		ss.Channels > 0 && ss.Channels <= MaxChannels
}

func (ss SampleSpec) String() string {
	return fmt.Sprintf("%s %dch %dHz", ss.Format, ss.Channels, ss.Rate)
}

// ChannelPosition names the speaker position of a channel.
type ChannelPosition string

// Channel positions.
const (
	PositionMono        ChannelPosition = "mono"
	PositionFrontLeft   ChannelPosition = "front-left"
	PositionFrontRight  ChannelPosition = "front-right"
	PositionFrontCenter ChannelPosition = "front-center"
	PositionRearLeft    ChannelPosition = "rear-left"
	PositionRearRight   ChannelPosition = "rear-right"
	PositionLFE         ChannelPosition = "lfe"
	PositionSideLeft    ChannelPosition = "side-left"
	PositionSideRight   ChannelPosition = "side-right"
)

var knownPositions = map[ChannelPosition]bool{
	PositionMono: true, PositionFrontLeft: true, PositionFrontRight: true,
	PositionFrontCenter: true, PositionRearLeft: true, PositionRearRight: true,
	PositionLFE: true, PositionSideLeft: true, PositionSideRight: true,
}

// ChannelMap assigns a position to every channel of a stream.
type ChannelMap []ChannelPosition

// DefaultChannelMap returns the default map for the given number of
// channels. For channel counts without a well known layout, the map is
// nil.
func DefaultChannelMap(channels int) ChannelMap {
	switch channels {
	case 1:
		return ChannelMap{PositionMono}
	case 2:
		return ChannelMap{PositionFrontLeft, PositionFrontRight}
	case 3:
		return ChannelMap{PositionFrontLeft, PositionFrontRight, PositionFrontCenter}
	case 4:
		return ChannelMap{PositionFrontLeft, PositionFrontRight, PositionRearLeft, PositionRearRight}
	case 5:
		return ChannelMap{PositionFrontLeft, PositionFrontRight, PositionRearLeft, PositionRearRight, PositionFrontCenter}
	case 6:
		return ChannelMap{PositionFrontLeft, PositionFrontRight, PositionFrontCenter, PositionLFE, PositionRearLeft, PositionRearRight}
	case 8:
		return ChannelMap{PositionFrontLeft, PositionFrontRight, PositionFrontCenter, PositionLFE, PositionRearLeft, PositionRearRight, PositionSideLeft, PositionSideRight}
	}
	return nil
}

// ParseChannelMap parses a comma separated list of channel positions,
// e.g. "front-left,front-right". The names "mono" and "stereo" are
// accepted as shortcuts.
func ParseChannelMap(s string) (ChannelMap, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stereo":
		return DefaultChannelMap(2), nil
	case "":
		return nil, fmt.Errorf("empty channel map")
	}

	var cm ChannelMap
	for _, p := range strings.Split(s, ",") {
		pos := ChannelPosition(strings.ToLower(strings.TrimSpace(p)))
		if !knownPositions[pos] {
			return nil, fmt.Errorf("unknown channel position '%s'", p)
		}
		cm = append(cm, pos)
	}
	if len(cm) > MaxChannels {
		return nil, fmt.Errorf("too many channels (%d)", len(cm))
	}
	return cm, nil
}

// Compatible reports whether the map can be used with the SampleSpec.
func (cm ChannelMap) Compatible(ss SampleSpec) bool {
	return len(cm) == int(ss.Channels)
}

func (cm ChannelMap) String() string {
	s := make([]string, 0, len(cm))
	for _, p := range cm {
		s = append(s, string(p))
	}
	return strings.Join(s, ",")
}
