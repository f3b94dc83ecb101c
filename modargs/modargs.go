// Package modargs parses module argument strings of the form
//
//	key1=value key2="value with spaces" key3='single quoted'
//
// Backslash escapes the next character both inside and outside of quotes.
package modargs

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dh1tw/tunnelsink/audio"
	"github.com/dh1tw/tunnelsink/proplist"
)

// ArgError is returned for malformed or invalid module arguments.
type ArgError struct {
	Key string
	Msg string
}

func (e *ArgError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("argument error: %s", e.Msg)
	}
	return fmt.Sprintf("argument error (%s): %s", e.Key, e.Msg)
}

// ModArgs holds the parsed arguments of a module.
type ModArgs struct {
	values map[string]string
}

// New parses args. Keys which are not contained in valid are rejected.
// A nil valid list accepts any key.
func New(args string, valid []string) (*ModArgs, error) {

	pairs, err := split(args)
	if err != nil {
		return nil, err
	}

	m := &ModArgs{
		values: make(map[string]string, len(pairs)),
	}

	for _, p := range pairs {
		if valid != nil && !contains(valid, p.key) {
			return nil, &ArgError{Key: p.key, Msg: "unknown argument"}
		}
		if _, ok := m.values[p.key]; ok {
			return nil, &ArgError{Key: p.key, Msg: "duplicate argument"}
		}
		m.values[p.key] = p.value
	}

	return m, nil
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

// Has reports whether key was given.
func (m *ModArgs) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

// Value returns the value of key or def if key was not given.
func (m *ModArgs) Value(key, def string) string {
	if v, ok := m.values[key]; ok {
		return v
	}
	return def
}

// Uint32 returns the value of key as an unsigned integer.
func (m *ModArgs) Uint32(key string, def uint32) (uint32, error) {
	v, ok := m.values[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
	if err != nil {
		return def, &ArgError{Key: key, Msg: fmt.Sprintf("'%s' is not an unsigned integer", v)}
	}
	return uint32(n), nil
}

// Bool returns the value of key as a boolean. 1/0, yes/no, y/n,
// true/false and on/off are accepted.
func (m *ModArgs) Bool(key string, def bool) (bool, error) {
	v, ok := m.values[key]
	if !ok {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "yes", "y", "true", "on":
		return true, nil
	case "0", "no", "n", "false", "off":
		return false, nil
	}
	return def, &ArgError{Key: key, Msg: fmt.Sprintf("'%s' is not a boolean", v)}
}

// Duration returns the value of key, given in milliseconds.
func (m *ModArgs) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := m.values[key]
	if !ok {
		return def, nil
	}
	ms, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
	if err != nil {
		return def, &ArgError{Key: key, Msg: fmt.Sprintf("'%s' is not a duration in msec", v)}
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// SampleSpecAndChannelMap updates ss and cm with the arguments format,
// rate, channels and channel_map. If only the number of channels is
// given, cm is replaced by the default map for that number; if only a
// channel map is given, the number of channels follows the map.
func (m *ModArgs) SampleSpecAndChannelMap(ss *audio.SampleSpec, cm *audio.ChannelMap) error {

	spec := *ss
	cmap := *cm

	if v, ok := m.values["format"]; ok {
		f, err := audio.ParseSampleFormat(v)
		if err != nil {
			return &ArgError{Key: "format", Msg: err.Error()}
		}
		spec.Format = f
	}

	rate, err := m.Uint32("rate", spec.Rate)
	if err != nil {
		return err
	}
	spec.Rate = rate

	if m.Has("channels") {
		ch, err := m.Uint32("channels", uint32(spec.Channels))
		if err != nil {
			return err
		}
		if ch == 0 || ch > audio.MaxChannels {
			return &ArgError{Key: "channels", Msg: fmt.Sprintf("%d channels not supported", ch)}
		}
		spec.Channels = uint8(ch)
		if int(ch) != len(cmap) {
			cmap = audio.DefaultChannelMap(int(ch))
		}
	}

	if v, ok := m.values["channel_map"]; ok {
		parsed, err := audio.ParseChannelMap(v)
		if err != nil {
			return &ArgError{Key: "channel_map", Msg: err.Error()}
		}
		cmap = parsed
		if !m.Has("channels") {
			spec.Channels = uint8(len(cmap))
		}
	}

	if !spec.Valid() {
		return &ArgError{Key: "format", Msg: fmt.Sprintf("invalid sample specification %s", spec)}
	}

	if cmap == nil {
		return &ArgError{Key: "channel_map", Msg: fmt.Sprintf("no default channel map for %d channels", spec.Channels)}
	}

	if !cmap.Compatible(spec) {
		return &ArgError{Key: "channel_map", Msg: fmt.Sprintf("channel map '%s' does not match %d channels", cmap, spec.Channels)}
	}

	*ss = spec
	*cm = cmap

	return nil
}

// Proplist parses the value of key as a property list and merges it into
// pl with the given mode. pl is left untouched on error.
func (m *ModArgs) Proplist(key string, pl proplist.Proplist, mode proplist.UpdateMode) error {
	v, ok := m.values[key]
	if !ok {
		return nil
	}

	pairs, err := split(v)
	if err != nil {
		return &ArgError{Key: key, Msg: err.Error()}
	}

	n := proplist.New()
	for _, p := range pairs {
		if err := n.Sets(p.key, p.value); err != nil {
			return &ArgError{Key: key, Msg: err.Error()}
		}
	}

	pl.Update(mode, n)
	return nil
}
