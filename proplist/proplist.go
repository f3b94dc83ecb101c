// Package proplist implements the string property lists attached to
// sinks and modules.
package proplist

import (
	"fmt"
	"sort"
	"strings"
)

// Well known property keys.
const (
	DeviceClass       = "device.class"
	DeviceDescription = "device.description"
	DeviceString      = "device.string"
	DeviceAPI         = "device.api"
	MediaName         = "media.name"
)

// UpdateMode defines how Update merges two lists.
type UpdateMode int

const (
	// UpdateSet drops all existing properties and copies the other list.
	UpdateSet UpdateMode = iota
	// UpdateMerge only adds properties which are not set yet.
	UpdateMerge
	// UpdateReplace adds all properties, overwriting existing ones.
	UpdateReplace
)

// Proplist maps property keys to values.
type Proplist map[string]string

// New returns an empty Proplist.
func New() Proplist {
	return Proplist{}
}

// ValidKey reports whether key can be used as a property key.
func ValidKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if r <= ' ' || r > '~' || r == '=' {
			return false
		}
	}
	return true
}

// Sets sets a property.
func (p Proplist) Sets(key, value string) error {
	if !ValidKey(key) {
		return fmt.Errorf("proplist: invalid key '%s'", key)
	}
	p[key] = value
	return nil
}

// Gets returns the value of a property or the empty string.
func (p Proplist) Gets(key string) string {
	return p[key]
}

// Contains reports whether key is set.
func (p Proplist) Contains(key string) bool {
	_, ok := p[key]
	return ok
}

// Update merges other into p according to mode.
func (p Proplist) Update(mode UpdateMode, other Proplist) {
	if mode == UpdateSet {
		for k := range p {
			delete(p, k)
		}
	}
	for k, v := range other {
		if mode == UpdateMerge && p.Contains(k) {
			continue
		}
		p[k] = v
	}
}

// Copy returns an independent copy of p.
func (p Proplist) Copy() Proplist {
	c := make(Proplist, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// Keys returns the keys of the list in sorted order.
func (p Proplist) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String formats the list as key="value" pairs.
func (p Proplist) String() string {
	parts := make([]string, 0, len(p))
	for _, k := range p.Keys() {
		v := strings.ReplaceAll(p[k], `\`, `\\`)
		v = strings.ReplaceAll(v, `"`, `\"`)
		parts = append(parts, fmt.Sprintf(`%s="%s"`, k, v))
	}
	return strings.Join(parts, " ")
}
