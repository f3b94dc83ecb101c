package modargs

import (
	"fmt"
	"strings"
)

type pair struct {
	key   string
	value string
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// split tokenizes a whitespace separated list of key=value pairs.
func split(s string) ([]pair, error) {
	var pairs []pair

	i := 0
	for {
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) {
			return pairs, nil
		}

		start := i
		for i < len(s) && s[i] != '=' && !isSpace(s[i]) {
			i++
		}
		key := s[start:i]
		if i >= len(s) || s[i] != '=' {
			return nil, &ArgError{Key: key, Msg: "missing '='"}
		}
		if key == "" {
			return nil, &ArgError{Msg: fmt.Sprintf("missing key at position %d", start)}
		}
		i++ // '='

		value, n, err := readValue(s[i:])
		if err != nil {
			return nil, &ArgError{Key: key, Msg: err.Error()}
		}
		i += n

		pairs = append(pairs, pair{key: key, value: value})
	}
}

// readValue reads a bare or quoted value and returns it together with
// the number of bytes consumed.
func readValue(s string) (string, int, error) {
	var b strings.Builder

	if len(s) > 0 && (s[0] == '"' || s[0] == '\'') {
		quote := s[0]
		for i := 1; i < len(s); i++ {
			switch s[i] {
			case '\\':
				i++
				if i >= len(s) {
					return "", 0, fmt.Errorf("dangling escape character")
				}
				b.WriteByte(s[i])
			case quote:
				if i+1 < len(s) && !isSpace(s[i+1]) {
					return "", 0, fmt.Errorf("missing whitespace after closing quote")
				}
				return b.String(), i + 1, nil
			default:
				b.WriteByte(s[i])
			}
		}
		return "", 0, fmt.Errorf("unterminated quote")
	}

	i := 0
	for ; i < len(s) && !isSpace(s[i]); i++ {
		if s[i] == '\\' {
			i++
			if i >= len(s) {
				return "", 0, fmt.Errorf("dangling escape character")
			}
		}
		b.WriteByte(s[i])
	}
	return b.String(), i, nil
}
