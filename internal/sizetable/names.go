package sizetable

import (
	"errors"
	"fmt"
)

// NamesSection is the PE section holding the mangled-name table of format
// version 2 and later.
const NamesSection = ".names"

var ErrMalformedNames = errors.New("malformed name table")

// ReadMangledNames splits a name table made of UTF-8 strings, each prefixed
// with its byte length as a 7-bit encoded integer.
func ReadMangledNames(data []byte) ([]string, error) {
	var names []string
	for pos := 0; pos < len(data); {
		length, n, err := read7BitLength(data[pos:])
		if err != nil {
			return nil, fmt.Errorf("name %d: %w", len(names), err)
		}
		pos += n
		if length > len(data)-pos {
			return nil, fmt.Errorf("%w: name %d runs past end of table", ErrMalformedNames, len(names))
		}
		names = append(names, string(data[pos:pos+length]))
		pos += length
	}
	return names, nil
}

func read7BitLength(data []byte) (int, int, error) {
	value := 0
	for i := 0; i < 5; i++ {
		if i >= len(data) {
			return 0, 0, fmt.Errorf("%w: truncated length prefix", ErrMalformedNames)
		}
		b := data[i]
		value |= int(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: length prefix too long", ErrMalformedNames)
}

// AttachMangledNames fills MangledName on every record whose name index falls
// inside names. Records without an index are left untouched.
func (s *Stats) AttachMangledNames(names []string) {
	lookup := func(index int) string {
		if index < 0 || index >= len(names) {
			return ""
		}
		return names[index]
	}
	for _, stat := range s.Types {
		stat.MangledName = lookup(stat.NameIndex)
	}
	for _, stat := range s.Methods {
		stat.MangledName = lookup(stat.NameIndex)
	}
}
