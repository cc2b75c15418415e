package metadata

import (
	"bytes"
	"fmt"
	"unicode/utf16"
)

type heaps struct {
	strings     []byte
	blobs       []byte
	userStrings []byte
}

func (h heaps) str(index uint32) (string, error) {
	if int(index) >= len(h.strings) {
		if index == 0 {
			return "", nil
		}
		return "", fmt.Errorf("%w: string index %#x", ErrMalformedMetadata, index)
	}
	rest := h.strings[index:]
	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		end = len(rest)
	}
	return string(rest[:end]), nil
}

func (h heaps) blob(index uint32) ([]byte, error) {
	if int(index) >= len(h.blobs) {
		if index == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: blob index %#x", ErrMalformedMetadata, index)
	}
	length, n, err := decompressUint(h.blobs[index:])
	if err != nil {
		return nil, err
	}
	start := int(index) + n
	end := start + int(length)
	if end > len(h.blobs) {
		return nil, fmt.Errorf("%w: blob %#x overruns heap", ErrMalformedMetadata, index)
	}
	return h.blobs[start:end], nil
}

// userString decodes an #US entry: UTF-16LE characters followed by one flag byte.
func (h heaps) userString(index uint32) (string, error) {
	if int(index) >= len(h.userStrings) {
		return "", fmt.Errorf("%w: user string index %#x", ErrMalformedMetadata, index)
	}
	length, n, err := decompressUint(h.userStrings[index:])
	if err != nil {
		return "", err
	}
	start := int(index) + n
	end := start + int(length)
	if end > len(h.userStrings) {
		return "", fmt.Errorf("%w: user string %#x overruns heap", ErrMalformedMetadata, index)
	}
	raw := h.userStrings[start:end]
	if len(raw)%2 == 1 {
		raw = raw[:len(raw)-1]
	}
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
	return string(utf16.Decode(units)), nil
}

// decompressUint reads an ECMA-335 compressed unsigned integer and reports how
// many bytes it used.
func decompressUint(data []byte) (uint32, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("%w: compressed integer truncated", ErrMalformedMetadata)
	}
	b := data[0]
	switch {
	case b&0x80 == 0:
		return uint32(b), 1, nil
	case b&0xc0 == 0x80:
		if len(data) < 2 {
			return 0, 0, fmt.Errorf("%w: compressed integer truncated", ErrMalformedMetadata)
		}
		return uint32(b&0x3f)<<8 | uint32(data[1]), 2, nil
	case b&0xe0 == 0xc0:
		if len(data) < 4 {
			return 0, 0, fmt.Errorf("%w: compressed integer truncated", ErrMalformedMetadata)
		}
		return uint32(b&0x1f)<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3]), 4, nil
	default:
		return 0, 0, fmt.Errorf("%w: invalid compressed integer lead byte %#x", ErrMalformedMetadata, b)
	}
}
