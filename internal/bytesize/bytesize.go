// Package bytesize parses and formats human-readable byte quantities
// ("512Mi", "2GB", "1024") used in configuration files.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteSize is a byte count that unmarshals from strings like "1Gi",
// "500MB", or bare numbers. Binary suffixes (Ki, Mi, Gi, Ti) multiply by
// 1024; decimal suffixes (K, M, G, T, optionally with a trailing B) by
// 1000.
type ByteSize uint64

const (
	B ByteSize = 1

	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

func unitFor(suffix string) (ByteSize, bool) {
	switch strings.ToLower(suffix) {
	case "", "b":
		return B, true
	case "k", "kb":
		return KB, true
	case "m", "mb":
		return MB, true
	case "g", "gb":
		return GB, true
	case "t", "tb":
		return TB, true
	case "ki", "kib":
		return KiB, true
	case "mi", "mib":
		return MiB, true
	case "gi", "gib":
		return GiB, true
	case "ti", "tib":
		return TiB, true
	default:
		return 0, false
	}
}

// ParseByteSize parses s into a ByteSize. The numeric part may be a
// decimal fraction ("1.5Gi"); the suffix is case-insensitive.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size string")
	}

	split := len(s)
	for i, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			split = i
			break
		}
	}
	numStr := s[:split]
	suffix := strings.TrimSpace(s[split:])

	if numStr == "" {
		return 0, fmt.Errorf("invalid byte size format: %q", s)
	}
	unit, ok := unitFor(suffix)
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit: %q", suffix)
	}

	if strings.Contains(numStr, ".") {
		f, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number in byte size: %q", numStr)
		}
		return ByteSize(f * float64(unit)), nil
	}

	n, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number in byte size: %q", numStr)
	}
	return ByteSize(n) * unit, nil
}

// UnmarshalText implements encoding.TextUnmarshaler so ByteSize fields
// decode directly from YAML/mapstructure strings.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// String formats the size with the largest binary unit that fits.
func (b ByteSize) String() string {
	switch {
	case b >= TiB:
		return fmt.Sprintf("%.2fTiB", float64(b)/float64(TiB))
	case b >= GiB:
		return fmt.Sprintf("%.2fGiB", float64(b)/float64(GiB))
	case b >= MiB:
		return fmt.Sprintf("%.2fMiB", float64(b)/float64(MiB))
	case b >= KiB:
		return fmt.Sprintf("%.2fKiB", float64(b)/float64(KiB))
	default:
		return fmt.Sprintf("%dB", uint64(b))
	}
}

// Uint64 returns the size as a uint64.
func (b ByteSize) Uint64() uint64 { return uint64(b) }

// Int64 returns the size as an int64. Overflows for sizes past 8EiB.
func (b ByteSize) Int64() int64 { return int64(b) }
