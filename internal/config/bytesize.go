package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteSize is a size value that supports human-readable parsing in
// configuration files: "8MB", "1.5 GB", "500KB", or a raw byte count.
// Units are binary (1024-based) and case-insensitive.
//
// It implements encoding.TextUnmarshaler so Viper and YAML decode it
// directly.
type ByteSize int64

// Binary size multipliers.
const (
	kib int64 = 1024
	mib       = 1024 * kib
	gib       = 1024 * mib
	tib       = 1024 * gib
)

var sizeUnits = map[string]int64{
	"":    1,
	"b":   1,
	"k":   kib,
	"kb":  kib,
	"kib": kib,
	"m":   mib,
	"mb":  mib,
	"mib": mib,
	"g":   gib,
	"gb":  gib,
	"gib": gib,
	"t":   tib,
	"tb":  tib,
	"tib": tib,
}

// ParseByteSize parses a human-readable byte size string.
func ParseByteSize(s string) (ByteSize, error) {
	trimmed := strings.TrimSpace(strings.ToLower(s))
	if trimmed == "" {
		return 0, fmt.Errorf("parsing byte size: empty value")
	}

	split := len(trimmed)
	for split > 0 {
		c := trimmed[split-1]
		if c >= '0' && c <= '9' || c == '.' {
			break
		}
		split--
	}
	numPart := strings.TrimSpace(trimmed[:split])
	unitPart := strings.TrimSpace(trimmed[split:])

	mult, ok := sizeUnits[unitPart]
	if !ok {
		return 0, fmt.Errorf("parsing byte size %q: unknown unit %q", s, unitPart)
	}

	value, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing byte size %q: %w", s, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("parsing byte size %q: negative size", s)
	}

	return ByteSize(value * float64(mult)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for YAML/Viper support.
func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Int64 returns the size in bytes.
func (b ByteSize) Int64() int64 {
	return int64(b)
}

// String renders the size with the largest whole binary unit.
func (b ByteSize) String() string {
	v := int64(b)
	switch {
	case v >= tib && v%tib == 0:
		return fmt.Sprintf("%dTB", v/tib)
	case v >= gib && v%gib == 0:
		return fmt.Sprintf("%dGB", v/gib)
	case v >= mib && v%mib == 0:
		return fmt.Sprintf("%dMB", v/mib)
	case v >= kib && v%kib == 0:
		return fmt.Sprintf("%dKB", v/kib)
	default:
		return strconv.FormatInt(v, 10)
	}
}
