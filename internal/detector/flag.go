// Package detector maps raw detector hits onto the (detector name, layer,
// barrel/endcap) triple that the fitting code keys its hits on.
package detector

import (
	"fmt"
	"strings"
)

// BarrelEndcapFlag classifies the subdetector region a hit belongs to.
type BarrelEndcapFlag int

const (
	Unknown BarrelEndcapFlag = iota
	Barrel
	EndcapNorth
	EndcapSouth
)

var flagNames = map[BarrelEndcapFlag]string{
	Unknown:     "UNKNOWN",
	Barrel:      "BARREL",
	EndcapNorth: "ENDCAP_NORTH",
	EndcapSouth: "ENDCAP_SOUTH",
}

func (f BarrelEndcapFlag) String() string {
	if s, ok := flagNames[f]; ok {
		return s
	}
	return fmt.Sprintf("BarrelEndcapFlag(%d)", int(f))
}

// IsBarrel reports whether the flag is Barrel.
func (f BarrelEndcapFlag) IsBarrel() bool { return f == Barrel }

// IsEndcap reports whether the flag is either endcap.
func (f BarrelEndcapFlag) IsEndcap() bool { return f == EndcapNorth || f == EndcapSouth }

// ParseBarrelEndcapFlag accepts the names produced by String, case-insensitively.
func ParseBarrelEndcapFlag(s string) (BarrelEndcapFlag, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	for f, name := range flagNames {
		if name == up {
			return f, nil
		}
	}
	return Unknown, fmt.Errorf("unknown barrel/endcap flag %q", s)
}

// FlagFromBarrelField converts the value of the "barrel" identifier field:
// 0 is barrel, 1 the positive-z endcap and 2 the negative-z endcap.
func FlagFromBarrelField(v int64) BarrelEndcapFlag {
	switch v {
	case 0:
		return Barrel
	case 1:
		return EndcapNorth
	case 2:
		return EndcapSouth
	default:
		return Unknown
	}
}

// MarshalText implements encoding.TextMarshaler so flags appear by name in JSON.
func (f BarrelEndcapFlag) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *BarrelEndcapFlag) UnmarshalText(b []byte) error {
	v, err := ParseBarrelEndcapFlag(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}
