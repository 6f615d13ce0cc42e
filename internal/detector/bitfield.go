package detector

import (
	"fmt"
	"strconv"
	"strings"
)

// Field is one named slice of a 64-bit cell identifier.
type Field struct {
	Name   string
	Offset uint
	Width  uint
	Signed bool
}

// BitFieldDecoder splits cell identifiers according to an encoding string
// such as "system:6,barrel:3,layer:4,module:12,sensor:1,side:32:-2,strip:12".
// Each entry is name:width or name:offset:width; a negative width marks a
// signed field.
type BitFieldDecoder struct {
	fields []Field
	index  map[string]int
}

// NewBitFieldDecoder parses an encoding descriptor.
func NewBitFieldDecoder(descriptor string) (*BitFieldDecoder, error) {
	d := &BitFieldDecoder{index: make(map[string]int)}
	var offset uint
	for _, entry := range strings.Split(descriptor, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		var widthStr string
		f := Field{Name: parts[0]}
		switch len(parts) {
		case 2:
			widthStr = parts[1]
			f.Offset = offset
		case 3:
			off, err := strconv.ParseUint(parts[1], 10, 8)
			if err != nil {
				return nil, fmt.Errorf("invalid offset in %q: %w", entry, err)
			}
			f.Offset = uint(off)
			widthStr = parts[2]
		default:
			return nil, fmt.Errorf("malformed field %q", entry)
		}
		w, err := strconv.Atoi(widthStr)
		if err != nil {
			return nil, fmt.Errorf("invalid width in %q: %w", entry, err)
		}
		if w < 0 {
			f.Signed = true
			w = -w
		}
		if w == 0 || f.Offset+uint(w) > 64 {
			return nil, fmt.Errorf("field %q does not fit in 64 bits", entry)
		}
		f.Width = uint(w)
		if _, dup := d.index[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field %q", f.Name)
		}
		d.index[f.Name] = len(d.fields)
		d.fields = append(d.fields, f)
		offset = f.Offset + f.Width
	}
	if len(d.fields) == 0 {
		return nil, fmt.Errorf("empty descriptor")
	}
	return d, nil
}

// Fields returns the parsed field layout.
func (d *BitFieldDecoder) Fields() []Field {
	out := make([]Field, len(d.fields))
	copy(out, d.fields)
	return out
}

// Value extracts the named field from id.
func (d *BitFieldDecoder) Value(id uint64, name string) (int64, error) {
	i, ok := d.index[name]
	if !ok {
		return 0, fmt.Errorf("no field %q in descriptor", name)
	}
	f := d.fields[i]
	var mask uint64 = 1<<f.Width - 1
	if f.Width == 64 {
		mask = ^uint64(0)
	}
	raw := (id >> f.Offset) & mask
	if f.Signed && raw&(1<<(f.Width-1)) != 0 {
		return int64(raw) - int64(1)<<f.Width, nil
	}
	return int64(raw), nil
}

// Encode packs the given field values into an identifier. Missing fields are zero.
func (d *BitFieldDecoder) Encode(values map[string]int64) (uint64, error) {
	var id uint64
	for name, v := range values {
		i, ok := d.index[name]
		if !ok {
			return 0, fmt.Errorf("no field %q in descriptor", name)
		}
		f := d.fields[i]
		var mask uint64 = 1<<f.Width - 1
		if f.Width == 64 {
			mask = ^uint64(0)
		}
		id |= (uint64(v) & mask) << f.Offset
	}
	return id, nil
}

// CellID combines the two 32-bit halves stored in LCIO hits.
func CellID(id0, id1 int32) uint64 {
	return uint64(uint32(id0)) | uint64(uint32(id1))<<32
}
