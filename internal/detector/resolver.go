package detector

import (
	"errors"
	"fmt"
)

// ErrUnknownSystem is returned when a cell identifier names a subdetector
// that the resolver has no entry for.
var ErrUnknownSystem = errors.New("unknown subdetector system")

// Element is the identity of the sensitive element a hit was recorded on.
type Element struct {
	Detector string
	Layer    int
	Flag     BarrelEndcapFlag
}

// LayerIdentifier returns the key hits on the same layer share.
func (e Element) LayerIdentifier() string {
	return fmt.Sprintf("%s%d%s", e.Detector, e.Layer, e.Flag)
}

// Resolver maps a raw cell identifier to its detector element.
type Resolver interface {
	Resolve(cellID uint64) (Element, error)
}

// TableResolver resolves identifiers with a bit-field decoder and a table of
// subdetector names keyed by the "system" field.
type TableResolver struct {
	decoder *BitFieldDecoder
	systems map[int64]string
}

// NewTableResolver returns a resolver for the given descriptor and system table.
// The descriptor must define "system", "barrel" and "layer" fields.
func NewTableResolver(descriptor string, systems map[int64]string) (*TableResolver, error) {
	d, err := NewBitFieldDecoder(descriptor)
	if err != nil {
		return nil, fmt.Errorf("failed to parse descriptor: %w", err)
	}
	for _, name := range []string{"system", "barrel", "layer"} {
		if _, ok := d.index[name]; !ok {
			return nil, fmt.Errorf("descriptor lacks required field %q", name)
		}
	}
	table := make(map[int64]string, len(systems))
	for k, v := range systems {
		table[k] = v
	}
	return &TableResolver{decoder: d, systems: table}, nil
}

// Resolve implements Resolver.
func (r *TableResolver) Resolve(cellID uint64) (Element, error) {
	sys, _ := r.decoder.Value(cellID, "system")
	name, ok := r.systems[sys]
	if !ok {
		return Element{}, fmt.Errorf("%w: %d", ErrUnknownSystem, sys)
	}
	barrel, _ := r.decoder.Value(cellID, "barrel")
	layer, _ := r.decoder.Value(cellID, "layer")
	return Element{
		Detector: name,
		Layer:    int(layer),
		Flag:     FlagFromBarrelField(barrel),
	}, nil
}

// Decoder exposes the underlying bit-field decoder.
func (r *TableResolver) Decoder() *BitFieldDecoder { return r.decoder }
