package detector

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDescriptor = "system:6,barrel:3,layer:4,module:12,sensor:1,side:32:-2,strip:12"

func TestBarrelEndcapFlag(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "BARREL", Barrel.String())
	assert.Equal(t, "BarrelEndcapFlag(9)", BarrelEndcapFlag(9).String())
	assert.True(t, EndcapSouth.IsEndcap())
	assert.False(t, Barrel.IsEndcap())
	assert.True(t, Barrel.IsBarrel())

	f, err := ParseBarrelEndcapFlag("endcap_north")
	require.NoError(t, err)
	assert.Equal(t, EndcapNorth, f)
	_, err = ParseBarrelEndcapFlag("sideways")
	assert.Error(t, err)

	assert.Equal(t, Barrel, FlagFromBarrelField(0))
	assert.Equal(t, EndcapNorth, FlagFromBarrelField(1))
	assert.Equal(t, EndcapSouth, FlagFromBarrelField(2))
	assert.Equal(t, Unknown, FlagFromBarrelField(7))
}

func TestBarrelEndcapFlagJSON(t *testing.T) {
	t.Parallel()
	type wrapper struct {
		Flag BarrelEndcapFlag `json:"flag"`
	}
	data, err := json.Marshal(wrapper{Flag: EndcapSouth})
	require.NoError(t, err)
	assert.JSONEq(t, `{"flag":"ENDCAP_SOUTH"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"flag":"BARREL"}`), &w))
	assert.Equal(t, Barrel, w.Flag)
}

func TestBitFieldDecoder(t *testing.T) {
	t.Parallel()
	d, err := NewBitFieldDecoder(testDescriptor)
	require.NoError(t, err)
	require.Len(t, d.Fields(), 7)
	assert.Equal(t, uint(32), d.Fields()[5].Offset)
	assert.True(t, d.Fields()[5].Signed)

	id, err := d.Encode(map[string]int64{"system": 5, "barrel": 2, "layer": 3, "side": -1, "strip": 77})
	require.NoError(t, err)

	tests := map[string]int64{"system": 5, "barrel": 2, "layer": 3, "module": 0, "side": -1, "strip": 77}
	for name, want := range tests {
		got, err := d.Value(id, name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err = d.Value(id, "nope")
	assert.Error(t, err)
	_, err = d.Encode(map[string]int64{"nope": 1})
	assert.Error(t, err)
}

func TestBitFieldDecoderRejectsBadDescriptors(t *testing.T) {
	t.Parallel()
	for _, desc := range []string{"", "system", "system:x", "a:60,b:8", "a:2,a:3", "a:x:2"} {
		_, err := NewBitFieldDecoder(desc)
		assert.Error(t, err, desc)
	}
}

func TestCellID(t *testing.T) {
	t.Parallel()
	assert.Equal(t, uint64(0xFFFFFFFF00000001), CellID(1, -1))
}

func TestTableResolver(t *testing.T) {
	t.Parallel()
	r, err := NewTableResolver(testDescriptor, map[int64]string{1: "VtxBarrel", 2: "TrackerEndcap"})
	require.NoError(t, err)

	id, err := r.Decoder().Encode(map[string]int64{"system": 2, "barrel": 1, "layer": 4})
	require.NoError(t, err)
	el, err := r.Resolve(id)
	require.NoError(t, err)
	assert.Equal(t, Element{Detector: "TrackerEndcap", Layer: 4, Flag: EndcapNorth}, el)
	assert.Equal(t, "TrackerEndcap4ENDCAP_NORTH", el.LayerIdentifier())

	id, _ = r.Decoder().Encode(map[string]int64{"system": 9})
	_, err = r.Resolve(id)
	assert.True(t, errors.Is(err, ErrUnknownSystem))

	_, err = NewTableResolver("system:6,layer:4", nil)
	assert.Error(t, err)
}
