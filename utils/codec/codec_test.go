package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name   string           `codec:"name"`
	Count  int64            `codec:"count"`
	Values []float64        `codec:"values"`
	Keys   map[string]int64 `codec:"keys"`
}

func TestEncodeDecode(t *testing.T) {
	in := sample{Name: "w", Count: 3, Values: []float64{1.5, 2}, Keys: map[string]int64{"a": 1}}
	data, err := Encode(in)
	require.NoError(t, err)

	var out sample
	require.NoError(t, Decode(data, &out))
	assert.Equal(t, in, out)
}

func TestDecode_Invalid(t *testing.T) {
	var out sample
	assert.Error(t, Decode(nil, &out))
	assert.Error(t, Decode([]byte{0xc1}, &out))
}
