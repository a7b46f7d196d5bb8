package feature

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidDType(t *testing.T) {
	for _, d := range []string{"float64", "int64", "string", "bool"} {
		assert.True(t, ValidDType(d), d)
	}
	for _, d := range []string{"", "float", "int", "double", "FLOAT64"} {
		assert.False(t, ValidDType(d), d)
	}
}

func TestValueJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want string
	}{
		{"null", Null(), "null"},
		{"float", Float64(3.5), "3.5"},
		{"int", Int64(42), "42"},
		{"negative int", Int64(-7), "-7"},
		{"string", String("birb"), `"birb"`},
		{"bool", Bool(true), "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))

			var out Value
			require.NoError(t, json.Unmarshal(data, &out))
			assert.True(t, tt.in.Equal(out), "round trip changed value: %+v vs %+v", tt.in, out)
		})
	}
}

func TestValueUnmarshalNumberKinds(t *testing.T) {
	var v Value
	require.NoError(t, json.Unmarshal([]byte("30"), &v))
	assert.Equal(t, KindInt64, v.Kind)
	assert.Equal(t, int64(30), v.Int)

	require.NoError(t, json.Unmarshal([]byte("30.0"), &v))
	assert.Equal(t, KindFloat64, v.Kind)
	assert.Equal(t, 30.0, v.Float)

	require.NoError(t, json.Unmarshal([]byte("1e3"), &v))
	assert.Equal(t, KindFloat64, v.Kind)
	assert.Equal(t, 1000.0, v.Float)
}

func TestValueUnmarshalRejectsComposites(t *testing.T) {
	var v Value
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &v))
}

func TestMatchesDType(t *testing.T) {
	assert.True(t, Float64(1.5).MatchesDType(DTypeFloat64))
	assert.True(t, Int64(1).MatchesDType(DTypeInt64))
	// Whole JSON numbers decode as int64 but may belong to float64 features.
	assert.True(t, Int64(1).MatchesDType(DTypeFloat64))
	assert.False(t, Float64(1.5).MatchesDType(DTypeInt64))
	assert.True(t, String("x").MatchesDType(DTypeString))
	assert.True(t, Bool(false).MatchesDType(DTypeBool))
	assert.True(t, Null().MatchesDType(DTypeString))
	assert.False(t, Bool(true).MatchesDType(DTypeString))
}
