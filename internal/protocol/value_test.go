package protocol

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueRoundTripMixedList(t *testing.T) {
	original := []Value{
		Null(),
		Bool(true),
		Bool(false),
		Int(0),
		Int(-42),
		Int(math.MaxInt64),
		Float(1.5),
		Float(3),
		Float(-0.25),
		Float(1e21),
		String(""),
		String("hello \"world\"\n"),
		List(),
		List(Int(1), List(String("nested"), Null()), Float(2)),
	}

	data, err := json.Marshal(List(original...))
	require.NoError(t, err)

	var decoded Value
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.Equal(t, KindList, decoded.Kind())
	require.Equal(t, len(original), decoded.Len())
	for i := range original {
		assert.True(t, original[i].Equal(decoded.Items()[i]),
			"index %d: want %s got %s", i, original[i], decoded.Items()[i])
	}
}

func TestFloatKeepsKind(t *testing.T) {
	data, err := Float(3).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "3.0", string(data))

	var v Value
	require.NoError(t, v.UnmarshalJSON(data))
	assert.Equal(t, KindFloat, v.Kind())
	assert.Equal(t, 3.0, v.Float())
}

func TestIntKeepsKind(t *testing.T) {
	var v Value
	require.NoError(t, v.UnmarshalJSON([]byte("9007199254740993")))
	assert.Equal(t, KindInt, v.Kind())
	assert.Equal(t, int64(9007199254740993), v.Int())
}

func TestNonFiniteFloatEncodesNull(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		data, err := Float(f).MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, "null", string(data))
	}
}

func TestUnmarshalRejectsObjects(t *testing.T) {
	var v Value
	err := v.UnmarshalJSON([]byte(`{"a":1}`))
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestEqual(t *testing.T) {
	assert.True(t, Null().Equal(Value{}))
	assert.False(t, Int(1).Equal(Float(1)))
	assert.False(t, List(Int(1)).Equal(List(Int(1), Int(2))))
	assert.True(t, Float(math.NaN()).Equal(Float(math.NaN())))
}

func TestFromGo(t *testing.T) {
	v, err := FromGo([]any{nil, true, 7, 2.5, "s", []string{"a"}})
	require.NoError(t, err)
	want := List(Null(), Bool(true), Int(7), Float(2.5), String("s"), List(String("a")))
	assert.True(t, want.Equal(v), "got %s", v)

	_, err = FromGo(map[string]int{})
	assert.ErrorIs(t, err, ErrUnsupportedValue)

	_, err = FromGo([]any{struct{}{}})
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestGoConversion(t *testing.T) {
	v := List(Int(1), Float(0.5), String("x"), Null(), List(Bool(true)))
	assert.Equal(t, []any{int64(1), 0.5, "x", nil, []any{true}}, v.Go())
}

func TestMustValuesPanics(t *testing.T) {
	assert.Panics(t, func() { MustValues(make(chan int)) })
	assert.Len(t, MustValues("a", 1, nil), 3)
}

func TestValueString(t *testing.T) {
	assert.Equal(t, `["a", 1, 2.0, null]`, List(String("a"), Int(1), Float(2), Null()).String())
}
