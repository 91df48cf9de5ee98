package table

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    float64
		wantOK  bool
		wantErr bool
	}{
		{"nil is null", nil, 0, false, false},
		{"float", 12.5, 12.5, true, false},
		{"NaN is null", math.NaN(), 0, false, false},
		{"int64", int64(7), 7, true, false},
		{"numeric text", " 3.25 ", 3.25, true, false},
		{"empty text is null", "", 0, false, false},
		{"NA text is null", "NA", 0, false, false},
		{"negative accepted", "-4", -4, true, false},
		{"bytes", []byte("9"), 9, true, false},
		{"garbage text", "fast", 0, false, true},
		{"bool unsupported", true, 0, false, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, err := Float(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantOK, ok)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestTime(t *testing.T) {
	want := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	for _, in := range []any{
		want,
		"2025-06-01T12:30:00Z",
		"2025-06-01 12:30:00",
		"2025-06-01 12:30:00.000000",
		float64(want.Unix()),
		int64(want.Unix()),
	} {
		got, ok, err := Time(in)
		require.NoError(t, err, "input %v", in)
		require.True(t, ok, "input %v", in)
		assert.True(t, got.Equal(want), "input %v: got %v", in, got)
	}

	_, ok, err := Time("")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = Time("yesterday")
	assert.Error(t, err)
}

func TestRequire_SchemaMismatch(t *testing.T) {
	tbl := New("execution_data", []string{"a", "b"})

	i, err := tbl.Require("b")
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	_, err = tbl.Require("wall_clock_time")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaMismatch))

	var sm *SchemaMismatchError
	require.True(t, errors.As(err, &sm))
	assert.Equal(t, "wall_clock_time", sm.Field)
}

func TestAppend_WrongWidth(t *testing.T) {
	tbl := New("t", []string{"a", "b"})
	assert.NoError(t, tbl.Append([]any{1.0, nil}))
	assert.Error(t, tbl.Append([]any{1.0}))
	assert.Equal(t, 1, tbl.Len())
}

func TestMalformedValueError(t *testing.T) {
	err := error(&MalformedValueError{Column: "ExecutionTime_Foo", Row: 3, RowID: "well=A01", Value: "x", Err: errors.New("not a number")})
	assert.True(t, errors.Is(err, ErrMalformedValue))
	assert.Contains(t, err.Error(), "ExecutionTime_Foo")
	assert.Contains(t, err.Error(), "row 3")
	assert.Contains(t, err.Error(), "well=A01")
}

func TestString(t *testing.T) {
	assert.Equal(t, "", String(nil))
	assert.Equal(t, "", String("NaN"))
	assert.Equal(t, "B1", String("B1"))
	assert.Equal(t, "2.5", String(2.5))
	assert.Equal(t, "4", String(int64(4)))
}

func TestSchemaMismatchError_MissingTable(t *testing.T) {
	err := &SchemaMismatchError{Table: "execution_data"}
	assert.Equal(t, `schema mismatch: no table "execution_data"`, err.Error())
	assert.True(t, errors.Is(err, ErrSchemaMismatch))
}

func TestNullMarkers(t *testing.T) {
	for _, m := range NullMarkers() {
		_, ok, err := Float(m)
		require.NoError(t, err)
		assert.False(t, ok, "marker %q", m)
	}
	ms := NullMarkers()
	ms[0] = "changed"
	assert.NotEqual(t, "changed", NullMarkers()[0])
}
