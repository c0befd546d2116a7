package main

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustTable(t *testing.T, content string) *Table {
	t.Helper()
	tbl, err := readTable(strings.NewReader(content), "test")
	require.NoError(t, err)
	return tbl
}

func TestParseFilterValue(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"North", []string{"North"}},
		{" 3 ", []string{"3"}},
		{"[a, b]", []string{"a", "b"}},
		{"['Leisure', 'Business']", []string{"Leisure", "Business"}},
		{`["x"]`, []string{"x"}},
		{"[]", nil},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, parseFilterValue(tt.raw), tt.raw)
	}
}

func TestFiltersFor(t *testing.T) {
	subgroups := mustTable(t, "REGION,PURPOSE,NOTE,SPEND\nNorth,\"[Leisure, Business]\",x,100\n")

	f, err := FiltersFor(0, []string{"REGION", "PURPOSE", "SPEND"}, subgroups, []int{3})
	require.NoError(t, err)
	require.Equal(t, Filter{
		{Column: "REGION", Values: []string{"North"}},
		{Column: "PURPOSE", Values: []string{"Leisure", "Business"}},
	}, f)
	require.Equal(t, "REGION=North & PURPOSE in [Leisure,Business]", f.String())

	_, err = FiltersFor(1, []string{"REGION"}, subgroups, nil)
	require.Error(t, err)
}

func TestResolve(t *testing.T) {
	data := mustTable(t, "REGION,SIZE,SPEND\nNorth,2,10\nSouth,3.0,20\nNorth,3,30\n")

	t.Run("Matched", func(t *testing.T) {
		r := Resolve(data, Filter{{Column: "REGION", Values: []string{"North"}}})
		require.Equal(t, Matched, r.Status)
		require.Equal(t, []int{0, 2}, r.Rows)
	})

	t.Run("NumericEquality", func(t *testing.T) {
		r := Resolve(data, Filter{{Column: "SIZE", Values: []string{"3"}}})
		require.Equal(t, Matched, r.Status)
		require.Equal(t, []int{1, 2}, r.Rows)
	})

	t.Run("SetMembership", func(t *testing.T) {
		r := Resolve(data, Filter{
			{Column: "REGION", Values: []string{"North", "South"}},
			{Column: "SIZE", Values: []string{"3"}},
		})
		require.Equal(t, []int{1, 2}, r.Rows)
	})

	t.Run("NoRows", func(t *testing.T) {
		r := Resolve(data, Filter{{Column: "REGION", Values: []string{"East"}}})
		require.Equal(t, NoRows, r.Status)
		require.Empty(t, r.Rows)
		require.NoError(t, r.Err)
	})

	t.Run("Malformed", func(t *testing.T) {
		for _, f := range []Filter{
			nil,
			{{Column: "COUNTRY", Values: []string{"X"}}},
			{{Column: "REGION"}},
		} {
			r := Resolve(data, f)
			require.Equal(t, Malformed, r.Status)
			require.Error(t, r.Err)
			require.Equal(t, "malformed filter", r.Status.String())
		}
	})
}

func TestSumAt(t *testing.T) {
	values := []float64{1, 2, math.NaN(), 4}

	s, err := SumAt(values, []int{0, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 5.0, s)

	s, err = SumAt(values, nil)
	require.NoError(t, err)
	require.Zero(t, s)

	_, err = SumAt(values, []int{4})
	require.Error(t, err)
	_, err = SumAt(values, []int{-1})
	require.Error(t, err)

	require.Equal(t, []float64{4, 1}, Gather(values, []int{3, 0}))
}
