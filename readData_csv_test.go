package main

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadTable(t *testing.T) {
	tbl := mustTable(t, "ID,SPEND,NOTE\n1,10.5,a\n2,,b\n3,NA,c\n")
	require.Equal(t, 3, tbl.Len())

	col, ok := tbl.Column("SPEND")
	require.True(t, ok)
	require.Equal(t, 1, col)
	_, ok = tbl.Column("MISSING")
	require.False(t, ok)

	values, err := tbl.Floats(col)
	require.NoError(t, err)
	require.Equal(t, 10.5, values[0])
	require.True(t, math.IsNaN(values[1]))
	require.True(t, math.IsNaN(values[2]))

	_, err = tbl.Floats(2)
	require.Error(t, err)

	v, err := tbl.Float(0, 0)
	require.NoError(t, err)
	require.Equal(t, 1.0, v)
	_, err = tbl.Float(5, 0)
	require.Error(t, err)
}

func TestReadTable_Errors(t *testing.T) {
	_, err := readTable(strings.NewReader(""), "empty")
	require.Error(t, err)

	_, err = readTable(strings.NewReader("A,B\n1\n"), "short")
	require.ErrorContains(t, err, "line 2")

	_, err = ReadTableCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}

func TestTable_SetFloatsAndWrite(t *testing.T) {
	tbl := mustTable(t, "ID,SPEND,NOTE\n1,10,a\n2,20,b\n3,30,c\n")
	tbl.SetFloats(1, []int{0, 2}, []float64{12.5, math.NaN()})
	require.Equal(t, []string{"1", "12.5", "a"}, tbl.Rows[0])
	require.Equal(t, []string{"2", "20", "b"}, tbl.Rows[1])
	require.Equal(t, []string{"3", "", "c"}, tbl.Rows[2])

	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, tbl.WriteCSV(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "ID,SPEND,NOTE\n1,12.5,a\n2,20,b\n3,,c\n", string(content))

	back, err := ReadTableCSV(path)
	require.NoError(t, err)
	require.Equal(t, tbl.Rows, back.Rows)
}
