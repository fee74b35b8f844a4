package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileType(t *testing.T) {
	tests := map[string]string{
		"a/b.tsv":  FileTypeTSV,
		"a/b.TXT":  FileTypeTSV,
		"a/b.csv":  FileTypeCSV,
		"a/b.xlsx": FileTypeXLSX,
		"a/b":      FileTypeTSV,
	}
	for path, want := range tests {
		assert.Equal(t, want, FileType(path), path)
	}
	assert.True(t, IsTableFile("x.csv"))
	assert.False(t, IsTableFile("x.json"))
}

func TestReadTSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cells.tsv")
	writeFile(t, path, "cell_id\tCentroid X µm\tCentroid Y µm\n1\t1.5\t2\n2\t3\t 4 \n")

	tbl, err := ReadFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"cell_id", "Centroid X µm", "Centroid Y µm"}, tbl.Headers)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "4", tbl.Rows[1]["Centroid Y µm"])
}

func TestReadCSVRaggedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cells.csv")
	writeFile(t, path, "cell_id,Class,Extra\n1,Tumor\n2,Stroma,x\n")

	tbl, err := ReadFile(path, nil)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	_, ok := tbl.Rows[0]["Extra"]
	assert.False(t, ok)
	assert.Equal(t, "x", tbl.Rows[1]["Extra"])
}

func TestReadXLSXFirstSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cells.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"cell_id", "Class"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"7", "Tumor"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	tbl, err := ReadFile(path, nil)
	require.NoError(t, err)
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, "Tumor", tbl.Rows[0]["Class"])
}

func TestReadMissingAndEmpty(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadFile(filepath.Join(dir, "nope.tsv"), nil)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.tsv")
	writeFile(t, empty, "")
	_, err = ReadFile(empty, nil)
	assert.Error(t, err)
}
