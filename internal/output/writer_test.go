package output

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	at := time.Date(2026, 8, 23, 14, 5, 0, 0, time.UTC)

	assert.Equal(t, "out/listings_20260823-14.csv", ResolvePath("out/listings.csv", at))
	assert.Equal(t, "results_20260823-14.tsv", ResolvePath("results.tsv", at))
	assert.Equal(t, filepath.Join("out", "output_20260823-14.csv"), ResolvePath("out", at))
}

func TestCSVWriterHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	w, err := NewCSVWriter(filepath.Join(dir, "listings.csv"), []string{"title", "price", "phone"}, ",", "utf-8")
	require.NoError(t, err)

	require.NoError(t, w.Write(map[string]string{
		"title": "BMW 520d",
		"price": "21 500 $",
		"phone": "(067) 123-45-67",
		"url":   "https://example.com/item/1",
	}))
	// Missing fields become empty cells.
	require.NoError(t, w.Write(map[string]string{
		"title": "Audi A6",
		"url":   "https://example.com/item/2",
	}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}), "expected UTF-8 BOM")

	rows, err := csv.NewReader(bytes.NewReader(data[3:])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"title", "price", "phone", "url"}, rows[0])
	assert.Equal(t, []string{"BMW 520d", "21 500 $", "(067) 123-45-67", "https://example.com/item/1"}, rows[1])
	assert.Equal(t, []string{"Audi A6", "", "", "https://example.com/item/2"}, rows[2])
}

func TestCSVWriterConfiguredURLColumnNotDuplicated(t *testing.T) {
	dir := t.TempDir()
	w, err := NewCSVWriter(filepath.Join(dir, "listings.csv"), []string{"url", "title"}, ",", "utf-8")
	require.NoError(t, err)
	require.NoError(t, w.Write(map[string]string{"title": "BMW", "url": "https://example.com/item/1"}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data[3:])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"url", "title"}, rows[0])
	assert.Equal(t, []string{"https://example.com/item/1", "BMW"}, rows[1])
}

func TestCSVWriterCustomDelimiter(t *testing.T) {
	dir := t.TempDir()
	w, err := NewCSVWriter(filepath.Join(dir, "listings.csv"), []string{"title"}, ";", "utf-8")
	require.NoError(t, err)
	require.NoError(t, w.Write(map[string]string{"title": "BMW", "url": "u"}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "title;url")
	assert.Contains(t, string(data), "BMW;u")
}

func TestCSVWriterNonUTF8Encoding(t *testing.T) {
	dir := t.TempDir()
	w, err := NewCSVWriter(filepath.Join(dir, "listings.csv"), []string{"title"}, ",", "windows-1251")
	require.NoError(t, err)
	require.NoError(t, w.Write(map[string]string{"title": "Продам авто", "url": "u"}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	assert.False(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))
	// windows-1251 encodes cyrillic one byte per rune.
	assert.NotContains(t, string(data), "Продам")
}

func TestCSVWriterUnknownEncoding(t *testing.T) {
	dir := t.TempDir()
	_, err := NewCSVWriter(filepath.Join(dir, "listings.csv"), []string{"title"}, ",", "klingon-8")
	assert.Error(t, err)
}

func TestCSVWriterCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	w, err := NewCSVWriter(filepath.Join(dir, "nested", "deep", "listings.csv"), []string{"title"}, ",", "utf-8")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = os.Stat(w.Path())
	assert.NoError(t, err)
}
