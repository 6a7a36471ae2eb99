package utils

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindInSlice(t *testing.T) {
	{
		i, found := FindInSlice([]string{"Times", "Arial"}, "Arial")
		assert.Equal(t, 1, i)
		assert.Equal(t, true, found)
	}
	{
		i, found := FindInSlice([]string{"Times", "Arial"}, "Courier")
		assert.Equal(t, -1, i)
		assert.Equal(t, false, found)
	}
}

func TestFirstField(t *testing.T) {
	assert.Equal(t, "1.2.3", FirstField("1.2.3 1.2.4 1.2.5"))
	assert.Equal(t, "1.2.3", FirstField("  1.2.3"))
	assert.Equal(t, "", FirstField(""))
}

func TestWalkFiles(t *testing.T) {
	dir, err := ioutil.TempDir("", "walk")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "series", ".cache"), 0755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "a.dcm"), []byte("x"), 0644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "series", "b.dcm"), []byte("x"), 0644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "series", ".hidden"), []byte("x"), 0644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "series", ".cache", "c.dcm"), []byte("x"), 0644))

	var seen []string
	err = WalkFiles(dir, func(path string, info os.FileInfo) error {
		rel, _ := filepath.Rel(dir, path)
		seen = append(seen, rel)
		return nil
	})
	require.NoError(t, err)
	sort.Strings(seen)
	assert.Equal(t, []string{"a.dcm", filepath.Join("series", "b.dcm")}, seen)
	assert.True(t, IsDir(dir))
	assert.False(t, IsDir(filepath.Join(dir, "a.dcm")))
}
