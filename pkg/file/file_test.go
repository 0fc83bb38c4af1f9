package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileService_JsonRoundTrip(t *testing.T) {
	fs := NewFileService()
	path := filepath.Join(t.TempDir(), "data.json")

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, fs.WriteJsonFile(path, payload{Name: "web-01", Count: 3}))

	var got payload
	require.NoError(t, fs.ReadJsonFile(path, &got))
	assert.Equal(t, payload{Name: "web-01", Count: 3}, got)
}

func TestFileService_YamlRead(t *testing.T) {
	fs := NewFileService()
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, os.WriteFile(path, []byte("name: web-01\ncount: 3\n"), 0o600))

	var got struct {
		Name  string `yaml:"name"`
		Count int    `yaml:"count"`
	}
	require.NoError(t, fs.ReadYamlFile(path, &got))
	assert.Equal(t, "web-01", got.Name)
	assert.Equal(t, 3, got.Count)
}

func TestFileService_IsFileExists(t *testing.T) {
	fs := NewFileService()
	path := filepath.Join(t.TempDir(), "exists.txt")

	exists, err := fs.IsFileExists(path)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))

	exists, err = fs.IsFileExists(path)
	require.NoError(t, err)
	assert.True(t, exists)
}
