package radio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	assert.Equal(t, []string{"chill", "classical", "electronic", "jazz", "lofi", "pop", "rock"}, c.Genres())

	s, err := c.Lookup(" LoFi ")
	require.NoError(t, err)
	assert.Equal(t, "FluxFM Chillhop", s.Name)

	_, err = c.Lookup("polka")
	assert.ErrorIs(t, err, ErrUnknownGenre)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
stations:
  - genre: Synthwave
    url: https://example.com/synth.mp3
  - genre: news
    name: World News
    url: http://example.com/news
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"news", "synthwave"}, c.Genres())
	s, err := c.Lookup("synthwave")
	require.NoError(t, err)
	assert.Equal(t, "Synthwave Radio", s.Name)
}

func TestLoadRejectsBadCatalogs(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"dup.yaml":   "stations:\n  - {genre: a, url: http://x/1}\n  - {genre: A, url: http://x/2}\n",
		"url.yaml":   "stations:\n  - {genre: a, url: ftp://x/1}\n",
		"empty.yaml": "stations: []\n",
		"bad.yaml":   "stations: [",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := Load(path)
		assert.Error(t, err, name)
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	c, err := Load("")
	require.NoError(t, err)
	assert.Len(t, c.Genres(), 7)
}
