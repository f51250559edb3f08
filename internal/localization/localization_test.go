package localization

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_CatalogsMatch(t *testing.T) {
	l, err := Default()
	require.NoError(t, err)

	require.Contains(t, l.translations, "es")
	require.Contains(t, l.translations, "en")
	for key := range l.translations["es"] {
		assert.Contains(t, l.translations["en"], key)
	}
	for key := range l.translations["en"] {
		assert.Contains(t, l.translations["es"], key)
	}
}

func TestGetString_Fallbacks(t *testing.T) {
	fsys := fstest.MapFS{
		"loc/es.json":   {Data: []byte(`{"hello":"hola","only_es":"solo"}`)},
		"loc/en.json":   {Data: []byte(`{"hello":"hello"}`)},
		"loc/notes.txt": {Data: []byte(`ignored`)},
	}
	l, err := NewLocalizer(fsys, "loc", "es")
	require.NoError(t, err)

	assert.Equal(t, "hello", l.GetString("en", "hello"))
	assert.Equal(t, "solo", l.GetString("en", "only_es"))
	assert.Equal(t, "hola", l.GetString("fr", "hello"))
	assert.Equal(t, "missing", l.GetString("en", "missing"))
}

func TestNewLocalizer_Errors(t *testing.T) {
	_, err := NewLocalizer(fstest.MapFS{}, "loc", "es")
	assert.Error(t, err)

	_, err = NewLocalizer(fstest.MapFS{"loc/es.json": {Data: []byte(`{`)}}, "loc", "es")
	assert.Error(t, err)

	_, err = NewLocalizer(fstest.MapFS{"loc/en.json": {Data: []byte(`{}`)}}, "loc", "es")
	assert.Error(t, err)
}

func TestLanguage(t *testing.T) {
	l, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "en", l.Language("en-US,en;q=0.9"))
	assert.Equal(t, "es", l.Language("fr-FR, es;q=0.8"))
	assert.Equal(t, "es", l.Language("de"))
	assert.Equal(t, "es", l.Language(""))
}
