package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForUnit(t *testing.T) {
	t.Run("key order does not matter", func(t *testing.T) {
		a, err := ForUnit(json.RawMessage(`{"fighter": "Jon Jones", "event": "UFC 309"}`), nil)
		require.NoError(t, err)

		b, err := ForUnit(json.RawMessage(`{"event": "UFC 309", "fighter": "Jon Jones"}`), nil)
		require.NoError(t, err)

		assert.Equal(t, a, b)
	})

	t.Run("different content differs", func(t *testing.T) {
		a, err := ForUnit(json.RawMessage(`{"fighter": "Jon Jones"}`), nil)
		require.NoError(t, err)

		b, err := ForUnit(json.RawMessage(`{"fighter": "Stipe Miocic"}`), nil)
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
	})

	t.Run("excluded fields do not affect the fingerprint", func(t *testing.T) {
		exclusions := map[string]bool{"scraped_at": true}

		a, err := ForUnit(json.RawMessage(`{"fighter": "Jon Jones", "scraped_at": "2024-11-16T10:00:00Z"}`), exclusions)
		require.NoError(t, err)

		b, err := ForUnit(json.RawMessage(`{"fighter": "Jon Jones", "scraped_at": "2024-11-17T08:30:00Z"}`), exclusions)
		require.NoError(t, err)

		assert.Equal(t, a, b)
	})

	t.Run("excluding a parent excludes nested fields", func(t *testing.T) {
		exclusions := map[string]bool{"meta": true}

		a, err := ForUnit(json.RawMessage(`{"fighter": "Jon Jones", "meta": {"revision": 1}}`), exclusions)
		require.NoError(t, err)

		b, err := ForUnit(json.RawMessage(`{"fighter": "Jon Jones", "meta": {"revision": 2}}`), exclusions)
		require.NoError(t, err)

		assert.Equal(t, a, b)
	})

	t.Run("array order matters", func(t *testing.T) {
		a, err := ForUnit(json.RawMessage(`{"books": ["draftkings", "fanduel"]}`), nil)
		require.NoError(t, err)

		b, err := ForUnit(json.RawMessage(`{"books": ["fanduel", "draftkings"]}`), nil)
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
	})

	t.Run("invalid payload errors", func(t *testing.T) {
		_, err := ForUnit(json.RawMessage(`[]`), nil)
		require.Error(t, err)
	})
}
