package sources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balaustrada/ufcscraper/pkg/models"
)

func writeSources(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validSources = `
sources:
  - id: ufcstats
    name: UFC Stats
    role: primary
    extract:
      fighter_name: fighter.name
      opponent_name: opponent.name
      event_name: event.name
      event_date: event.date
    schema:
      properties:
        fighter:
          type: object
  - id: bestfightodds
    name: Best Fight Odds
    role: odds
    odds_kind: moneyline
    sportsbook: bestfightodds
    extract:
      fighter_name: fighter
      opponent_name: opponent
      event_name: event
      event_date: date
    schema:
      properties:
        fighter:
          type: string
`

func TestLoad(t *testing.T) {
	t.Run("loads a valid file", func(t *testing.T) {
		loaded, err := Load(writeSources(t, validSources))

		require.NoError(t, err)
		require.Len(t, loaded, 2)
		assert.Equal(t, models.SourceRolePrimary, loaded["ufcstats"].Role)
		assert.Equal(t, models.OddsKindMoneyline, loaded["bestfightodds"].OddsKind)

		primary := Primary(loaded)
		assert.Equal(t, "ufcstats", primary.ID)
	})

	t.Run("rejects missing primary", func(t *testing.T) {
		content := `
sources:
  - id: bestfightodds
    name: Best Fight Odds
    role: odds
    odds_kind: moneyline
    sportsbook: bestfightodds
    extract:
      fighter_name: fighter
      opponent_name: opponent
      event_name: event
      event_date: date
`
		_, err := Load(writeSources(t, content))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "exactly one primary source")
	})

	t.Run("rejects odds source without kind", func(t *testing.T) {
		content := `
sources:
  - id: ufcstats
    name: UFC Stats
    role: primary
    extract:
      fighter_name: fighter.name
      event_name: event.name
      event_date: event.date
  - id: mystery
    name: Mystery Book
    role: odds
    sportsbook: mystery
    extract:
      fighter_name: fighter
      opponent_name: opponent
      event_name: event
      event_date: date
`
		_, err := Load(writeSources(t, content))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "odds_kind")
	})

	t.Run("rejects duplicate ids", func(t *testing.T) {
		content := `
sources:
  - id: ufcstats
    name: UFC Stats
    role: primary
    extract:
      fighter_name: fighter.name
      event_name: event.name
      event_date: event.date
  - id: ufcstats
    name: UFC Stats Again
    role: primary
    extract:
      fighter_name: fighter.name
      event_name: event.name
      event_date: event.date
`
		_, err := Load(writeSources(t, content))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate source id")
	})

	t.Run("rejects missing extract path", func(t *testing.T) {
		content := `
sources:
  - id: ufcstats
    name: UFC Stats
    role: primary
    extract:
      fighter_name: fighter.name
      event_name: event.name
`
		_, err := Load(writeSources(t, content))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "event_date")
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}
