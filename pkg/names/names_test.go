package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balaustrada/ufcscraper/pkg/errors"
)

func TestNormalize_Basics(t *testing.T) {
	t.Run("lowercases and collapses whitespace", func(t *testing.T) {
		n, err := Normalize("  Jon   JONES ")
		require.NoError(t, err)
		assert.Equal(t, "jon jones", n.Key)
		assert.Equal(t, []string{"jon", "jones"}, n.Tokens)
		assert.Empty(t, n.Suffix)
	})

	t.Run("transliterates diacritics", func(t *testing.T) {
		n, err := Normalize("José Aldo")
		require.NoError(t, err)
		assert.Equal(t, "jose aldo", n.Key)
	})

	t.Run("punctuation becomes a separator", func(t *testing.T) {
		n, err := Normalize("Sean O'Malley")
		require.NoError(t, err)
		assert.Equal(t, "sean o malley", n.Key)

		n, err = Normalize("Kamaru Usman-Jones")
		require.NoError(t, err)
		assert.Equal(t, "kamaru usman jones", n.Key)
	})

	t.Run("keeps the raw input", func(t *testing.T) {
		n, err := Normalize("José Aldo")
		require.NoError(t, err)
		assert.Equal(t, "José Aldo", n.Raw)
	})
}

func TestNormalize_Nicknames(t *testing.T) {
	t.Run("drops double quoted nicknames", func(t *testing.T) {
		n, err := Normalize(`Quinton "Rampage" Jackson`)
		require.NoError(t, err)
		assert.Equal(t, "quinton jackson", n.Key)
	})

	t.Run("drops single quoted nicknames at word boundaries", func(t *testing.T) {
		n, err := Normalize("Anderson 'The Spider' Silva")
		require.NoError(t, err)
		assert.Equal(t, "anderson silva", n.Key)
	})

	t.Run("apostrophes inside names survive nickname removal", func(t *testing.T) {
		n, err := Normalize("Sean O'Malley")
		require.NoError(t, err)
		assert.Equal(t, "sean o malley", n.Key)
	})
}

func TestNormalize_Suffixes(t *testing.T) {
	t.Run("trailing generational suffix comes off the key", func(t *testing.T) {
		n, err := Normalize("Frank Mir Jr.")
		require.NoError(t, err)
		assert.Equal(t, "frank mir", n.Key)
		assert.Equal(t, "jr", n.Suffix)
	})

	t.Run("roman numeral suffixes", func(t *testing.T) {
		n, err := Normalize("Robert Smith III")
		require.NoError(t, err)
		assert.Equal(t, "robert smith", n.Key)
		assert.Equal(t, "iii", n.Suffix)
	})

	t.Run("suffix token mid-name stays", func(t *testing.T) {
		n, err := Normalize("Jr Dos Santos")
		require.NoError(t, err)
		assert.Equal(t, "jr dos santos", n.Key)
		assert.Empty(t, n.Suffix)
	})

	t.Run("single token name is never consumed as suffix", func(t *testing.T) {
		n, err := Normalize("Jr")
		require.NoError(t, err)
		assert.Equal(t, "jr", n.Key)
		assert.Empty(t, n.Suffix)
	})
}

func TestNormalize_Errors(t *testing.T) {
	for _, input := range []string{"", "   ", "''", `"..."`, "!!!"} {
		t.Run("rejects "+input, func(t *testing.T) {
			_, err := Normalize(input)
			require.Error(t, err)
			assert.True(t, errors.IsNormalizationError(err))
			assert.Equal(t, errors.ReasonBadInput, errors.ReasonOf(err))
		})
	}
}

func TestNormalize_Pure(t *testing.T) {
	t.Run("same input always yields the same result", func(t *testing.T) {
		a, err := Normalize("Chan Sung Jung")
		require.NoError(t, err)
		b, err := Normalize("Chan Sung Jung")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("normalizing a key is a fixed point", func(t *testing.T) {
		n, err := Normalize(`B.J. "The Prodigy" Penn`)
		require.NoError(t, err)
		again, err := Normalize(n.Key)
		require.NoError(t, err)
		assert.Equal(t, n.Key, again.Key)
	})
}

func TestKey(t *testing.T) {
	t.Run("event names normalize without suffix handling", func(t *testing.T) {
		assert.Equal(t, "ufc 300 pereira vs hill", Key("UFC 300: Pereira vs. Hill"))
	})

	t.Run("empty input is an empty key", func(t *testing.T) {
		assert.Equal(t, "", Key("  !! "))
	})
}
