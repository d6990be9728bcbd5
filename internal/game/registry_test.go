package game_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/game"
)

func TestRegistry_Create(t *testing.T) {
	tests := map[string]struct {
		codes    []string
		existing int
		assert   func(t *testing.T, r *game.Registry, s *game.Session, err error)
	}{
		"first free code is used": {
			codes: []string{"123456"},
			assert: func(t *testing.T, r *game.Registry, s *game.Session, err error) {
				require.NoError(t, err)
				assert.Equal(t, "123456", s.Code())
			},
		},
		"taken codes are resampled": {
			codes:    []string{"111111", "111111", "111111", "222222"},
			existing: 1,
			assert: func(t *testing.T, r *game.Registry, s *game.Session, err error) {
				require.NoError(t, err)
				assert.Equal(t, "222222", s.Code())
				assert.Equal(t, 2, r.Len())
			},
		},
		"gives up when no free code is found": {
			codes:    []string{"111111", "111111", "111111", "111111"},
			existing: 1,
			assert: func(t *testing.T, r *game.Registry, s *game.Session, err error) {
				assert.True(t, errors.Is(err, errors.CodeResourceExhausted))
				assert.Nil(t, s)
				assert.Equal(t, 1, r.Len())
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			next := 0
			r := game.NewRegistry(
				game.WithMaxAttempts(3),
				game.WithCodeGenerator(func() string {
					c := tt.codes[next%len(tt.codes)]
					next++
					return c
				}),
			)

			for range tt.existing {
				_, err := r.Create("h0", "quiz", twoQuestions, time.Now())
				require.NoError(t, err)
			}

			s, err := r.Create("h1", "quiz", twoQuestions, time.Now())
			tt.assert(t, r, s, err)
		})
	}
}

func TestRegistry_DefaultCodes(t *testing.T) {
	r := game.NewRegistry()
	pattern := regexp.MustCompile(`^[1-9][0-9]{5}$`)

	seen := make(map[string]bool)
	for range 200 {
		s, err := r.Create("h", "quiz", twoQuestions, time.Now())
		require.NoError(t, err)
		assert.Regexp(t, pattern, s.Code())
		assert.False(t, seen[s.Code()], "codes of live sessions must be unique")
		seen[s.Code()] = true
	}
	assert.Equal(t, 200, r.Len())
}

func TestRegistry_GetRemove(t *testing.T) {
	r := game.NewRegistry(game.WithCodeGenerator(func() string { return "654321" }))

	s, err := r.Create("h", "quiz", twoQuestions, time.Now())
	require.NoError(t, err)

	got, err := r.Get("654321")
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, domain.PhaseLobby, got.Snapshot().Phase)

	removed, err := r.Remove("654321")
	require.NoError(t, err)
	assert.Same(t, s, removed)

	_, err = r.Get("654321")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
	_, err = r.Remove("654321")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
	assert.Empty(t, r.Sessions())
}
