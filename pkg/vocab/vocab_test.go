package vocab

import (
	"context"
	"testing"

	"github.com/japaniel/sentencebase/pkg/db"
	"github.com/japaniel/sentencebase/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestUpsertOccurrenceCreatesThenIncrements(t *testing.T) {
	conn := dbtest.Open(t)
	user := dbtest.User(t, conn, "u1")
	ctx := context.Background()

	w1, err := UpsertOccurrence(ctx, conn, user, "猫", "ネコ")
	require.NoError(t, err)
	assert.Equal(t, 1, w1.Frequency)
	assert.False(t, w1.IsMined)
	assert.Equal(t, user, w1.UserID)

	w2, err := UpsertOccurrence(ctx, conn, user, "猫", "ネコ")
	require.NoError(t, err)
	assert.Equal(t, w1.ID, w2.ID)
	assert.Equal(t, 2, w2.Frequency)

	// same form, different reading is a different word
	w3, err := UpsertOccurrence(ctx, conn, user, "猫", "ビョウ")
	require.NoError(t, err)
	assert.NotEqual(t, w1.ID, w3.ID)
	assert.Equal(t, 1, w3.Frequency)
}

func TestUpsertOccurrenceIsPerUser(t *testing.T) {
	conn := dbtest.Open(t)
	alice := dbtest.User(t, conn, "alice")
	bob := dbtest.User(t, conn, "bob")
	ctx := context.Background()

	a, err := UpsertOccurrence(ctx, conn, alice, "犬", "イヌ")
	require.NoError(t, err)
	b, err := UpsertOccurrence(ctx, conn, bob, "犬", "イヌ")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 1, b.Frequency)
}

func TestUpsertOccurrenceRejectsEmptyForm(t *testing.T) {
	conn := dbtest.Open(t)
	user := dbtest.User(t, conn, "u1")
	_, err := UpsertOccurrence(context.Background(), conn, user, "  ", "ネコ")
	assert.Error(t, err)
}

func TestUpsertOccurrenceConcurrency(t *testing.T) {
	conn := dbtest.Open(t)
	user := dbtest.User(t, conn, "u1")
	ctx := context.Background()

	const n = 16
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := UpsertOccurrence(ctx, conn, user, "犬", "イヌ")
			return err
		})
	}
	require.NoError(t, g.Wait())

	w, err := Lookup(ctx, conn, user, "犬", "イヌ")
	require.NoError(t, err)
	assert.Equal(t, n, w.Frequency)

	var rows int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM words WHERE user_id = ?`, user).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestMarkMinedIsIdempotent(t *testing.T) {
	conn := dbtest.Open(t)
	user := dbtest.User(t, conn, "u1")
	other := dbtest.User(t, conn, "u2")
	ctx := context.Background()

	cat, err := UpsertOccurrence(ctx, conn, user, "猫", "ネコ")
	require.NoError(t, err)
	dog, err := UpsertOccurrence(ctx, conn, user, "犬", "イヌ")
	require.NoError(t, err)
	foreign, err := UpsertOccurrence(ctx, conn, other, "鳥", "トリ")
	require.NoError(t, err)

	n, err := MarkMined(ctx, conn, user, []int64{cat.ID, dog.ID, cat.ID, 9999, foreign.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = MarkMined(ctx, conn, user, []int64{cat.ID, dog.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := Get(ctx, conn, user, cat.ID)
	require.NoError(t, err)
	assert.True(t, got.IsMined)

	f, err := Get(ctx, conn, other, foreign.ID)
	require.NoError(t, err)
	assert.False(t, f.IsMined)

	n, err = MarkMined(ctx, conn, user, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMinedWordStaysMinedOnNewOccurrence(t *testing.T) {
	conn := dbtest.Open(t)
	user := dbtest.User(t, conn, "u1")
	ctx := context.Background()

	w, err := UpsertOccurrence(ctx, conn, user, "猫", "ネコ")
	require.NoError(t, err)
	_, err = MarkMined(ctx, conn, user, []int64{w.ID})
	require.NoError(t, err)

	w, err = UpsertOccurrence(ctx, conn, user, "猫", "ネコ")
	require.NoError(t, err)
	assert.True(t, w.IsMined)
	assert.Equal(t, 2, w.Frequency)
}

func TestFrequencyRank(t *testing.T) {
	conn := dbtest.Open(t)
	user := dbtest.User(t, conn, "u1")
	ctx := context.Background()

	for _, w := range [][2]string{
		{"犬", "イヌ"}, {"猫", "ネコ"}, {"猫", "ネコ"}, {"鳥", "トリ"}, {"猫", "ネコ"}, {"犬", "イヌ"}, {"亀", "カメ"},
	} {
		_, err := UpsertOccurrence(ctx, conn, user, w[0], w[1])
		require.NoError(t, err)
	}

	var forms []string
	for w, err := range FrequencyRank(ctx, conn, user) {
		require.NoError(t, err)
		forms = append(forms, w.DictionaryForm)
	}
	// 猫=3, 犬=2, then 亀 < 鳥 by code point
	assert.Equal(t, []string{"猫", "犬", "亀", "鳥"}, forms)

	// stopping early must not leak the cursor
	for w, err := range FrequencyRank(ctx, conn, user) {
		require.NoError(t, err)
		assert.Equal(t, "猫", w.DictionaryForm)
		break
	}
	_, err := UpsertOccurrence(ctx, conn, user, "亀", "カメ")
	require.NoError(t, err)
}

func TestGetAndLookupNotFound(t *testing.T) {
	conn := dbtest.Open(t)
	user := dbtest.User(t, conn, "u1")
	ctx := context.Background()

	_, err := Get(ctx, conn, user, 42)
	assert.ErrorIs(t, err, db.ErrNotFound)
	_, err = Lookup(ctx, conn, user, "猫", "ネコ")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestUserStats(t *testing.T) {
	conn := dbtest.Open(t)
	user := dbtest.User(t, conn, "u1")
	ctx := context.Background()

	s, err := UserStats(ctx, conn, user)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, s)

	cat, err := UpsertOccurrence(ctx, conn, user, "猫", "ネコ")
	require.NoError(t, err)
	_, err = UpsertOccurrence(ctx, conn, user, "猫", "ネコ")
	require.NoError(t, err)
	_, err = UpsertOccurrence(ctx, conn, user, "犬", "イヌ")
	require.NoError(t, err)
	_, err = MarkMined(ctx, conn, user, []int64{cat.ID})
	require.NoError(t, err)

	s, err = UserStats(ctx, conn, user)
	require.NoError(t, err)
	assert.Equal(t, Stats{Words: 2, Mined: 1, Occurrences: 3}, s)
	assert.Equal(t, 1, s.Unmined())
}
