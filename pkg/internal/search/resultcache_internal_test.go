package search

import (
	"cmp"
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedBitsMonotonic(t *testing.T) {
	values := []float64{math.Inf(-1), -1e300, -2.5, -1e-12, 0, 1e-12, 0.06, 0.5, 1, 1e300, math.Inf(1)}

	for i := 1; i < len(values); i++ {
		assert.Less(t, orderedBits(values[i-1]), orderedBits(values[i]), "%v < %v", values[i-1], values[i])
	}

	assert.Equal(t, orderedBits(0), orderedBits(math.Copysign(0, -1)))

	for _, v := range values {
		assert.Equal(t, v, fromOrderedBits(orderedBits(v)))
	}
}

func TestRankCodecOrderMatchesResultOrder(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	ranks := []float64{0, 0, 0.1, 0.1, 0.2, 0.0607927, 1e-9}

	entries := make([]Entry, 0, 200)
	for id := int64(1); id <= 200; id++ {
		rank := ranks[r.Intn(len(ranks))]
		entries = append(entries, Entry{ID: id, Rank: &rank})
	}

	// 结果顺序：rank DESC, id DESC
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(*b.Rank, *a.Rank); c != 0 {
			return c
		}

		return cmp.Compare(b.ID, a.ID)
	})

	codec := rankCodec{}
	members := make([]string, len(entries))

	for i, e := range entries {
		m, err := codec.encode(e)
		require.NoError(t, err)
		require.Len(t, m, rankMemberLen)

		members[i] = m

		back, err := codec.decode(m)
		require.NoError(t, err)
		assert.Equal(t, e.ID, back.ID)
		assert.Equal(t, *e.Rank, *back.Rank)
	}

	assert.True(t, slices.IsSorted(members), "member byte order must equal result order")
}

func TestRankCodecRequiresRank(t *testing.T) {
	_, err := rankCodec{}.encode(Entry{ID: 1})
	require.ErrorIs(t, err, ErrInvalidCursor)

	_, err = rankCodec{}.decode("zz")
	require.Error(t, err)
}
