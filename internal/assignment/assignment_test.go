package assignment

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/condo-delivery/internal/model"
)

func candidate(id int64, recent, active int, proximity float64) Candidate {
	return Candidate{
		User:         model.User{ID: id, Role: model.RoleDeliverer, AvailableForDelivery: true},
		RecentOrders: recent,
		ActiveOrders: active,
		Proximity:    proximity,
	}
}

func TestHasCapacity(t *testing.T) {
	assert.True(t, HasCapacity(0))
	assert.True(t, HasCapacity(MaxActiveOrders-1))
	assert.False(t, HasCapacity(MaxActiveOrders))
	assert.False(t, HasCapacity(MaxActiveOrders+3))
}

func TestProximityScore(t *testing.T) {
	tests := []struct {
		name string
		a, b *model.Department
		want float64
	}{
		{
			name: "same tower same floor",
			a:    &model.Department{Tower: "A", Floor: 3},
			b:    &model.Department{Tower: "A", Floor: 3},
			want: 0,
		},
		{
			name: "same tower floor distance",
			a:    &model.Department{Tower: "A", Floor: 2},
			b:    &model.Department{Tower: "A", Floor: 9},
			want: 7,
		},
		{
			name: "different towers",
			a:    &model.Department{Tower: "A", Floor: 5},
			b:    &model.Department{Tower: "B", Floor: 1},
			want: 104,
		},
		{
			name: "missing department",
			a:    nil,
			b:    &model.Department{Tower: "B", Floor: 1},
			want: math.Inf(1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProximityScore(tt.a, tt.b))
		})
	}
}

func TestSelectorPrefersFewerRecentOrders(t *testing.T) {
	s := NewSelector(42, false)

	picked, ok := s.Pick([]Candidate{
		candidate(1, 3, 0, 0),
		candidate(2, 0, 0, 200),
	})
	require.True(t, ok)
	assert.Equal(t, int64(2), picked.User.ID)
}

func TestSelectorSkipsCandidatesAtCapacity(t *testing.T) {
	s := NewSelector(42, true)

	picked, ok := s.Pick([]Candidate{
		candidate(1, 0, MaxActiveOrders, 0),
		candidate(2, 4, 1, 50),
	})
	require.True(t, ok)
	assert.Equal(t, int64(2), picked.User.ID)

	_, ok = s.Pick([]Candidate{candidate(1, 0, MaxActiveOrders, 0)})
	assert.False(t, ok)

	_, ok = s.Pick(nil)
	assert.False(t, ok)
}

func TestSelectorProximityBreaksLoadTies(t *testing.T) {
	s := NewSelector(7, true)

	ranked := s.Rank([]Candidate{
		candidate(1, 1, 0, 103),
		candidate(2, 1, 0, 2),
		candidate(3, 0, 0, 500),
	})
	require.Len(t, ranked, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{ranked[0].User.ID, ranked[1].User.ID, ranked[2].User.ID})
}

func TestSelectorSeededTieBreakIsDeterministic(t *testing.T) {
	pool := []Candidate{
		candidate(1, 0, 0, 0),
		candidate(2, 0, 0, 0),
		candidate(3, 0, 0, 0),
		candidate(4, 0, 0, 0),
	}

	first := NewSelector(2024, false)
	second := NewSelector(2024, false)
	for i := 0; i < 10; i++ {
		a, _ := first.Pick(pool)
		b, _ := second.Pick(pool)
		assert.Equal(t, a.User.ID, b.User.ID)
	}
}

func TestSelectorTieBreakCoversWholeCohort(t *testing.T) {
	pool := []Candidate{
		candidate(1, 0, 0, 0),
		candidate(2, 0, 0, 0),
		candidate(3, 0, 0, 0),
		candidate(4, 5, 0, 0),
	}

	s := NewSelector(99, false)
	seen := map[int64]int{}
	for i := 0; i < 300; i++ {
		picked, ok := s.Pick(pool)
		require.True(t, ok)
		seen[picked.User.ID]++
	}

	assert.Zero(t, seen[4], "busier candidate must never win while the cohort has idle ones")
	for _, id := range []int64{1, 2, 3} {
		assert.Positive(t, seen[id], "candidate %d never selected", id)
	}
}

func TestSelectorRankDoesNotMutateInput(t *testing.T) {
	pool := []Candidate{candidate(1, 2, 0, 0), candidate(2, 1, 0, 0)}
	orig := append([]Candidate(nil), pool...)

	NewSelector(1, false).Rank(pool)
	assert.Equal(t, orig, pool)
}
