// Package assignment содержит правила выбора курьера для заказа:
// лимит одновременных заказов, оценку близости квартир и ранжирование кандидатов.
package assignment

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/mmeshcher/condo-delivery/internal/model"
)

const (
	// MaxActiveOrders — максимальное число активных заказов (PENDING, ACCEPTED) у курьера.
	MaxActiveOrders = 5
	// RecentWindow — окно, за которое считается недавняя нагрузка курьера.
	RecentWindow = 7 * 24 * time.Hour

	differentTowerPenalty = 100
)

// HasCapacity сообщает, может ли курьер с указанным числом активных заказов взять ещё один.
func HasCapacity(activeOrders int) bool {
	return activeOrders < MaxActiveOrders
}

// ProximityScore оценивает близость двух квартир: чем меньше, тем ближе.
// В одной башне стоимость равна разнице этажей, в разных — 100 плюс разница этажей.
func ProximityScore(a, b *model.Department) float64 {
	if a == nil || b == nil {
		return math.Inf(1)
	}

	floorDiff := a.Floor - b.Floor
	if floorDiff < 0 {
		floorDiff = -floorDiff
	}

	if a.Tower == b.Tower {
		return float64(floorDiff)
	}
	return float64(differentTowerPenalty + floorDiff)
}

// Candidate — курьер, допущенный к ранжированию, с его текущими показателями.
type Candidate struct {
	User         model.User
	RecentOrders int
	ActiveOrders int
	Proximity    float64
}

// Selector ранжирует кандидатов по недавней нагрузке и, опционально, по близости.
// Равные кандидаты перемешиваются генератором с фиксированным зерном.
type Selector struct {
	mu          sync.Mutex
	rnd         *rand.Rand
	byProximity bool
}

// NewSelector создаёт селектор. Нулевое зерно заменяется текущим временем.
func NewSelector(seed uint64, byProximity bool) *Selector {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Selector{
		rnd:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		byProximity: byProximity,
	}
}

// Rank возвращает кандидатов с запасом мощности в порядке предпочтения.
// Исходный срез не изменяется.
func (s *Selector) Rank(candidates []Candidate) []Candidate {
	ranked := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if HasCapacity(c.ActiveOrders) {
			ranked = append(ranked, c)
		}
	}

	// Сортировка устойчивая, поэтому предварительное перемешивание
	// даёт равновероятный выбор среди кандидатов с одинаковым ключом.
	s.mu.Lock()
	s.rnd.Shuffle(len(ranked), func(i, j int) {
		ranked[i], ranked[j] = ranked[j], ranked[i]
	})
	s.mu.Unlock()

	slices.SortStableFunc(ranked, func(a, b Candidate) int {
		if c := cmp.Compare(a.RecentOrders, b.RecentOrders); c != 0 {
			return c
		}
		if s.byProximity {
			return cmp.Compare(a.Proximity, b.Proximity)
		}
		return 0
	})

	return ranked
}

// Pick возвращает лучшего кандидата либо false, если выбирать не из кого.
func (s *Selector) Pick(candidates []Candidate) (Candidate, bool) {
	ranked := s.Rank(candidates)
	if len(ranked) == 0 {
		return Candidate{}, false
	}
	return ranked[0], true
}
