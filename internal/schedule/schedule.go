// Package schedule разбивает рабочий день на получасовые слоты
// и считает, сколько курьеров свободно в каждом из них.
package schedule

import (
	"iter"
	"time"

	"github.com/mmeshcher/condo-delivery/internal/model"
)

const (
	// OpeningHour и ClosingHour задают рабочие часы доставки.
	OpeningHour = 8
	ClosingHour = 20
	// SlotWidth — ширина слота и ожидаемая длительность одной доставки.
	SlotWidth = 30 * time.Minute
)

// DaySlots возвращает начала всех слотов рабочего дня для календарной даты date в зоне loc.
func DaySlots(date time.Time, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	start := time.Date(y, m, d, OpeningHour, 0, 0, 0, loc)
	end := time.Date(y, m, d, ClosingHour, 0, 0, 0, loc)

	starts := make([]time.Time, 0, int(end.Sub(start)/SlotWidth))
	for t := start; t.Before(end); t = t.Add(SlotWidth) {
		starts = append(starts, t)
	}
	return starts
}

// ConflictWindow возвращает полуинтервал [from, to), в который не должен попадать
// ни один активный заказ курьера, чтобы он считался свободным в слоте.
func ConflictWindow(slotStart time.Time, duration time.Duration) (time.Time, time.Time) {
	return slotStart.Add(-duration), slotStart.Add(duration)
}

// IsBusy сообщает, пересекается ли хотя бы один заказ с окном слота.
func IsBusy(scheduled []time.Time, slotStart time.Time, duration time.Duration) bool {
	from, to := ConflictWindow(slotStart, duration)
	for _, s := range scheduled {
		if !s.Before(from) && s.Before(to) {
			return true
		}
	}
	return false
}

// Board — снимок курьеров кондоминиума и их активных заказов на дату.
// Board не обращается к хранилищу, поэтому Slots можно обходить многократно.
type Board struct {
	starts     []time.Time
	now        time.Time
	deliverers []model.User
	busy       map[int64][]time.Time
}

// NewBoard создаёт снимок. Заказы без курьера или в неактивных статусах игнорируются.
func NewBoard(date, now time.Time, loc *time.Location, deliverers []model.User, orders []model.Order) *Board {
	busy := make(map[int64][]time.Time, len(deliverers))
	for _, o := range orders {
		if o.DelivererID == nil || !o.Status.IsActive() {
			continue
		}
		busy[*o.DelivererID] = append(busy[*o.DelivererID], o.ScheduledDate)
	}

	return &Board{
		starts:     DaySlots(date, loc),
		now:        now,
		deliverers: deliverers,
		busy:       busy,
	}
}

// Range возвращает интервал, за который нужно загрузить заказы для построения снимка.
func Range(date time.Time, loc *time.Location) (time.Time, time.Time) {
	starts := DaySlots(date, loc)
	if len(starts) == 0 {
		return date, date
	}
	from, _ := ConflictWindow(starts[0], SlotWidth)
	_, to := ConflictWindow(starts[len(starts)-1], SlotWidth)
	return from, to
}

// Slots лениво перечисляет будущие слоты дня в хронологическом порядке.
func (b *Board) Slots() iter.Seq[model.Slot] {
	return func(yield func(model.Slot) bool) {
		for _, start := range b.starts {
			if start.Before(b.now) {
				continue
			}
			free := b.freeAt(start)
			if !yield(model.Slot{
				Time:                start,
				AvailableDeliverers: free,
				IsAvailable:         free > 0,
			}) {
				return
			}
		}
	}
}

func (b *Board) freeAt(start time.Time) int {
	free := 0
	for _, d := range b.deliverers {
		if !d.AvailableForDelivery {
			continue
		}
		if IsBusy(b.busy[d.ID], start, SlotWidth) {
			continue
		}
		free++
	}
	return free
}
