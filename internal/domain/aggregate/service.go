// Package aggregate derives period indicators from stock card history:
// tagged movement totals, stockout days and average daily consumption.
// Everything here is read-only over already-calculated line items.
package aggregate

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"medstock/internal/core/id"
	"medstock/internal/domain/card"
)

// Service answers aggregation queries over stock card history.
type Service struct {
	cards card.Repository
}

// NewService creates an aggregation service.
func NewService(cards card.Repository) *Service {
	return &Service{cards: cards}
}

// loadHistory returns the card's full line-item history in canonical order,
// or nil when no card exists for the identity.
func (s *Service) loadHistory(ctx context.Context, identity card.Identity) ([]card.LineItem, error) {
	c, err := s.cards.FindByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}
	items, err := s.cards.FindLineItemsAfter(ctx, c.ID, time.Time{})
	if err != nil {
		return nil, err
	}
	card.SortCanonical(items)
	return items, nil
}

// AmountForTag sums the signed quantities of movements whose reason
// carries the tag, over occurred dates within [start, end]. Zero when the
// tag never occurs; untagged movements never contribute.
func (s *Service) AmountForTag(ctx context.Context, identity card.Identity, tag string, start, end time.Time) (int64, error) {
	items, err := s.loadHistory(ctx, identity)
	if err != nil {
		return 0, err
	}
	return AmountForTag(items, tag, start, end), nil
}

// AmountsByTag sums signed quantities per reason tag over the period. A
// movement whose reason has several tags contributes to each of them.
func (s *Service) AmountsByTag(ctx context.Context, identity card.Identity, start, end time.Time) (map[string]int64, error) {
	items, err := s.loadHistory(ctx, identity)
	if err != nil {
		return nil, err
	}
	return AmountsByTag(items, start, end), nil
}

// StockoutDays counts the days within [start, end] the card's balance sat
// at zero. Nil when the history holds no stockout interval at all; a
// concrete zero when intervals exist but none overlaps the period.
func (s *Service) StockoutDays(ctx context.Context, identity card.Identity, start, end time.Time) (*int, error) {
	items, err := s.loadHistory(ctx, identity)
	if err != nil {
		return nil, err
	}
	return StockoutDays(items, start, end), nil
}

// StockoutDaysForCards counts stockout days for a group of cards treated
// as one pool, such as all cards fulfilling the same orderable. Balances
// are summed per day; a day counts only when the combined end-of-day
// balance was zero, so a card with stock covers another card's gap.
func (s *Service) StockoutDaysForCards(ctx context.Context, cardIDs []id.ID, start, end time.Time) (*int, error) {
	cards, err := s.cards.FindByIDs(ctx, cardIDs)
	if err != nil {
		return nil, err
	}
	histories := make([][]card.LineItem, 0, len(cards))
	for i := range cards {
		items := cards[i].LineItems
		card.SortCanonical(items)
		histories = append(histories, items)
	}
	return StockoutDaysAcross(histories, start, end), nil
}

// AverageDailyConsumption divides the period's consumption (debits tagged
// with the given tag, as a positive amount) by the days the product was
// actually stocked. Zero when the product was stocked out the whole
// period.
func (s *Service) AverageDailyConsumption(ctx context.Context, identity card.Identity, tag string, start, end time.Time) (decimal.Decimal, error) {
	items, err := s.loadHistory(ctx, identity)
	if err != nil {
		return decimal.Zero, err
	}
	return AverageDailyConsumption(items, tag, start, end), nil
}

// AmountForTag is the pure form of Service.AmountForTag.
func AmountForTag(items []card.LineItem, tag string, start, end time.Time) int64 {
	var total int64
	forEachInPeriod(items, start, end, func(li *card.LineItem) {
		if li.Reason != nil && li.Reason.HasTag(tag) {
			total += int64(li.SignedQuantity())
		}
	})
	return total
}

// AmountsByTag is the pure form of Service.AmountsByTag.
func AmountsByTag(items []card.LineItem, start, end time.Time) map[string]int64 {
	totals := make(map[string]int64)
	forEachInPeriod(items, start, end, func(li *card.LineItem) {
		if li.Reason == nil {
			return
		}
		for _, tag := range li.Reason.Tags {
			totals[tag] += int64(li.SignedQuantity())
		}
	})
	return totals
}

// StockoutDays is the pure form of Service.StockoutDays. Each stockout
// interval is half-open [zero date, recovery date); an interval still open
// at period end is clipped one day past the period so the last day counts.
// Nil means the history contains no stockout interval; zero means
// intervals exist but lie entirely outside [start, end].
func StockoutDays(items []card.LineItem, start, end time.Time) *int {
	return stockoutDaysIn(dayBalances(items), start, end)
}

// StockoutDaysAcross is StockoutDays over several card histories merged
// into one running balance. Days are counted on the summed end-of-day
// balances, not per card, so overlapping per-card gaps are never double
// counted.
func StockoutDaysAcross(histories [][]card.LineItem, start, end time.Time) *int {
	return stockoutDaysIn(mergedDayBalances(histories), start, end)
}

func stockoutDaysIn(days []dayBalance, start, end time.Time) *int {
	start = card.DateOf(start)
	end = card.DateOf(end)

	ivs := stockoutIntervals(days, end)
	if len(ivs) == 0 {
		return nil
	}
	total := 0
	for _, iv := range ivs {
		from := maxDate(iv.from, start)
		to := minDate(iv.to, end.AddDate(0, 0, 1))
		if from.Before(to) {
			total += int(to.Sub(from).Hours() / 24)
		}
	}
	return &total
}

type interval struct {
	from, to time.Time
}

// dayBalance is the balance a card (or a pool of cards) closed a distinct
// occurred date with.
type dayBalance struct {
	date time.Time
	soh  int64
}

// dayBalances collapses a canonical item sequence to its end-of-day
// balances; only the last balance of each occurred date matters.
func dayBalances(items []card.LineItem) []dayBalance {
	var days []dayBalance
	for i := range items {
		date := card.DateOf(items[i].OccurredDate)
		soh := int64(items[i].StockOnHand)
		if n := len(days); n > 0 && days[n-1].date.Equal(date) {
			days[n-1].soh = soh
			continue
		}
		days = append(days, dayBalance{date: date, soh: soh})
	}
	return days
}

// mergedDayBalances sums several cards' end-of-day balances into one
// series. Each card's balance carries forward between its movement dates;
// a card contributes nothing before its first movement.
func mergedDayBalances(histories [][]card.LineItem) []dayBalance {
	var series [][]dayBalance
	for _, items := range histories {
		if s := dayBalances(items); len(s) > 0 {
			series = append(series, s)
		}
	}
	if len(series) == 0 {
		return nil
	}
	if len(series) == 1 {
		return series[0]
	}

	seen := make(map[time.Time]struct{})
	var dates []time.Time
	for _, s := range series {
		for _, d := range s {
			if _, ok := seen[d.date]; !ok {
				seen[d.date] = struct{}{}
				dates = append(dates, d.date)
			}
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	idx := make([]int, len(series))
	merged := make([]dayBalance, 0, len(dates))
	for _, date := range dates {
		var sum int64
		for si, s := range series {
			for idx[si] < len(s) && !s[idx[si]].date.After(date) {
				idx[si]++
			}
			if idx[si] > 0 {
				sum += s[idx[si]-1].soh
			}
		}
		merged = append(merged, dayBalance{date: date, soh: sum})
	}
	return merged
}

// stockoutIntervals extracts the [zero, recovery) date ranges from an
// end-of-day balance series. An interval with no recovery runs one day
// past the horizon.
func stockoutIntervals(days []dayBalance, horizon time.Time) []interval {
	var ivs []interval
	for i, d := range days {
		if d.soh != 0 {
			continue
		}
		to := horizon.AddDate(0, 0, 1)
		if i+1 < len(days) {
			to = days[i+1].date
		}
		ivs = append(ivs, interval{from: d.date, to: to})
	}
	return ivs
}

// AverageDailyConsumption is the pure form of the service method.
func AverageDailyConsumption(items []card.LineItem, tag string, start, end time.Time) decimal.Decimal {
	var consumed int64
	forEachInPeriod(items, start, end, func(li *card.LineItem) {
		if li.Reason == nil || !li.Reason.HasTag(tag) {
			return
		}
		if q := int64(li.SignedQuantity()); q < 0 {
			consumed -= q
		}
	})

	periodDays := int(card.DateOf(end).AddDate(0, 0, 1).Sub(card.DateOf(start)).Hours() / 24)
	stockedDays := periodDays
	if sd := StockoutDays(items, start, end); sd != nil {
		stockedDays -= *sd
	}
	if stockedDays <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(consumed).Div(decimal.NewFromInt(int64(stockedDays)))
}

func forEachInPeriod(items []card.LineItem, start, end time.Time, fn func(li *card.LineItem)) {
	start = card.DateOf(start)
	end = card.DateOf(end)
	for i := range items {
		date := card.DateOf(items[i].OccurredDate)
		if date.Before(start) || date.After(end) {
			continue
		}
		fn(&items[i])
	}
}

func maxDate(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minDate(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
