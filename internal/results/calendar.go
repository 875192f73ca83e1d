package results

import (
	"sort"

	"github.com/you/go-flightgrid/internal/providers"
)

type DayPoint struct {
	Date          string  `json:"date"` // YYYY-MM-DD
	CheapestPrice float64 `json:"cheapest_price"`
	Rows          int     `json:"rows"`
	Currency      string  `json:"currency"`
}

// CheapestByDeparture groups rows by outgoing departure date and keeps the
// cheapest headline price of each day, in date order.
func CheapestByDeparture(rows []Row) []DayPoint {
	byDay := make(map[string]*DayPoint)
	for _, r := range rows {
		p, ok := byDay[r.DepartureDateOutgoing]
		if !ok {
			p = &DayPoint{Date: r.DepartureDateOutgoing, CheapestPrice: r.Price, Currency: providers.Currency}
			byDay[r.DepartureDateOutgoing] = p
		}
		p.Rows++
		if r.Price < p.CheapestPrice {
			p.CheapestPrice = r.Price
		}
	}

	out := make([]DayPoint, 0, len(byDay))
	for _, p := range byDay {
		p.CheapestPrice = round2(p.CheapestPrice)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func round2(v float64) float64 { return float64(int(v*100+0.5)) / 100 }
