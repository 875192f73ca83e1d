package results

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type SortKey string

const (
	SortByPrice     SortKey = "price"
	SortByDuration  SortKey = "duration"
	SortByDeparture SortKey = "departure"
)

func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SortByPrice, nil
	case SortByPrice, SortByDuration, SortByDeparture:
		return k, nil
	default:
		return "", fmt.Errorf("unknown sort key %q (want price, duration or departure)", s)
	}
}

// SortRows orders rows ascending by key. Ties keep their append order.
func SortRows(rows []Row, key SortKey) {
	switch key {
	case SortByDuration:
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].TravelMinutes() < rows[j].TravelMinutes() })
	case SortByDeparture:
		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].DepartureDateOutgoing != rows[j].DepartureDateOutgoing {
				return rows[i].DepartureDateOutgoing < rows[j].DepartureDateOutgoing
			}
			return rows[i].DepartureTimeOutgoing < rows[j].DepartureTimeOutgoing
		})
	default:
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Price < rows[j].Price })
	}
}

// TravelMinutes is the outgoing flight time plus the return flight time,
// when there is one.
func (r Row) TravelMinutes() int {
	ret, _ := strconv.Atoi(r.DurationMinReturn)
	return r.DurationMinOutgoing + ret
}
