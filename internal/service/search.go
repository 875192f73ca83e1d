package service

import (
	"context"
	"time"

	"github.com/you/go-flightgrid/internal/providers"
	"github.com/you/go-flightgrid/internal/results"
	"go.uber.org/zap"
)

// Summary counts what one sweep did.
type Summary struct {
	DatePairs       int           `json:"date_pairs"`
	FailedDatePairs int           `json:"failed_date_pairs"`
	OutgoingOffers  int           `json:"outgoing_offers"`
	SkippedOffers   int           `json:"skipped_offers"`
	Rows            int           `json:"rows"`
	PartialRows     int           `json:"partial_rows"`
	Elapsed         time.Duration `json:"elapsed"`
}

// SearchService sweeps the date grid against one flight searcher. It is
// strictly sequential: one request in flight at a time.
type SearchService struct {
	searcher providers.FlightSearcher
	log      *zap.Logger
}

func NewSearchService(searcher providers.FlightSearcher, log *zap.Logger) *SearchService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SearchService{searcher: searcher, log: log.Named("search")}
}

// Run searches every date pair of c and appends the resulting rows to
// table. Failures of single requests never stop the sweep; only an invalid
// c or a cancelled ctx do.
func (s *SearchService) Run(ctx context.Context, c Constraints, table *results.Table) (Summary, error) {
	if err := c.Validate(); err != nil {
		return Summary{}, err
	}

	start := time.Now()
	sum := Summary{}
	// rows appended after a cancellation were refused by the sinks
	defer func() {
		if err := table.Flush(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("final save of results failed", zap.Error(err))
		}
	}()
	maxDuration := providers.FormatMaxDuration(c.MaxFlightDuration)
	// one-way return legs only depend on the return date
	mirrored := make(map[string]providers.Results)

	for pair := range c.DatePairs() {
		if err := ctx.Err(); err != nil {
			sum.Elapsed = time.Since(start)
			return sum, err
		}
		sum.DatePairs++
		dep, ret := pair.DepartureDate(), pair.ReturnDate()
		s.log.Info("searching flights", zap.String("departure", dep), zap.String("return", ret))

		outgoing, err := s.searcher.SearchOutgoing(ctx, providers.OutgoingQuery{
			DepartureID:   c.DepartureID,
			ArrivalID:     c.ArrivalID,
			DepartureDate: dep,
			ReturnDate:    ret,
			MaxDuration:   maxDuration,
			MaxPrice:      c.MaxPrice,
		})
		if err != nil {
			if ctx.Err() != nil {
				sum.Elapsed = time.Since(start)
				return sum, ctx.Err()
			}
			sum.FailedDatePairs++
			s.log.Warn("no usable outgoing response, skipping date pair",
				zap.String("departure", dep), zap.String("return", ret), zap.Error(err))
			continue
		}

		candidates := outgoing.All()
		if len(candidates) > c.MaxFlights {
			candidates = candidates[:c.MaxFlights]
		}

		for _, out := range candidates {
			sum.OutgoingOffers++

			var returns providers.Results
			if c.RoundTrip {
				if out.ReturningToken == "" {
					sum.SkippedOffers++
					s.log.Warn("outgoing offer has no returning token, skipping",
						zap.String("departure", dep), zap.Float64("price", out.Price))
					continue
				}
				returns, err = s.searcher.SearchReturning(ctx, providers.ReturnQuery{
					Token:       out.ReturningToken,
					ReturnDate:  ret,
					Adults:      c.Adults,
					MaxDuration: maxDuration,
					MaxPrice:    c.MaxPrice,
				})
			} else {
				returns, err = s.mirroredSearch(ctx, c, ret, maxDuration, mirrored)
			}
			if err != nil {
				if ctx.Err() != nil {
					sum.Elapsed = time.Since(start)
					return sum, ctx.Err()
				}
				s.log.Warn("return search failed, treating as no return flights",
					zap.String("return", ret), zap.Error(err))
			}

			retCandidates := returns.All()
			if c.RoundTrip && len(retCandidates) == 0 {
				s.appendRow(ctx, table, results.Flatten(nil, out, ret), &sum)
				sum.PartialRows++
				continue
			}
			if len(retCandidates) > c.MaxFlights {
				retCandidates = retCandidates[:c.MaxFlights]
			}
			for i := range retCandidates {
				back := retCandidates[i]
				if !c.RoundTrip && out.Price+back.Price > float64(c.MaxPrice) {
					continue
				}
				s.appendRow(ctx, table, results.Flatten(&back, out, ret), &sum)
			}
		}
	}

	sum.Elapsed = time.Since(start)
	s.log.Info("search complete",
		zap.Int("date_pairs", sum.DatePairs),
		zap.Int("failed_date_pairs", sum.FailedDatePairs),
		zap.Int("rows", sum.Rows),
		zap.Duration("elapsed", sum.Elapsed))
	return sum, nil
}

// mirroredSearch emulates a one-way return leg with an outgoing search
// whose airports are swapped and whose dates both equal the return date.
func (s *SearchService) mirroredSearch(ctx context.Context, c Constraints, ret, maxDuration string, memo map[string]providers.Results) (providers.Results, error) {
	if res, ok := memo[ret]; ok {
		return res, nil
	}
	res, err := s.searcher.SearchOutgoing(ctx, providers.OutgoingQuery{
		DepartureID:   c.ArrivalID,
		ArrivalID:     c.DepartureID,
		DepartureDate: ret,
		ReturnDate:    ret,
		MaxDuration:   maxDuration,
		MaxPrice:      c.MaxPrice,
	})
	if err != nil {
		return providers.Results{}, err
	}
	memo[ret] = res
	return res, nil
}

func (s *SearchService) appendRow(ctx context.Context, table *results.Table, row results.Row, sum *Summary) {
	sum.Rows++
	if err := table.Append(ctx, row); err != nil {
		s.log.Warn("saving results failed", zap.Int("rows", table.Len()), zap.Error(err))
	}
}
