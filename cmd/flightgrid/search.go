package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/you/go-flightgrid/internal/results"
	"github.com/you/go-flightgrid/internal/service"
	"github.com/you/go-flightgrid/internal/storage"
	"go.uber.org/zap"
)

type searchOptions struct {
	from, to       string
	departStart    string
	departEnd      string
	minDays        int
	maxDays        int
	maxFlightHours float64
	maxPrice       int
	adults         int
	maxFlights     int
	roundTrip      bool
	sort           string
}

func (o searchOptions) constraints() (service.Constraints, error) {
	start, err := service.ParseDate(o.departStart)
	if err != nil {
		return service.Constraints{}, err
	}
	end, err := service.ParseDate(o.departEnd)
	if err != nil {
		return service.Constraints{}, err
	}
	c := service.Constraints{
		DepartureID:       strings.ToUpper(o.from),
		ArrivalID:         strings.ToUpper(o.to),
		DepartureStart:    start,
		DepartureEnd:      end,
		MinDurationDays:   o.minDays,
		MaxDurationDays:   o.maxDays,
		MaxFlightDuration: time.Duration(o.maxFlightHours * float64(time.Hour)),
		MaxPrice:          o.maxPrice,
		Adults:            o.adults,
		MaxFlights:        o.maxFlights,
		RoundTrip:         o.roundTrip,
	}
	return c, c.Validate()
}

func newSearchCmd(a *app) *cobra.Command {
	o := searchOptions{}
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run one sweep in the foreground and print the results",
		Example: `  flightgrid search --from FRA --to BKK --depart-start 2026-01-05 --depart-end 2026-02-15
  flightgrid search --from BER --to BKK --depart-start 2026-01-05 --depart-end 2026-01-20 --roundtrip=false --sort duration`,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := results.ParseSortKey(o.sort)
			if err != nil {
				return err
			}
			c, err := o.constraints()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner, closeStore, err := a.newRunner(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			run, err := runner.Execute(ctx, c)
			if run == nil {
				return err
			}
			rows := run.Table.Rows()
			results.SortRows(rows, key)
			if perr := printTable(cmd.OutOrStdout(), rows); perr != nil {
				return perr
			}

			info := run.Info()
			a.log.Info("results saved",
				zap.String("run_id", info.ID),
				zap.String("csv", filepath.Join(a.cfg.OutputDir, storage.FileName(c))),
				zap.Int("rows", info.Summary.Rows),
				zap.Int("failed_date_pairs", info.Summary.FailedDatePairs))
			if errors.Is(err, context.Canceled) {
				a.log.Warn("search interrupted, partial results kept")
				return nil
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.from, "from", "", "departure airport IATA code")
	f.StringVar(&o.to, "to", "", "arrival airport IATA code")
	f.StringVar(&o.departStart, "depart-start", "", "earliest departure, YYYY-MM-DD (exclusive)")
	f.StringVar(&o.departEnd, "depart-end", "", "latest departure, YYYY-MM-DD (exclusive)")
	f.IntVar(&o.minDays, "min-days", 15, "minimum trip length in days")
	f.IntVar(&o.maxDays, "max-days", 23, "maximum trip length in days (exclusive)")
	f.Float64Var(&o.maxFlightHours, "max-flight-hours", 16, "maximum duration of a single flight in hours")
	f.IntVar(&o.maxPrice, "max-price", 850, "maximum price in EUR")
	f.IntVar(&o.adults, "adults", 1, "number of adult passengers")
	f.IntVar(&o.maxFlights, "max-flights", 6, "outgoing and return offers considered per date pair")
	f.BoolVar(&o.roundTrip, "roundtrip", true, "search round-trip fares instead of two one-way legs")
	f.StringVar(&o.sort, "sort", "price", "sort printed rows by price, duration or departure")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("depart-start")
	_ = cmd.MarkFlagRequired("depart-end")
	return cmd
}

// printTable writes a compact view of the rows; multi-leg return cells are
// shown on one line.
func printTable(w io.Writer, rows []results.Row) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no flights found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PRICE\tOUT PRICE\tDEPARTS\tAIRLINE\tFLIGHT\tDURATION\tRETURN\tRETURN FLIGHT\tRETURN DURATION\tSTOPS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%.2f\t%.2f\t%s %s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Price, r.OutgoingPrice,
			r.DepartureDateOutgoing, r.DepartureTimeOutgoing,
			r.AirlineOutgoing, r.FlightNoOutgoing, r.DurationOutgoing,
			r.DepartureReturn, oneLine(r.FlightNo), dashIfEmpty(r.DurationReturn), dashIfEmpty(r.Stops))
	}
	return tw.Flush()
}

func oneLine(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "\n", ", ")
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
