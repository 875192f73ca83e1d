package service

import (
	"context"
	"errors"
	"sync"

	"github.com/you/go-flightgrid/internal/providers"
)

// ProviderMock records every query and answers from the configured funcs.
type ProviderMock struct {
	name      string
	outgoing  func(q providers.OutgoingQuery) (providers.Results, error)
	returning func(q providers.ReturnQuery) (providers.Results, error)

	mu            sync.Mutex
	outgoingCalls []providers.OutgoingQuery
	returnCalls   []providers.ReturnQuery
}

func (p *ProviderMock) Name() string {
	return p.name
}

func (p *ProviderMock) SearchOutgoing(ctx context.Context, q providers.OutgoingQuery) (providers.Results, error) {
	p.mu.Lock()
	p.outgoingCalls = append(p.outgoingCalls, q)
	p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return providers.Results{}, err
	}
	if p.outgoing == nil {
		return providers.Results{}, nil
	}
	return p.outgoing(q)
}

func (p *ProviderMock) SearchReturning(ctx context.Context, q providers.ReturnQuery) (providers.Results, error) {
	p.mu.Lock()
	p.returnCalls = append(p.returnCalls, q)
	p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return providers.Results{}, err
	}
	if p.returning == nil {
		return providers.Results{}, nil
	}
	return p.returning(q)
}

func (p *ProviderMock) OutgoingCalls() []providers.OutgoingQuery {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]providers.OutgoingQuery(nil), p.outgoingCalls...)
}

func (p *ProviderMock) ReturnCalls() []providers.ReturnQuery {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]providers.ReturnQuery(nil), p.returnCalls...)
}

var errAPIRequestFail = errors.New("API Request Fail")

func offer(price float64, token, flightID string) providers.Offer {
	return providers.Offer{
		Price:          price,
		DurationMin:    600,
		Stops:          0,
		DepartureDate:  "2026-01-06",
		DepartureTime:  "10:00",
		ArrivalDate:    "2026-01-06",
		ArrivalTime:    "20:00",
		Airlines:       []string{"Turkish Airlines"},
		ReturningToken: token,
		Segments: []providers.Segment{
			{AirlineCode: "TK", AirlineName: "Turkish Airlines", FlightNumber: flightID, FlightID: flightID, ArrivalAirportCode: "BKK", ArrivalTime: "20:00"},
		},
	}
}
