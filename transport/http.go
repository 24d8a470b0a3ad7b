package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/doctor-go/doctor"
)

// RoundTripper wraps an http.RoundTripper with the same Test/record cycle
// as GRPCUnaryClientInterceptor, for services fronted by plain HTTP. The
// service name is fixed at construction; the endpoint key is derived from
// the request path.
type RoundTripper struct {
	Next    http.RoundTripper
	Guard   Guardian
	Service string
}

// RoundTrip implements http.RoundTripper.
func (t *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	endpoint := req.URL.Path
	next := t.Next
	if next == nil {
		next = http.DefaultTransport
	}

	if !t.Guard.Test(t.Service, endpoint) {
		return nil, doctor.ErrCircuitOpen
	}

	t.Guard.RecordCalled(t.Service, endpoint)
	resp, err := next.RoundTrip(req)
	t.classify(req.Context(), endpoint, resp, err)
	return resp, err
}

// classify maps a round-trip result to one of the five outcome recorders.
// A 4xx response is the caller's fault, not the downstream dependency's:
// it records as a user error, leaving the endpoint's latest_state healthy.
func (t *RoundTripper) classify(ctx context.Context, endpoint string, resp *http.Response, err error) {
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			t.Guard.RecordTimeout(t.Service, endpoint)
		} else {
			t.Guard.RecordUnknownExc(t.Service, endpoint)
		}
		return
	}
	switch {
	case resp.StatusCode >= 500:
		t.Guard.RecordSysExc(t.Service, endpoint)
	case resp.StatusCode >= 400:
		t.Guard.RecordUserExc(t.Service, endpoint)
	default:
		t.Guard.RecordOK(t.Service, endpoint)
	}
}
