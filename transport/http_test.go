package transport

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/doctor-go/doctor"
)

type fakeGuardian struct {
	admit      bool
	called     []string
	recordedAs string
}

func (f *fakeGuardian) Test(service, endpoint string) bool { return f.admit }
func (f *fakeGuardian) RecordCalled(service, endpoint string) {
	f.called = append(f.called, service+"."+endpoint)
}
func (f *fakeGuardian) RecordOK(service, endpoint string)         { f.recordedAs = "ok" }
func (f *fakeGuardian) RecordUserExc(service, endpoint string)    { f.recordedAs = "user_exc" }
func (f *fakeGuardian) RecordTimeout(service, endpoint string)    { f.recordedAs = "timeout" }
func (f *fakeGuardian) RecordSysExc(service, endpoint string)     { f.recordedAs = "sys_exc" }
func (f *fakeGuardian) RecordUnknownExc(service, endpoint string) { f.recordedAs = "unknown_exc" }

func TestRoundTripperDeniesWithoutCallingNext(t *testing.T) {
	guard := &fakeGuardian{admit: false}
	called := false
	rt := &RoundTripper{
		Next:    roundTripFunc(func(*http.Request) (*http.Response, error) { called = true; return nil, nil }),
		Guard:   guard,
		Service: "payments",
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.com/charge", nil)
	_, err := rt.RoundTrip(req)

	if called {
		t.Fatal("RoundTrip must not call the wrapped transport when denied")
	}
	if !errors.Is(err, doctor.ErrCircuitOpen) {
		t.Fatalf("expected a circuit-open error, got %v", err)
	}
	if len(guard.called) != 0 {
		t.Fatal("RecordCalled must not be invoked when the call is denied")
	}
}

func TestRoundTripperClassifiesServerErrorAsSysExc(t *testing.T) {
	guard := &fakeGuardian{admit: true}
	rt := &RoundTripper{
		Next: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusBadGateway}, nil
		}),
		Guard:   guard,
		Service: "payments",
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.com/charge", nil)
	if _, err := rt.RoundTrip(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if guard.recordedAs != "sys_exc" {
		t.Fatalf("recordedAs = %q, want sys_exc", guard.recordedAs)
	}
	if len(guard.called) != 1 {
		t.Fatal("RecordCalled should be invoked exactly once for an admitted call")
	}
}

func TestRoundTripperClassifiesClientErrorAsUserExc(t *testing.T) {
	guard := &fakeGuardian{admit: true}
	rt := &RoundTripper{
		Next: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusNotFound}, nil
		}),
		Guard:   guard,
		Service: "payments",
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.com/charge", nil)
	if _, err := rt.RoundTrip(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if guard.recordedAs != "user_exc" {
		t.Fatalf("recordedAs = %q, want user_exc", guard.recordedAs)
	}
}

func TestRoundTripperClassifiesSuccessAsOK(t *testing.T) {
	guard := &fakeGuardian{admit: true}
	rt := &RoundTripper{
		Next: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusOK}, nil
		}),
		Guard:   guard,
		Service: "payments",
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.com/charge", nil)
	if _, err := rt.RoundTrip(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if guard.recordedAs != "ok" {
		t.Fatalf("recordedAs = %q, want ok", guard.recordedAs)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
