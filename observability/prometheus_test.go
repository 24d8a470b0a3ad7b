package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/doctor-go/doctor/breaker"
)

type fakeRegistrar struct {
	lock, unlock, tested, testedOK, testedBad []func(breaker.TestContext)
}

func (f *fakeRegistrar) OnLock(fn func(breaker.TestContext))      { f.lock = append(f.lock, fn) }
func (f *fakeRegistrar) OnUnlock(fn func(breaker.TestContext))    { f.unlock = append(f.unlock, fn) }
func (f *fakeRegistrar) OnTested(fn func(breaker.TestContext))    { f.tested = append(f.tested, fn) }
func (f *fakeRegistrar) OnTestedOK(fn func(breaker.TestContext))  { f.testedOK = append(f.testedOK, fn) }
func (f *fakeRegistrar) OnTestedBad(fn func(breaker.TestContext)) { f.testedBad = append(f.testedBad, fn) }

func counterValue(t *testing.T, c *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.WithLabelValues(labels...).Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestPrometheusCollectorCountsTestedAdmitAndDeny(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)
	f := &fakeRegistrar{}
	c.Attach(f)

	okCtx := breaker.TestContext{Service: "payments", Endpoint: "charge", Admit: true, Status: breaker.Unlocked}
	badCtx := breaker.TestContext{Service: "payments", Endpoint: "charge", Admit: false, Status: breaker.Locked}

	for _, fn := range f.tested {
		fn(okCtx)
	}
	for _, fn := range f.testedOK {
		fn(okCtx)
	}
	for _, fn := range f.tested {
		fn(badCtx)
	}
	for _, fn := range f.testedBad {
		fn(badCtx)
	}

	if got := counterValue(t, c.tested, "payments.charge"); got != 2 {
		t.Fatalf("tested count = %v, want 2", got)
	}
	if got := counterValue(t, c.admitted, "payments.charge"); got != 1 {
		t.Fatalf("admitted count = %v, want 1", got)
	}
	if got := counterValue(t, c.denied, "payments.charge"); got != 1 {
		t.Fatalf("denied count = %v, want 1", got)
	}
}

func TestPrometheusCollectorRecordsLockAndUnlockDirection(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)
	f := &fakeRegistrar{}
	c.Attach(f)

	ctx := breaker.TestContext{Service: "payments", Endpoint: "charge"}
	for _, fn := range f.lock {
		fn(ctx)
	}
	for _, fn := range f.unlock {
		fn(ctx)
	}

	if got := counterValue(t, c.lockEvents, "payments.charge", "lock"); got != 1 {
		t.Fatalf("lock transitions = %v, want 1", got)
	}
	if got := counterValue(t, c.lockEvents, "payments.charge", "unlock"); got != 1 {
		t.Fatalf("unlock transitions = %v, want 1", got)
	}
}

func TestPrometheusCollectorDoesNotUseDefaultRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusCollector(reg)

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather default registry: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == "doctor_tested_total" {
			t.Fatal("collector must register against the supplied registry, not the global default")
		}
	}
}
