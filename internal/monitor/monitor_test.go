package monitor_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/persistorai/graphrouter/internal/monitor"
)

func TestSnapshot(t *testing.T) {
	t.Parallel()

	m := monitor.New("test", 0)

	m.Record("get_node", 1*time.Millisecond, nil)
	m.Record("get_node", 2*time.Millisecond, nil)
	m.Record("get_node", 3*time.Millisecond, nil)
	m.Record("get_node", 6*time.Millisecond, errors.New("boom"))

	st, ok := m.Snapshot()["get_node"]
	if !ok {
		t.Fatal("get_node missing from snapshot")
	}

	if st.Count != 4 || st.Errors != 1 || st.ErrorRate != 0.25 {
		t.Errorf("unexpected counters %+v", st)
	}

	if st.AvgMs != 3 || st.MedianMs != 2.5 || st.MinMs != 1 || st.MaxMs != 6 {
		t.Errorf("unexpected latency stats %+v", st)
	}

	if math.Abs(st.StdDevMs-math.Sqrt(14.0/3)) > 1e-9 {
		t.Errorf("std dev = %v", st.StdDevMs)
	}
}

func TestWindowKeepsNewestSamples(t *testing.T) {
	t.Parallel()

	m := monitor.New("test", 2)

	m.Record("query", 100*time.Millisecond, nil)
	m.Record("query", 2*time.Millisecond, nil)
	m.Record("query", 4*time.Millisecond, nil)

	st := m.Snapshot()["query"]
	if st.Count != 3 || st.MaxMs != 4 || st.MinMs != 2 {
		t.Errorf("expected the oldest sample evicted, got %+v", st)
	}
}

func TestTrack(t *testing.T) {
	t.Parallel()

	m := monitor.New("test", 0)

	run := func(fail bool) (err error) {
		defer m.Track("create_node")(&err)

		if fail {
			return errors.New("invalid")
		}

		return nil
	}

	_ = run(false)
	_ = run(true)

	st := m.Snapshot()["create_node"]
	if st.Count != 2 || st.Errors != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	m := monitor.New("test", 0)
	m.Record("delete_node", time.Millisecond, nil)
	m.Reset()

	if len(m.Snapshot()) != 0 {
		t.Error("Reset must clear every operation")
	}
}
