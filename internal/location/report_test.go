package location

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReportDeliversNextFix(t *testing.T) {
	report := NewReport()

	type result struct {
		sample Sample
		err    error
	}
	done := make(chan result, 1)
	go func() {
		s, err := report.Current(context.Background())
		done <- result{s, err}
	}()

	// Give the waiter time to register before submitting.
	time.Sleep(10 * time.Millisecond)
	report.Submit(Sample{Lat: 3.58, Lng: 98.67, AccuracyM: 4})

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("current: %v", res.err)
		}
		if res.sample.Lat != 3.58 || res.sample.Lng != 98.67 {
			t.Fatalf("unexpected sample: %+v", res.sample)
		}
	case <-time.After(time.Second):
		t.Fatalf("fix not delivered")
	}
}

func TestReportNeverServesStaleFix(t *testing.T) {
	report := NewReport()
	report.Submit(Sample{Lat: 1, Lng: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := report.Current(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("a fix submitted before the call must not satisfy it, got %v", err)
	}
}

func TestReportFansOut(t *testing.T) {
	report := NewReport()
	got := make(chan Sample, 2)
	for i := 0; i < 2; i++ {
		go func() {
			s, err := report.Current(context.Background())
			if err == nil {
				got <- s
			}
		}()
	}
	time.Sleep(10 * time.Millisecond)
	report.Submit(Sample{Lat: 2, Lng: 3})

	for i := 0; i < 2; i++ {
		select {
		case s := <-got:
			if s.Lat != 2 || s.Lng != 3 {
				t.Fatalf("unexpected sample: %+v", s)
			}
		case <-time.After(time.Second):
			t.Fatalf("waiter %d starved", i)
		}
	}
}
