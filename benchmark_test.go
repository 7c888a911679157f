package quartz

import (
	"fmt"
	"testing"
	"time"
)

func BenchmarkParseCronExpression(b *testing.B) {
	exprs := []string{
		"0 0 12 * * ?",
		"0 15 10 ? * MON-FRI",
		"0 0/5 14,18 * * ?",
		"0 0 10 ? * 6#3",
		"TZ=Europe/Berlin 0 30 8 LW * ? 2025-2030",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ParseCronExpression(exprs[i%len(exprs)]); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkNextFireTimeAfter(b *testing.B) {
	cases := []struct {
		name string
		expr string
	}{
		{"every_second", "* * * ? * *"},
		{"weekdays", "0 15 10 ? * MON-FRI"},
		{"nth_weekday", "0 0 10 ? * 6#5"},
		{"last_weekday_of_month", "0 0 18 LW * ?"},
		{"leap_day", "0 0 0 29 2 ?"},
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, c := range cases {
		expr := MustParseCronExpression(c.expr).WithLocation(time.UTC)
		b.Run(c.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_ = expr.NextFireTimeAfter(start)
			}
		})
	}
}

// BenchmarkStoreCycle measures one acquire, fire and complete round trip
// with many waiting triggers.
func BenchmarkStoreCycle(b *testing.B) {
	for _, n := range []int{100, 10000} {
		b.Run(fmt.Sprintf("triggers_%d", n), func(b *testing.B) {
			clock := NewFakeClock(t0)
			s := NewMemoryStore(WithStoreClock(clock), WithStoreLogger(DiscardLogger), WithMisfireThreshold(time.Duration(1<<62)))
			job := NewJob("noop").WithIdentity("j", "g").StoreDurably().MustBuild()
			if err := s.StoreJob(job, false); err != nil {
				b.Fatal(err)
			}
			for i := range n {
				start := t0.Add(time.Duration(i) * time.Millisecond)
				if err := s.StoreTrigger(everyMinute(fmt.Sprintf("t%d", i), job.Key(), start), false); err != nil {
					b.Fatal(err)
				}
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				acquired := s.AcquireNextTriggers(t0.Add(time.Duration(1<<60)), 1, 0)
				if len(acquired) != 1 {
					b.Fatalf("acquired %d triggers", len(acquired))
				}
				for _, bundle := range s.TriggersFired(acquired) {
					s.TriggeredJobComplete(bundle.Trigger, bundle.Job, InstructionNoop)
				}
			}
		})
	}
}

func BenchmarkHeap(b *testing.B) {
	var h triggerHeap
	entries := make([]*triggerWrapper, 1000)
	for i := range entries {
		entries[i] = newHeapEntry(fmt.Sprintf("t%d", i), t0.Add(time.Duration(i%97)*time.Second), i%10)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, e := range entries {
			h.add(e)
		}
		for h.popMin() != nil {
		}
	}
}
