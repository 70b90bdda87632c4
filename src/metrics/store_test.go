package metrics

import (
	"math/rand"
	"sync"
	"testing"
)

func TestLatestTracksLastRecord(t *testing.T) {
	s := NewStore()
	rng := rand.New(rand.NewSource(42))
	names := []string{"loss", "accuracy", "val_loss"}
	last := map[string]float64{}
	for i := 0; i < 500; i++ {
		n := names[rng.Intn(len(names))]
		v := rng.Float64()
		s.Record(n, int64(i), v)
		last[n] = v
		got, ok := s.Latest(n)
		if !ok || got != v {
			t.Fatalf("step %d: Latest(%q)=%v,%v want %v", i, n, got, ok, v)
		}
	}
	for n, want := range last {
		if got, _ := s.Latest(n); got != want {
			t.Fatalf("Latest(%q)=%v want %v", n, got, want)
		}
	}
}

func TestLatestUnavailable(t *testing.T) {
	s := NewStore()
	if _, ok := s.Latest("missing"); ok {
		t.Fatalf("expected unavailable for unknown metric")
	}
	if got := s.FormatLatest("missing"); got != Unavailable {
		t.Fatalf("FormatLatest unknown = %q want %q", got, Unavailable)
	}
	s.Declare("empty")
	if _, ok := s.Latest("empty"); ok {
		t.Fatalf("expected unavailable for declared but empty metric")
	}
	if names := s.Names(); len(names) != 1 || names[0] != "empty" {
		t.Fatalf("declared name missing: %v", names)
	}
}

func TestNamesFirstSeenOrder(t *testing.T) {
	s := NewStore()
	s.Record("b", 0, 1)
	s.Record("a", 0, 1)
	s.Record("b", 1, 2)
	s.Record("c", 0, 1)
	s.Record("a", 1, 2)
	want := []string{"b", "a", "c"}
	got := s.Names()
	if len(got) != len(want) {
		t.Fatalf("names = %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names = %v want %v", got, want)
		}
	}
	if s.Count() != 3 {
		t.Fatalf("count = %d", s.Count())
	}
}

func TestSeriesKeepsProducerOrder(t *testing.T) {
	s := NewStore()
	steps := []int64{3, 1, 2, 2}
	for i, st := range steps {
		s.Record("loss", st, float64(i))
	}
	ser := s.Series("loss")
	for i, st := range steps {
		if ser[i].Step != st || ser[i].Value != float64(i) {
			t.Fatalf("sample %d = %+v", i, ser[i])
		}
	}
	// Returned slice is a copy.
	ser[0].Value = 99
	if s.Series("loss")[0].Value == 99 {
		t.Fatalf("Series leaked internal storage")
	}
}

func TestFormatValueFourDecimals(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0.5, "0.5000"},
		{1, "1.0000"},
		{0.123456, "0.1235"},
		{-2.5, "-2.5000"},
	}
	for _, c := range cases {
		if got := FormatValue(c.in, true); got != c.want {
			t.Fatalf("FormatValue(%v) = %q want %q", c.in, got, c.want)
		}
	}
}

func TestLatestTable(t *testing.T) {
	s := NewStore()
	s.Declare("pending")
	s.Record("loss", 0, 1.0)
	s.Record("loss", 1, 0.5)
	rows := s.LatestTable()
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].Name != "pending" || rows[0].Value != Unavailable || rows[0].Points != 0 {
		t.Fatalf("pending row = %+v", rows[0])
	}
	if rows[1].Name != "loss" || rows[1].Value != "0.5000" || rows[1].Step != 1 || rows[1].Points != 2 {
		t.Fatalf("loss row = %+v", rows[1])
	}
}

func TestConcurrentReaders(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = s.Names()
					_, _ = s.Latest("loss")
					_ = s.Series("loss")
				}
			}
		}()
	}
	for i := 0; i < 1000; i++ {
		s.Record("loss", int64(i), float64(i))
	}
	close(stop)
	wg.Wait()
	if s.Len("loss") != 1000 {
		t.Fatalf("len = %d", s.Len("loss"))
	}
}
