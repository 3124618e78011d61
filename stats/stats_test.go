package stats

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestAlertQueueConcurrentPush(t *testing.T) {
	var q AlertQueue
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push(Message{Severity: Warning, Text: fmt.Sprintf("%d-%d", i, j)})
			}
		}(i)
	}
	wg.Wait()

	sink := NewMessageLog(nil)
	if n := q.DrainTo(sink); n != 1000 {
		t.Fatalf("expected 1000 drained messages; got %d", n)
	}
	if n := q.DrainTo(sink); n != 0 {
		t.Fatalf("expected queue to be empty; drained %d", n)
	}
	if got := sink.Count(Warning); got != 1000 {
		t.Fatalf("expected 1000 warnings; got %d", got)
	}
	if got := sink.Count(Error); got != 0 {
		t.Fatalf("expected no errors; got %d", got)
	}
}

func TestUnmappedTexelPercentage(t *testing.T) {
	type spec struct {
		total, unmapped []int
		exp             float32
	}
	specs := []spec{
		{nil, nil, 0},
		{[]int{100}, []int{25}, 25},
		{[]int{100, 300}, []int{0, 100}, 25},
	}

	for index, s := range specs {
		var st Statistics
		for i := range s.total {
			st.AddMappingTexels(s.total[i], s.unmapped[i])
		}
		if got := st.UnmappedTexelPercentage(); got != s.exp {
			t.Fatalf("[spec %d] expected %f; got %f", index, s.exp, got)
		}
		if st.NumImportedMappings != len(s.total) {
			t.Fatalf("[spec %d] expected %d imported mappings; got %d", index, len(s.total), st.NumImportedMappings)
		}
	}
}

func TestTables(t *testing.T) {
	st := Statistics{NumMappings: 4}
	if out := st.Table(); !strings.Contains(out, "Mappings") || !strings.Contains(out, "TOTAL") {
		t.Fatalf("unexpected statistics table:\n%s", out)
	}

	l := NewMessageLog(nil)
	l.Addf(CriticalError, "worker crashed")
	if out := l.Table(); !strings.Contains(out, "worker crashed") || !strings.Contains(out, "critical") {
		t.Fatalf("unexpected message table:\n%s", out)
	}
}
