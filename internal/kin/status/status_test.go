package status_test

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bdobrica/kin/internal/kin/status"
)

func TestConsole_WritesOneLinePerStatus(t *testing.T) {
	var buf bytes.Buffer
	c := status.NewConsole(&buf, nil)

	c.Append("local memory db initialized")
	c.Append("[asr] hey kin")

	want := "local memory db initialized\n[asr] hey kin\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("console output mismatch (-want +got):\n%s", diff)
	}
}

func TestConsole_ConcurrentAppend(t *testing.T) {
	var buf bytes.Buffer
	c := status.NewConsole(&buf, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Append(fmt.Sprintf("line %d", i))
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 20 {
		t.Fatalf("expected 20 intact lines, got %d", len(lines))
	}
}

func TestMulti_FansOut(t *testing.T) {
	a, b := status.NewRing(4), status.NewRing(4)
	status.Multi{a, nil, b}.Append("hello")

	for i, r := range []*status.Ring{a, b} {
		if diff := cmp.Diff([]string{"hello"}, r.Lines()); diff != "" {
			t.Errorf("sink %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestFunc(t *testing.T) {
	var got []string
	status.Func(func(l string) { got = append(got, l) }).Append("x")
	if len(got) != 1 || got[0] != "x" {
		t.Fatalf("unexpected lines %v", got)
	}
	status.Discard.Append("dropped")
}

func TestRing_WrapsAndKeepsOrder(t *testing.T) {
	r := status.NewRing(3)
	for i := 0; i < 5; i++ {
		r.Append(fmt.Sprintf("%d", i))
	}

	if diff := cmp.Diff([]string{"2", "3", "4"}, r.Lines()); diff != "" {
		t.Errorf("ring mismatch (-want +got):\n%s", diff)
	}
	if r.Total() != 5 {
		t.Errorf("expected total 5, got %d", r.Total())
	}
}

func TestRing_PartiallyFilled(t *testing.T) {
	r := status.NewRing(0)
	r.Append("only")
	if diff := cmp.Diff([]string{"only"}, r.Lines()); diff != "" {
		t.Errorf("ring mismatch (-want +got):\n%s", diff)
	}
}
