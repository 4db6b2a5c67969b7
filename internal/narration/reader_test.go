package narration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eimkon/eimkon/pkg/audio"
	audiomock "github.com/eimkon/eimkon/pkg/audio/mock"
	"github.com/eimkon/eimkon/pkg/provider/tts/mock"
)

// waitCalls polls until out has at least n scheduled chunks.
func waitCalls(t *testing.T, out *audiomock.Output, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(out.Calls()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d scheduled chunks, have %d", n, len(out.Calls()))
		}
		time.Sleep(time.Millisecond)
	}
}

type readResult struct {
	next int
	err  error
}

func TestSpeakSections_InOrderWithPrefetch(t *testing.T) {
	t.Parallel()
	out := &audiomock.Output{}
	p := &mock.Provider{Audio: []byte{1, 0, 2, 0}}
	svc := New(p)
	r := NewReader(svc, audio.NewOneShot(out))
	sections := []string{"Kirish. Salom", "Asosiy. Matn", "Xulosa. Tamom"}

	var mu sync.Mutex
	var seen []int
	res := make(chan readResult, 1)
	go func() {
		next, err := r.SpeakSections(context.Background(), sections, 0, func(i int) {
			mu.Lock()
			seen = append(seen, i)
			mu.Unlock()
		})
		res <- readResult{next, err}
	}()

	for i := range sections {
		waitCalls(t, out, i+1)
		if i == 0 && len(out.Calls()) != 1 {
			t.Fatal("second section started before the first finished")
		}
		out.Finish(i)
	}

	select {
	case got := <-res:
		if got.err != nil || got.next != 0 {
			t.Fatalf("SpeakSections = (%d, %v), want (0, nil)", got.next, got.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SpeakSections did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || seen[0] != 0 || seen[1] != 1 || seen[2] != 2 {
		t.Errorf("section order = %v, want [0 1 2]", seen)
	}
	if p.CallCount() != 3 {
		t.Errorf("backend calls = %d, want 3 (prefetch must share the cache)", p.CallCount())
	}
}

func TestSpeakSections_StopsAtUnavailableSection(t *testing.T) {
	t.Parallel()
	out := &audiomock.Output{}
	cache := NewMemoryCache()
	cache.Put("bir", []byte{1, 0})
	p := &mock.Provider{Err: errors.New("boom")}
	r := NewReader(New(p, WithCache(cache)), audio.NewOneShot(out))

	res := make(chan readResult, 1)
	go func() {
		next, err := r.SpeakSections(context.Background(), []string{"bir", "ikki", "uch"}, 0, nil)
		res <- readResult{next, err}
	}()

	waitCalls(t, out, 1)
	out.Finish(0)

	select {
	case got := <-res:
		if got.next != 1 || !errors.Is(got.err, ErrUnavailable) {
			t.Fatalf("SpeakSections = (%d, %v), want (1, ErrUnavailable)", got.next, got.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SpeakSections did not return")
	}
	if n := len(out.Calls()); n != 1 {
		t.Errorf("schedule calls = %d, want 1", n)
	}
}

func TestSpeakSections_CancelStopsPlayback(t *testing.T) {
	t.Parallel()
	out := &audiomock.Output{}
	p := &mock.Provider{Audio: []byte{1, 0}}
	r := NewReader(New(p), audio.NewOneShot(out))

	ctx, cancel := context.WithCancel(context.Background())
	res := make(chan readResult, 1)
	go func() {
		next, err := r.SpeakSections(ctx, []string{"bir", "ikki", "uch"}, 1, nil)
		res <- readResult{next, err}
	}()

	waitCalls(t, out, 1)
	cancel()

	select {
	case got := <-res:
		if got.next != 1 || !errors.Is(got.err, context.Canceled) {
			t.Fatalf("SpeakSections = (%d, %v), want (1, context.Canceled)", got.next, got.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SpeakSections did not return")
	}
	if !out.Calls()[0].Source.Stopped() {
		t.Error("playing section was not stopped")
	}
}
