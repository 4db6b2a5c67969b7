package resilience

import (
	"errors"
	"testing"
	"time"
)

var errQuota = errors.New("quota")

func newGroup(names ...string) *FallbackGroup[string] {
	fg := NewFallbackGroup[string](FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	for _, n := range names {
		fg.Add(n, n)
	}
	return fg
}

func TestExecuteWithResult_FirstSuccess(t *testing.T) {
	fg := newGroup("a", "b")
	got, err := ExecuteWithResult(fg, func(v string) (string, error) { return v, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "a" {
		t.Fatalf("got %q, want a", got)
	}
}

func TestExecuteWithResult_Failover(t *testing.T) {
	fg := newGroup("a", "b", "c")
	var tried []string
	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		tried = append(tried, v)
		if v != "c" {
			return "", errTest
		}
		return v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "c" || len(tried) != 3 {
		t.Fatalf("got %q after %v", got, tried)
	}
}

func TestExecuteWithResult_AllFailKeepsAttempts(t *testing.T) {
	fg := newGroup("a", "b")
	_, err := ExecuteWithResult(fg, func(v string) (int, error) {
		if v == "a" {
			return 0, errQuota
		}
		return 0, errTest
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errQuota) || !errors.Is(err, errTest) {
		t.Fatalf("attempt errors not reachable through errors.Is: %v", err)
	}
	var afe *AllFailedError
	if !errors.As(err, &afe) {
		t.Fatalf("err is not *AllFailedError")
	}
	if len(afe.Attempts) != 2 || afe.Attempts[0].Name != "a" {
		t.Fatalf("attempts = %+v", afe.Attempts)
	}
	if afe.Every(errQuota) {
		t.Fatal("Every(errQuota) = true with mixed failures")
	}
}

func TestAllFailedError_Every(t *testing.T) {
	tests := []struct {
		name     string
		attempts []Attempt
		want     bool
	}{
		{"all quota", []Attempt{{"a", errQuota}, {"b", errQuota}}, true},
		{"mixed", []Attempt{{"a", errQuota}, {"b", errTest}}, false},
		{"skipped ignored", []Attempt{{"a", ErrCircuitOpen}, {"b", errQuota}}, true},
		{"all skipped", []Attempt{{"a", ErrCircuitOpen}}, false},
		{"none", nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := &AllFailedError{Attempts: tc.attempts}
			if got := e.Every(errQuota); got != tc.want {
				t.Fatalf("Every = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestExecuteWithResult_SkipsOpenBreaker(t *testing.T) {
	fg := newGroup("a", "b")
	for range 2 {
		_, _ = ExecuteWithResult(fg, func(v string) (string, error) {
			if v == "a" {
				return "", errTest
			}
			return v, nil
		})
	}

	var tried []string
	_, err := ExecuteWithResult(fg, func(v string) (string, error) {
		tried = append(tried, v)
		return v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tried) != 1 || tried[0] != "b" {
		t.Fatalf("tried = %v, want [b]", tried)
	}
}
