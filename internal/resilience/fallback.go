package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrAllFailed is matched by every [*AllFailedError].
var ErrAllFailed = errors.New("resilience: all variants failed")

// Attempt is the outcome of trying one entry of a [FallbackGroup].
type Attempt struct {
	// Name is the entry name.
	Name string
	// Err is the failure. [ErrCircuitOpen] means the entry was skipped.
	Err error
}

// Skipped reports whether the entry was skipped by an open breaker.
func (a Attempt) Skipped() bool { return errors.Is(a.Err, ErrCircuitOpen) }

// AllFailedError is returned when every entry of a [FallbackGroup] failed or
// was skipped. It keeps every attempt so callers can classify the overall
// failure.
type AllFailedError struct {
	Attempts []Attempt
}

func (e *AllFailedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", a.Name, a.Err)
	}
	return "resilience: all variants failed: " + strings.Join(parts, "; ")
}

// Is reports whether target is [ErrAllFailed].
func (e *AllFailedError) Is(target error) bool { return target == ErrAllFailed }

// Unwrap exposes every attempt error to errors.Is and errors.As.
func (e *AllFailedError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a.Err
	}
	return errs
}

// Every reports whether at least one entry was actually tried and every tried
// entry failed with an error matching target. Skipped entries are ignored.
func (e *AllFailedError) Every(target error) bool {
	tried := 0
	for _, a := range e.Attempts {
		if a.Skipped() {
			continue
		}
		tried++
		if !errors.Is(a.Err, target) {
			return false
		}
	}
	return tried > 0
}

// FallbackConfig configures the per-entry circuit breaker created for each
// entry in a [FallbackGroup].
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// fallbackEntry pairs a value with its dedicated circuit breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds an ordered list of interchangeable values (providers,
// model variants). Calls try each entry in order until one succeeds; entries
// with an open breaker are skipped.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates an empty [FallbackGroup].
func NewFallbackGroup[T any](cfg FallbackConfig) *FallbackGroup[T] {
	return &FallbackGroup[T]{cfg: cfg}
}

// Add appends an entry. Entries are tried in the order they are added. Add
// must not be called concurrently with execution.
func (fg *FallbackGroup[T]) Add(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Len returns the number of entries.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// ExecuteWithResult tries fn against each entry until one succeeds. If every
// entry fails, the returned error is an [*AllFailedError]. This is a
// package-level function because Go does not support method-level type
// parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var zero R
	attempts := make([]Attempt, 0, len(fg.entries))
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		attempts = append(attempts, Attempt{Name: entry.name, Err: err})
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping variant (circuit open)", "variant", entry.name)
		} else {
			slog.Warn("variant failed, trying next", "variant", entry.name, "err", err)
		}
	}
	return zero, &AllFailedError{Attempts: attempts}
}
