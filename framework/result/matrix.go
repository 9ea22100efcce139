package result

import (
	"fmt"
	"sync"
	"time"
)

// AlreadyRecordedError is returned when a cell of the matrix is written a second time. The
// original value is kept.
type AlreadyRecordedError struct {
	Key Key
}

func (e AlreadyRecordedError) Error() string {
	return fmt.Sprintf("result for %s was already recorded", e.Key)
}

// Matrix accumulates test results and measurement results for one run. Every cell is written
// at most once. The scheduler is the only writer; the lock exists because the status server
// reads the matrix while the run is in progress.
type Matrix struct {
	StartTime    time.Time
	EndTime      time.Time
	tests        map[Key]Result
	measurements map[Key]MeasurementResult
	order        []Key
	lock         sync.RWMutex
}

func NewMatrix() *Matrix {
	return &Matrix{
		StartTime:    time.Now(),
		tests:        make(map[Key]Result),
		measurements: make(map[Key]MeasurementResult),
	}
}

// SetTest records the result of a test case.
func (m *Matrix) SetTest(key Key, r Result) error {
	if !r.Valid() {
		return fmt.Errorf("invalid result %q for %s", r, key)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.recorded(key) {
		return AlreadyRecordedError{key}
	}
	m.tests[key] = r
	m.order = append(m.order, key)
	return nil
}

// SetMeasurement records the result of a measurement.
func (m *Matrix) SetMeasurement(key Key, r MeasurementResult) error {
	if !r.Result.Valid() {
		return fmt.Errorf("invalid result %q for %s", r.Result, key)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.recorded(key) {
		return AlreadyRecordedError{key}
	}
	m.measurements[key] = r
	m.order = append(m.order, key)
	return nil
}

func (m *Matrix) recorded(key Key) bool {
	if _, ok := m.tests[key]; ok {
		return true
	}
	_, ok := m.measurements[key]
	return ok
}

func (m *Matrix) Test(key Key) (Result, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	r, ok := m.tests[key]
	return r, ok
}

func (m *Matrix) Measurement(key Key) (MeasurementResult, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	r, ok := m.measurements[key]
	return r, ok
}

// Keys returns every recorded key in the order it was written.
func (m *Matrix) Keys() []Key {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return append([]Key(nil), m.order...)
}

// Len is the number of recorded cells.
func (m *Matrix) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.order)
}

// Counts returns the number of cells per result, tests and measurements together.
func (m *Matrix) Counts() map[Result]int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	counts := make(map[Result]int)
	for _, r := range m.tests {
		counts[r]++
	}
	for _, r := range m.measurements {
		counts[r.Result]++
	}
	return counts
}

// Failures returns the keys of all failed cells in the order they were written.
func (m *Matrix) Failures() []Key {
	m.lock.RLock()
	defer m.lock.RUnlock()
	var ret []Key
	for _, k := range m.order {
		if r, ok := m.tests[k]; ok && r == Failed {
			ret = append(ret, k)
		}
		if r, ok := m.measurements[k]; ok && r.Result == Failed {
			ret = append(ret, k)
		}
	}
	return ret
}

// OK returns true if no cell failed.
func (m *Matrix) OK() bool {
	return len(m.Failures()) == 0
}
