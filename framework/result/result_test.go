package result

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultSymbols(t *testing.T) {
	assert.Equal(t, "✓", Succeeded.Symbol())
	assert.Equal(t, "✕", Failed.Symbol())
	assert.Equal(t, "?", Unsupported.Symbol())
	assert.False(t, Result("unknown").Valid())
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "quic-go/ngtcp2/transfer", Key{"quic-go", "ngtcp2", "transfer"}.String())
}

func TestMatrixCellIsWrittenOnce(t *testing.T) {
	m := NewMatrix()
	key := Key{"s", "c", "handshake"}
	require.NoError(t, m.SetTest(key, Failed))

	err := m.SetTest(key, Succeeded)
	var already AlreadyRecordedError
	require.True(t, errors.As(err, &already))
	assert.Equal(t, key, already.Key)

	r, ok := m.Test(key)
	assert.True(t, ok)
	assert.Equal(t, Failed, r)

	assert.Error(t, m.SetMeasurement(key, MeasurementResult{Result: Succeeded}))
	assert.Equal(t, 1, m.Len())
}

func TestMatrixRejectsInvalidResult(t *testing.T) {
	m := NewMatrix()
	assert.Error(t, m.SetTest(Key{"s", "c", "t"}, Result("")))
	assert.Error(t, m.SetMeasurement(Key{"s", "c", "g"}, MeasurementResult{}))
	assert.Equal(t, 0, m.Len())
}

func TestMatrixKeepsWriteOrderAndCounts(t *testing.T) {
	m := NewMatrix()
	keys := []Key{{"a", "b", "handshake"}, {"a", "b", "transfer"}, {"a", "b", "goodput"}}
	require.NoError(t, m.SetTest(keys[0], Succeeded))
	require.NoError(t, m.SetTest(keys[1], Failed))
	require.NoError(t, m.SetMeasurement(keys[2], MeasurementResult{Unsupported, TransferFailedSkip.Error()}))

	assert.Equal(t, keys, m.Keys())
	assert.Equal(t, map[Result]int{Succeeded: 1, Failed: 1, Unsupported: 1}, m.Counts())
	assert.Equal(t, []Key{keys[1]}, m.Failures())
	assert.False(t, m.OK())

	mr, ok := m.Measurement(keys[2])
	assert.True(t, ok)
	assert.Equal(t, "Test skipped because the transfer test failed.", mr.Details)
}

func TestFormatMeasurementSingleValue(t *testing.T) {
	assert.Equal(t, "123 Mbps", FormatMeasurement([]float64{123}, "Mbps"))
}

func TestFormatMeasurementRepeatedValues(t *testing.T) {
	assert.Equal(t, "103 (± 12) Mbps", FormatMeasurement([]float64{100, 110, 120, 90, 95}, "Mbps"))
}

func TestFormatMeasurementNoValues(t *testing.T) {
	assert.Equal(t, "", FormatMeasurement(nil, "kbps"))
}

func TestSampleStdDevUndefinedForOneValue(t *testing.T) {
	_, ok := SampleStdDev([]float64{42})
	assert.False(t, ok)

	s, ok := SampleStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.True(t, ok)
	assert.InDelta(t, 2.138, s, 0.001)
}

func TestClassify(t *testing.T) {
	r, detail := Classify(nil)
	assert.Equal(t, Succeeded, r)
	assert.Equal(t, "", detail)

	r, detail = Classify(fmt.Errorf("server exited with code 127: %w", ErrUnsupported))
	assert.Equal(t, Unsupported, r)
	assert.Contains(t, detail, "127")

	r, detail = Classify(TransferFailedSkip)
	assert.Equal(t, Unsupported, r)
	assert.Equal(t, TransferFailedSkip.Reason, detail)

	r, _ = Classify(errors.New("trace file missing"))
	assert.Equal(t, Failed, r)
}
