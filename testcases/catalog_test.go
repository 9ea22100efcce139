package testcases

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogNamesAndAbbreviationsAreUnique(t *testing.T) {
	names := make(map[string]bool)
	abbrs := make(map[string]bool)
	for _, tc := range Catalog() {
		assert.False(t, names[tc.Name], "duplicate name %s", tc.Name)
		assert.False(t, abbrs[tc.Abbreviation], "duplicate abbreviation %s", tc.Abbreviation)
		names[tc.Name] = true
		abbrs[tc.Abbreviation] = true
	}
}

func TestCatalogListsTestsBeforeMeasurements(t *testing.T) {
	seenMeasurement := false
	for _, tc := range Catalog() {
		if tc.IsMeasurement() {
			seenMeasurement = true
			assert.GreaterOrEqual(t, tc.Repetitions, 1, tc.Name)
			assert.NotEmpty(t, tc.Unit, tc.Name)
		} else {
			assert.False(t, seenMeasurement, "test %s listed after a measurement", tc.Name)
			assert.Equal(t, TypeTest, tc.Type)
		}
		assert.NotEmpty(t, tc.Scenario, tc.Name)
		assert.NotEmpty(t, tc.FileSizes, tc.Name)
	}
}

func TestCatalogHasTransferBaseline(t *testing.T) {
	tc, ok := Lookup("transfer")
	require.True(t, ok)
	assert.Equal(t, KindTransfer, tc.Kind)
	assert.Equal(t, "D", tc.Abbreviation)
}

func TestLookupByAbbreviation(t *testing.T) {
	tc, ok := Lookup("CM")
	require.True(t, ok)
	assert.Equal(t, "connectionmigration", tc.Name)

	_, ok = Lookup("nope")
	assert.False(t, ok)
}

func TestSelectKeepsCatalogOrder(t *testing.T) {
	selected, err := Select("goodput, H,transfer,handshake")
	require.NoError(t, err)
	var names []string
	for _, tc := range selected {
		names = append(names, tc.Name)
	}
	assert.Equal(t, []string{"handshake", "transfer", "goodput"}, names)
}

func TestSelectKeywords(t *testing.T) {
	all, err := Select("")
	require.NoError(t, err)
	assert.Len(t, all, len(Tests())+len(Measurements()))

	tests, err := Select("onlyTests")
	require.NoError(t, err)
	assert.Len(t, tests, len(Tests()))

	measurements, err := Select("onlyMeasurements")
	require.NoError(t, err)
	assert.Len(t, measurements, len(Measurements()))
	for _, tc := range measurements {
		assert.True(t, tc.IsMeasurement())
	}
}

func TestSelectUnknown(t *testing.T) {
	_, err := Select("handshake,bogus")
	assert.Error(t, err)
}

func TestEndpointTestNames(t *testing.T) {
	tc, _ := Lookup("handshakeloss")
	assert.Equal(t, "transfer", tc.ServerTestName())
	assert.Equal(t, "multiconnect", tc.ClientTestName())

	tc, _ = Lookup("retry")
	assert.Equal(t, "retry", tc.ServerTestName())
	assert.Equal(t, "retry", tc.ClientTestName())
}

func TestRunTimeoutAndRuns(t *testing.T) {
	tc, _ := Lookup("handshake")
	assert.Equal(t, DefaultTimeout, tc.RunTimeout())
	assert.Equal(t, 1, tc.Runs())

	tc, _ = Lookup("goodput")
	assert.Equal(t, 5, tc.Runs())
}

func TestGoodputValue(t *testing.T) {
	tc, _ := Lookup("goodput")
	v := tc.Value(10 * time.Second)
	require.True(t, v.IsDefined())
	assert.InDelta(t, 8*float64(10*MB)/10000, v.Value(), 0.001)

	assert.False(t, tc.Value(0).IsDefined())

	handshake, _ := Lookup("handshake")
	assert.False(t, handshake.Value(time.Second).IsDefined())
}
