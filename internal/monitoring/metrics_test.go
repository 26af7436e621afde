package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNilMonitorIsNoop(t *testing.T) {
	var m *Monitor
	assert.NotPanics(t, func() {
		m.TrackOperation("create", "ok", time.Now())
		m.TrackReserved(3)
		m.SetPixelStates(1, 2, 3)
	})
}

func TestMonitorRecords(t *testing.T) {
	m := NewMonitor()
	assert.NotPanics(t, func() {
		m.TrackOperation("settle", "ok", time.Now().Add(-time.Millisecond))
		m.TrackReserved(2)
		m.SetPixelStates(999_998, 1, 1)
	})
}
