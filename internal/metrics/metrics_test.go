package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(tapOutcomes.WithLabelValues("accepted"))
	IncTap("")
	assert.Equal(t, before+1, testutil.ToFloat64(tapOutcomes.WithLabelValues("accepted")))

	before = testutil.ToFloat64(reservationRejected.WithLabelValues("double_booked"))
	IncReservationRejected("double_booked")
	assert.Equal(t, before+1, testutil.ToFloat64(reservationRejected.WithLabelValues("double_booked")))

	IncCacheHit()
	IncCacheMiss()
	assert.GreaterOrEqual(t, testutil.ToFloat64(blockedMapCache.WithLabelValues("hit")), 1.0)

	SetActiveSessions(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(activeSessions))
}
