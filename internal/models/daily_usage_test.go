package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUsageDayBucketsInUTC(t *testing.T) {
	// 23:30 on the 1st in UTC-5 is already the 2nd in UTC.
	est := time.FixedZone("EST", -5*60*60)
	local := time.Date(2026, 3, 1, 23, 30, 0, 0, est)

	assert.Equal(t, "2026-03-02", UsageDay(local))
	assert.Equal(t, "2026-03-01", UsageDay(time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)))
}

func TestUsageDayRollsOverAtMidnight(t *testing.T) {
	before := time.Date(2026, 3, 1, 23, 59, 59, 0, time.UTC)
	after := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	assert.NotEqual(t, UsageDay(before), UsageDay(after))
}
