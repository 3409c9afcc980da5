package indiserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnoopTableSubscribeAllMatchesEverything(t *testing.T) {
	tbl := NewSnoopTable()
	tbl.SubscribeAll()
	assert.True(t, tbl.Matches("anything", "whatever"))
}

func TestSnoopTableSubscribeDeviceMatchesAnyVector(t *testing.T) {
	tbl := NewSnoopTable()
	tbl.SubscribeDevice("mount")
	assert.True(t, tbl.Matches("mount", "EQUATORIAL_EOD_COORD"))
	assert.False(t, tbl.Matches("cam", "EXPOSURE"))
}

func TestSnoopTableSubscribeVectorMatchesOnlyThatVector(t *testing.T) {
	tbl := NewSnoopTable()
	now := time.Now()
	tbl.SubscribeVector("mount", "EQUATORIAL_EOD_COORD", 10*time.Second, 5*time.Second, now)
	assert.True(t, tbl.Matches("mount", "EQUATORIAL_EOD_COORD"))
	assert.False(t, tbl.Matches("mount", "OTHER"))
}

func TestSnoopTableSubscribeVectorFloorsTimeout(t *testing.T) {
	tbl := NewSnoopTable()
	now := time.Now()
	tbl.SubscribeVector("mount", "V", time.Second, 5*time.Second, now)
	due := tbl.DueForResend(now.Add(4 * time.Second))
	assert.Empty(t, due)
	due = tbl.DueForResend(now.Add(6 * time.Second))
	assert.Len(t, due, 1)
}

func TestSnoopTableMarkHeardResetsClock(t *testing.T) {
	tbl := NewSnoopTable()
	now := time.Now()
	tbl.SubscribeVector("mount", "V", 5*time.Second, 5*time.Second, now)
	tbl.MarkHeard("mount", "V", now.Add(4*time.Second))
	due := tbl.DueForResend(now.Add(8 * time.Second))
	assert.Empty(t, due)
}

func TestSnoopTableDueForResendResetsLastHeard(t *testing.T) {
	tbl := NewSnoopTable()
	now := time.Now()
	tbl.SubscribeVector("mount", "V", 5*time.Second, 5*time.Second, now)
	due1 := tbl.DueForResend(now.Add(6 * time.Second))
	assert.Len(t, due1, 1)
	due2 := tbl.DueForResend(now.Add(7 * time.Second))
	assert.Empty(t, due2)
}
