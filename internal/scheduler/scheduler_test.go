package scheduler

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modbus_console/internal/loop"
	"modbus_console/internal/models"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// tenths renders raw / 10 truncated, so nearby raw values share a display value.
type tenths struct{}

func (tenths) Format(_ string, e models.RegisterEntry) string {
	return strconv.FormatInt(e.Value/10, 10)
}

type commit struct {
	device  string
	changes []models.Change
}

type recorder struct{ commits []commit }

func (r *recorder) Commit(id string, changes []models.Change) {
	r.commits = append(r.commits, commit{id, changes})
}

func ir(addr int, v int64) models.RegisterEntry {
	return models.RegisterEntry{Kind: models.InputRegister, Address: addr, Value: v}
}

func newScheduler() (*loop.Manual, *recorder, *Scheduler) {
	m := loop.NewManual(epoch)
	rec := &recorder{}
	return m, rec, New(m, tenths{}, rec, 16*time.Millisecond, nil, nil)
}

func TestScheduler_IdenticalUpdateProducesNoSecondCommit(t *testing.T) {
	m, rec, s := newScheduler()

	s.Diff("1", []models.RegisterEntry{ir(0, 235), ir(1, 500)})
	m.Advance(16 * time.Millisecond)
	require.Len(t, rec.commits, 1)

	staged := s.Diff("1", []models.RegisterEntry{ir(0, 235), ir(1, 500)})
	m.Advance(time.Second)
	assert.Zero(t, staged)
	assert.Len(t, rec.commits, 1)
	assert.Zero(t, m.Pending(), "no frame armed when nothing is staged")
}

func TestScheduler_DiffIsOnFormattedValue(t *testing.T) {
	m, rec, s := newScheduler()
	s.Diff("1", []models.RegisterEntry{ir(0, 230)})
	m.Advance(16 * time.Millisecond)

	// 231 and 230 both render "23".
	s.Diff("1", []models.RegisterEntry{ir(0, 231)})
	m.Advance(16 * time.Millisecond)
	assert.Len(t, rec.commits, 1)
}

func TestScheduler_CoalescesWithinFrame(t *testing.T) {
	m, rec, s := newScheduler()

	s.Diff("1", []models.RegisterEntry{ir(1, 100), ir(0, 200)})
	m.Advance(5 * time.Millisecond)
	s.Diff("1", []models.RegisterEntry{ir(0, 300)})
	s.Diff("2", []models.RegisterEntry{ir(0, 10)})
	m.Advance(11 * time.Millisecond)

	require.Len(t, rec.commits, 2)
	assert.Equal(t, "1", rec.commits[0].device)
	assert.Equal(t, []models.Change{
		{Key: models.RegisterKey{Kind: models.InputRegister, Address: 0}, Raw: 300, Display: "30"},
		{Key: models.RegisterKey{Kind: models.InputRegister, Address: 1}, Raw: 100, Display: "10"},
	}, rec.commits[0].changes, "latest value wins, changes sorted by key")
	assert.Equal(t, "2", rec.commits[1].device)

	v, ok := s.Rendered("1", models.RegisterKey{Kind: models.InputRegister, Address: 0})
	assert.True(t, ok)
	assert.Equal(t, "30", v)
}

func TestScheduler_RevertWithinFrameUnstages(t *testing.T) {
	m, rec, s := newScheduler()
	s.Diff("1", []models.RegisterEntry{ir(0, 200)})
	m.Advance(16 * time.Millisecond)

	s.Diff("1", []models.RegisterEntry{ir(0, 300)})
	assert.Equal(t, 1, s.Staged("1"))
	s.Diff("1", []models.RegisterEntry{ir(0, 200)})
	assert.Zero(t, s.Staged("1"))

	m.Advance(16 * time.Millisecond)
	assert.Len(t, rec.commits, 1, "the stale intermediate never reaches the view")
}

func TestScheduler_OneCommitPerDevicePerFrame(t *testing.T) {
	m, rec, s := newScheduler()
	for i := int64(0); i < 50; i++ {
		s.Diff("1", []models.RegisterEntry{ir(0, i*10)})
	}
	m.Advance(16 * time.Millisecond)
	require.Len(t, rec.commits, 1)
	assert.Equal(t, "49", rec.commits[0].changes[0].Display)
}

func TestScheduler_Stop(t *testing.T) {
	m, rec, s := newScheduler()
	s.Diff("1", []models.RegisterEntry{ir(0, 200)})
	s.Stop()
	m.Advance(time.Second)
	assert.Empty(t, rec.commits)
	assert.Zero(t, s.Staged("1"))
}
