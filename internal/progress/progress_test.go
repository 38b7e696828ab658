package progress

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	phases   []Phase
	events   []Event
	done     []Phase
	failures []error
}

func (r *recorder) OnPhase(phase Phase)            { r.phases = append(r.phases, phase) }
func (r *recorder) OnProgress(event Event)         { r.events = append(r.events, event) }
func (r *recorder) OnComplete(phase Phase)         { r.done = append(r.done, phase) }
func (r *recorder) OnError(phase Phase, err error) { r.failures = append(r.failures, err) }

func TestTracker_PercentRounding(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	tr := NewTracker(rec)
	tr.SetPhase(PhaseClone)
	tr.UpdateProgress(1, 3, "Receiving objects")

	p := tr.Progress()
	require.NotNil(t, p.Percent)
	assert.Equal(t, 33, *p.Percent)
	assert.Equal(t, PhaseClone, p.Phase)
	assert.Equal(t, "Receiving objects", p.Operation)

	tr.UpdateProgress(2, 3, "Receiving objects")
	assert.Equal(t, 67, *tr.Progress().Percent)

	assert.Equal(t, []Phase{PhaseClone}, rec.phases)
	assert.Len(t, rec.events, 2)
}

func TestTracker_UnknownTotalHasNoPercent(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil)
	tr.SetPhase(PhaseFetch)
	tr.UpdateProgress(12, 0, "Enumerating objects")

	assert.Nil(t, tr.Progress().Percent)
	assert.Equal(t, int64(12), tr.Progress().Loaded)
}

func TestTracker_SetPhaseResetsCounters(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil)
	tr.SetPhase(PhaseClone)
	tr.UpdateProgress(5, 10, "x")
	tr.SetPhase(PhaseCheckout)

	p := tr.Progress()
	assert.Equal(t, PhaseCheckout, p.Phase)
	assert.Zero(t, p.Loaded)
	assert.Nil(t, p.Percent)
}

func TestTracker_CompleteAndError(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	tr := NewTracker(rec)
	tr.SetPhase(PhasePush)
	tr.Complete()
	tr.Error(errors.New("denied"))

	assert.Equal(t, []Phase{PhasePush}, rec.done)
	require.Len(t, rec.failures, 1)
	assert.EqualError(t, rec.failures[0], "denied")
}

func TestMulti(t *testing.T) {
	t.Parallel()

	a, b := &recorder{}, &recorder{}
	tr := NewTracker(Multi(a, b))
	tr.SetPhase(PhaseMerge)

	assert.Equal(t, []Phase{PhaseMerge}, a.phases)
	assert.Equal(t, []Phase{PhaseMerge}, b.phases)
}

func TestSidebandWriter(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	tr := NewTracker(rec)
	tr.SetPhase(PhaseClone)
	w := NewSidebandWriter(tr)

	_, err := w.Write([]byte("Enumerating objects: 20, done.\nCounting objects:  45% (9/20)\rCounting obj"))
	require.NoError(t, err)
	_, err = w.Write([]byte("ects: 100% (20/20), done.\n"))
	require.NoError(t, err)

	require.Len(t, rec.events, 3)
	assert.Equal(t, "Enumerating objects", rec.events[0].Operation)
	assert.Nil(t, rec.events[0].Percent)
	assert.Equal(t, int64(9), rec.events[1].Loaded)
	assert.Equal(t, int64(20), rec.events[1].Total)
	assert.Equal(t, 45, *rec.events[1].Percent)
	assert.Equal(t, 100, *rec.events[2].Percent)
}
