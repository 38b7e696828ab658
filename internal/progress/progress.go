package progress

import (
	"math"
	"sync"
)

type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseClone           Phase = "clone"
	PhaseFetch           Phase = "fetch"
	PhaseListBranches    Phase = "list-branches"
	PhaseCheckout        Phase = "checkout"
	PhasePull            Phase = "pull"
	PhaseMergePreview    Phase = "merge-preview"
	PhaseMerge           Phase = "merge"
	PhaseResolveConflict Phase = "resolve-conflict"
	PhaseCommit          Phase = "commit"
	PhasePush            Phase = "push"
)

// Event is a snapshot of the current progress.
// Percent is nil when the total amount of work is unknown.
type Event struct {
	Phase     Phase  `json:"phase" yaml:"phase"`
	Loaded    int64  `json:"loaded" yaml:"loaded"`
	Total     int64  `json:"total" yaml:"total"`
	Operation string `json:"operation" yaml:"operation"`
	Percent   *int   `json:"percent,omitempty" yaml:"percent,omitempty"`
}

// Observer receives tracker notifications. Implementations must not block.
type Observer interface {
	OnPhase(phase Phase)
	OnProgress(event Event)
	OnComplete(phase Phase)
	OnError(phase Phase, err error)
}

// Tracker records the progress of a single orchestration call and forwards
// every update to its observer.
type Tracker struct {
	mu       sync.Mutex
	current  Event
	observer Observer
}

func NewTracker(observer Observer) *Tracker {
	if observer == nil {
		observer = Discard
	}
	return &Tracker{
		current:  Event{Phase: PhaseIdle},
		observer: observer,
	}
}

func (t *Tracker) SetPhase(phase Phase) {
	t.mu.Lock()
	t.current = Event{Phase: phase}
	t.mu.Unlock()

	t.observer.OnPhase(phase)
}

func (t *Tracker) UpdateProgress(loaded, total int64, operation string) {
	t.mu.Lock()
	t.current.Loaded = loaded
	t.current.Total = total
	t.current.Operation = operation
	t.current.Percent = percent(loaded, total)
	event := t.current
	t.mu.Unlock()

	t.observer.OnProgress(event)
}

func (t *Tracker) Complete() {
	t.mu.Lock()
	phase := t.current.Phase
	t.mu.Unlock()

	t.observer.OnComplete(phase)
}

func (t *Tracker) Error(err error) {
	t.mu.Lock()
	phase := t.current.Phase
	t.mu.Unlock()

	t.observer.OnError(phase, err)
}

// Progress returns a copy of the latest event.
func (t *Tracker) Progress() Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.current
	if e.Percent != nil {
		p := *e.Percent
		e.Percent = &p
	}
	return e
}

func percent(loaded, total int64) *int {
	if total <= 0 {
		return nil
	}
	p := int(math.Round(float64(loaded) / float64(total) * 100))
	return &p
}

// ObserverFuncs adapts plain functions to an Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Phase    func(phase Phase)
	Progress func(event Event)
	Done     func(phase Phase)
	Failed   func(phase Phase, err error)
}

func (o ObserverFuncs) OnPhase(phase Phase) {
	if o.Phase != nil {
		o.Phase(phase)
	}
}

func (o ObserverFuncs) OnProgress(event Event) {
	if o.Progress != nil {
		o.Progress(event)
	}
}

func (o ObserverFuncs) OnComplete(phase Phase) {
	if o.Done != nil {
		o.Done(phase)
	}
}

func (o ObserverFuncs) OnError(phase Phase, err error) {
	if o.Failed != nil {
		o.Failed(phase, err)
	}
}

// Discard ignores all notifications.
var Discard Observer = ObserverFuncs{}

// Multi fans notifications out to several observers in order.
func Multi(observers ...Observer) Observer {
	return multi(observers)
}

type multi []Observer

func (m multi) OnPhase(phase Phase) {
	for _, o := range m {
		o.OnPhase(phase)
	}
}

func (m multi) OnProgress(event Event) {
	for _, o := range m {
		o.OnProgress(event)
	}
}

func (m multi) OnComplete(phase Phase) {
	for _, o := range m {
		o.OnComplete(phase)
	}
}

func (m multi) OnError(phase Phase, err error) {
	for _, o := range m {
		o.OnError(phase, err)
	}
}
