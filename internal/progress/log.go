package progress

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gitmerge/gitmerge/internal/log"
	"go.uber.org/zap"
)

// LogObserver reports progress through the CLI logger. Repeated events for
// the same percentage are collapsed.
type LogObserver struct {
	Logger log.Logger

	last *int
}

var _ Observer = (*LogObserver)(nil)

func NewLogObserver(l log.Logger) *LogObserver {
	return &LogObserver{Logger: l}
}

func (o *LogObserver) OnPhase(phase Phase) {
	o.last = nil
	o.Logger.Info(fmt.Sprintf("%s...", phase))
}

func (o *LogObserver) OnProgress(event Event) {
	if event.Percent == nil {
		o.Logger.Info(fmt.Sprintf("  %s: %s", event.Operation, humanize.Comma(event.Loaded)))
		return
	}
	if o.last != nil && *o.last == *event.Percent {
		return
	}
	p := *event.Percent
	o.last = &p
	o.Logger.Info(fmt.Sprintf("  %s: %d%% (%s/%s)", event.Operation, p, humanize.Comma(event.Loaded), humanize.Comma(event.Total)))
}

func (o *LogObserver) OnComplete(phase Phase) {
	o.Logger.Success(fmt.Sprintf("%s complete", phase))
}

func (o *LogObserver) OnError(phase Phase, err error) {
	o.Logger.Error(fmt.Sprintf("%s failed", phase), zap.Error(err))
}
