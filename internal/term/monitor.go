package term

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Monitor runs the periodic maintenance schedule: the idle-session sweep,
// plus any extra jobs main registers (job-history pruning). Per-connection
// heartbeats live in the transport handler; the monitor only reclaims
// sessions nothing is attached to.
type Monitor struct {
	registry *Registry
	cron     *cron.Cron
}

// NewMonitor creates a monitor for the given registry.
func NewMonitor(registry *Registry) *Monitor {
	return &Monitor{
		registry: registry,
		cron:     cron.New(),
	}
}

// AddJob registers an extra maintenance job with a cron spec (e.g. "@daily").
func (m *Monitor) AddJob(spec string, fn func()) error {
	_, err := m.cron.AddFunc(spec, fn)
	return err
}

// Start schedules the idle sweep at the given interval and starts the
// scheduler.
func (m *Monitor) Start(sweepEvery time.Duration) error {
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	_, err := m.cron.AddFunc(fmt.Sprintf("@every %s", sweepEvery), func() {
		if n := m.registry.Sweep(); n > 0 {
			log.Printf("[term] idle sweep destroyed %d session(s)", n)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule idle sweep: %w", err)
	}
	m.cron.Start()
	return nil
}

// Stop halts the schedule. Running jobs finish.
func (m *Monitor) Stop() {
	m.cron.Stop()
}
