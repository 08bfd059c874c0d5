package lifecycle

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/yousefmoazzam/hebi-launcher/internal/events"
	"github.com/yousefmoazzam/hebi-launcher/internal/logger"
	"github.com/yousefmoazzam/hebi-launcher/internal/metrics"
)

// TaskIntervals configures the periodic tasks.
type TaskIntervals struct {
	Heartbeat     time.Duration
	InactiveCheck time.Duration
	Snapshot      time.Duration
}

// Tasks runs the launcher's three periodic jobs on one cron runner: the
// heartbeat broadcaster, the inactive session reaper, and the activity
// snapshot writer. An iteration failure is logged and the task waits for
// its next tick; no failure kills a task.
type Tasks struct {
	controller  *Controller
	broadcaster Broadcaster
	runner      *cron.Cron
}

// NewTasks creates the periodic task runner.
func NewTasks(controller *Controller, broadcaster Broadcaster) *Tasks {
	return &Tasks{
		controller:  controller,
		broadcaster: broadcaster,
		runner: cron.New(cron.WithChain(
			cron.Recover(cronLogger{logger.Lifecycle()}),
		)),
	}
}

// Start schedules and starts the tasks.
func (t *Tasks) Start(intervals TaskIntervals) error {
	if _, err := t.runner.AddFunc(every(intervals.Heartbeat), t.heartbeatTick); err != nil {
		return err
	}
	if _, err := t.runner.AddFunc(every(intervals.InactiveCheck), t.reapTick); err != nil {
		return err
	}
	if _, err := t.runner.AddFunc(every(intervals.Snapshot), t.snapshotTick); err != nil {
		return err
	}
	t.runner.Start()
	return nil
}

// Stop halts scheduling and waits for running jobs to finish.
func (t *Tasks) Stop() {
	ctx := t.runner.Stop()
	<-ctx.Done()
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

// heartbeatTick broadcasts an are-you-alive event to all connected session
// clients. No per-user state is touched; the replies come back through the
// event channel and are absorbed by the activity tracker.
func (t *Tasks) heartbeatTick() {
	t.broadcaster.BroadcastHeartbeat()
}

// reapTick destroys the resources of every running session whose last
// activity signal is older than the inactivity threshold.
func (t *Tasks) reapTick() {
	log := logger.Reaper()
	ctx := context.Background()

	users, err := t.controller.cluster.RunningUserPods(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to enumerate running session pods")
		return
	}

	threshold := t.controller.cfg.InactivityPeriod
	for _, fedid := range users {
		lastSeen, ok := t.controller.tracker.Get(fedid)
		if !ok {
			// No signal yet - possibly a launcher restart before the first
			// heartbeat response arrived. Never reap on absence.
			log.Warn().Str("fedid", fedid).Msg("Session has no activity entry, skipping")
			continue
		}

		age := time.Since(lastSeen)
		if age < threshold {
			continue
		}

		log.Info().
			Str("fedid", fedid).
			Dur("age", age).
			Dur("threshold", threshold).
			Msg("Session inactive beyond threshold, destroying its resources")

		result := t.controller.destroy(ctx, fedid, "inactive")
		if result.WasSessionStopped {
			metrics.SessionsReaped.Inc()
			t.controller.events.Publish(events.SubjectSessionReaped, fedid, "inactive")
		}
	}
}

// snapshotTick writes the activity map to the persistent volume.
func (t *Tasks) snapshotTick() {
	snapshot := t.controller.tracker.Snapshot()
	if err := t.controller.store.Write(snapshot); err != nil {
		logger.Activity().Error().Err(err).Msg("Failed to write activity snapshot")
		return
	}
	metrics.SnapshotWrites.Inc()
	logger.Activity().Debug().Int("sessions", len(snapshot)).Msg("Activity snapshot written")
}

// RestoreActivity loads the persisted snapshot into the tracker at startup.
// A missing file means no previous launcher wrote one and is not an error.
func RestoreActivity(controller *Controller) {
	entries, err := controller.store.Load()
	if err != nil {
		logger.Activity().Error().Err(err).Msg("Failed to load activity snapshot, starting with an empty map")
		return
	}
	if len(entries) == 0 {
		logger.Activity().Info().Str("path", controller.store.Path()).Msg("No previous activity snapshot found")
		return
	}
	controller.tracker.Merge(entries)
	logger.Activity().Info().Int("sessions", len(entries)).Msg("Restored activity timestamps from previous launcher")
}

// cronLogger adapts zerolog to the cron logger interface used by the
// recovery chain.
type cronLogger struct {
	log *zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info().Interface("kv", keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Interface("kv", keysAndValues).Msg(msg)
}
