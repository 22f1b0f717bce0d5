// Package cron runs recurring work on cron schedules.
//
// Two kinds of entries are supported:
//
//   - Trigger entries fire a trigger event on every tick, fanning out to
//     every enabled definition subscribed to it, exactly as if application
//     code had called TriggerJob.
//   - The reconciliation sweep re-dispatches PENDING jobs that have not
//     moved for longer than a threshold. Dispatches can be lost when a
//     process dies between persisting a job and delivering it; the sweep
//     recovers those jobs without an operator.
//
// Schedules use the standard 5-field cron syntax or descriptors such as
// "@hourly" and "@every 5m":
//
//	s := cron.NewScheduler(client, cron.WithLogger(logger))
//	s.MustAdd(cron.NewEntry("nightly-digest", "0 3 * * *", "digest.nightly", DigestInput{}))
//	s.EnableSweep(client.Admin(), cron.DefaultSweepSchedule, cron.DefaultStaleAfter)
//	s.Start(ctx)
//
// Entries live in process memory. Every process running a Scheduler fires
// its own entries, so run one scheduler per deployment.
package cron
