// Package jobhook provides durable background jobs dispatched over HTTP.
//
// Jobs are defined as ordinary Go functions subscribed to a trigger name.
// Triggering a name persists one PENDING job per subscribed definition and
// hands each job to the configured provider for delivery. The execution
// endpoint authenticates the delivery, runs the handler and records the
// outcome, retrying failures with capped exponential backoff.
//
// # Quick Start
//
//	c, err := jobhook.New(ctx,
//	    jobhook.WithStore(pgStore),
//	    jobhook.WithSigningSecret(os.Getenv("JOBHOOK_SIGNING_SECRET")),
//	    jobhook.WithInternalURL("http://localhost:3000"),
//	)
//
//	jobhook.DefineJob(c, job.NewDefinition("send-welcome-email", "user.signup",
//	    func(ctx context.Context, p Signup, io *taskio.IO) error {
//	        return io.RunTask("send", func(ctx context.Context) error {
//	            return mailer.Send(ctx, p.Email)
//	        })
//	    },
//	))
//
//	http.ListenAndServe(":3000", c.Handler())
//	c.TriggerJob(ctx, job.TriggerOptions{Name: "user.signup", Payload: raw})
//
// # Providers
//
// The local provider POSTs every delivery to the execution endpoint of the
// same deployment. The stream provider appends deliveries to a Redis
// stream consumed by a worker pool. The provider is chosen once in New.
//
// # Idempotency
//
// Delivery is at least once. A COMPLETED job is never run again, and
// handler side effects wrapped in taskio.IO.RunTask are cached per job so a
// redelivered job replays completed tasks instead of repeating them.
package jobhook
