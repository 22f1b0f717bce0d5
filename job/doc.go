// Package job defines the background job entity, its state machine, typed
// job definitions, the definition registry and the job store interface.
//
// # Job Entity
//
// A [Job] is one durable execution of a definition. It is created PENDING
// when a trigger fires and progresses through:
//
//	PENDING → PROCESSING → COMPLETED
//	PENDING → PROCESSING → PENDING → PROCESSING → ...   (retry)
//	PENDING → PROCESSING → FAILED
//
// COMPLETED is absorbing: stores refuse to move a completed job anywhere
// else, which makes redelivery of the same job ID a no-op.
//
// # Defining a Job
//
// Use [Definition] with a typed handler. The payload is stored as JSON and
// decoded into T before the handler runs:
//
//	var SendRejectionEmails = job.NewDefinition("send.rejection.emails", "document.rejected",
//	    func(ctx context.Context, p RejectionPayload, io *taskio.IO) error {
//	        return io.RunTask("notify-owner", func(ctx context.Context) error {
//	            return mailer.Send(ctx, p.OwnerEmail)
//	        })
//	    },
//	    job.WithReflectedSchema(),
//	)
//
// Several definitions may share a trigger name; firing it starts one job per
// enabled definition.
//
// # Registry
//
// [Registry] maps definition IDs to type-erased [Entry] values. It is an
// ordinary value constructed at startup and passed to the components that
// need it.
package job
