// Package local implements the HTTP job provider. Triggers persist one
// PENDING job per subscribed definition and POST each job to the execution
// endpoint of the same deployment, signed with the shared secret. Retries
// travel the same way, so every execution is an HTTP request handled by
// the api package.
//
//	p := local.New("http://localhost:3000", registry, store, signer)
//	http.Handle("/", p.Handler())
//	jobs, err := p.TriggerJob(ctx, job.TriggerOptions{Name: "user.signup", Payload: raw})
package local
