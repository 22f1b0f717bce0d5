// Package jobs holds the job definitions served by jobhookd.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/jobhook"
	"github.com/xraph/jobhook/job"
	"github.com/xraph/jobhook/taskio"
)

const (
	TriggerUserSignup        = "user.signup"
	TriggerOnboardingStarted = "user.onboarding.started"
	TriggerDigestNightly     = "digest.nightly"
)

type SignupInput struct {
	UserID string `json:"userId" jsonschema:"required"`
	Email  string `json:"email" jsonschema:"required,format=email"`
	Name   string `json:"name,omitempty"`
}

type OnboardingInput struct {
	UserID string `json:"userId" jsonschema:"required"`
}

type DigestInput struct {
	Format string `json:"format,omitempty" jsonschema:"enum=html,enum=text"`
}

// Register adds every definition to c.
func Register(c *jobhook.Client) error {
	if err := jobhook.DefineJob(c, job.NewDefinition("send-welcome-email", TriggerUserSignup, sendWelcomeEmail,
		job.WithReflectedSchema(),
		job.WithMaxRetries(5),
	)); err != nil {
		return err
	}
	if err := jobhook.DefineJob(c, job.NewDefinition("prepare-workspace", TriggerOnboardingStarted, prepareWorkspace,
		job.WithReflectedSchema(),
	)); err != nil {
		return err
	}
	return jobhook.DefineJob(c, job.NewDefinition("send-nightly-digest", TriggerDigestNightly, sendNightlyDigest,
		job.WithReflectedSchema(),
	))
}

func sendWelcomeEmail(_ context.Context, in SignupInput, io *taskio.IO) error {
	subject, err := taskio.Run(io, "render", func(context.Context) (string, error) {
		name := in.Name
		if name == "" {
			name = strings.Split(in.Email, "@")[0]
		}
		return fmt.Sprintf("Welcome aboard, %s", name), nil
	})
	if err != nil {
		return err
	}

	if err := io.RunTask("send", func(ctx context.Context) error {
		io.Logger().InfoContext(ctx, "welcome email sent", "to", in.Email, "subject", subject)
		return nil
	}); err != nil {
		return err
	}

	return io.TriggerJob("start-onboarding", TriggerOnboardingStarted, OnboardingInput{UserID: in.UserID})
}

func prepareWorkspace(_ context.Context, in OnboardingInput, io *taskio.IO) error {
	workspace, err := taskio.Run(io, "create-workspace", func(context.Context) (string, error) {
		return "ws_" + in.UserID, nil
	})
	if err != nil {
		return err
	}
	return io.RunTask("seed-workspace", func(ctx context.Context) error {
		io.Logger().InfoContext(ctx, "workspace ready", "workspace", workspace)
		return nil
	})
}

func sendNightlyDigest(_ context.Context, in DigestInput, io *taskio.IO) error {
	format := in.Format
	if format == "" {
		format = "html"
	}
	day := time.Now().UTC().Format(time.DateOnly)
	return io.RunTask("digest-"+day, func(ctx context.Context) error {
		io.Logger().InfoContext(ctx, "nightly digest sent", "format", format, "day", day)
		return nil
	})
}
