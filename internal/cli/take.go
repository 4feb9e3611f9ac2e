package cli

import (
	"errors"
	"fmt"
	"os"

	"quiz-attempt/internal/domain"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewTakeCmd starts a new attempt of a quiz.
func NewTakeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "take <quizID>",
		Short: "Start a timed attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			controller := rt.newController()
			if err := controller.Start(ctx, args[0]); err != nil {
				return describeStartError(err)
			}
			quiz := controller.Quiz()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d questions, %d minutes\n", quiz.Title, len(quiz.Questions), quiz.DurationMinutes)
			return runSession(ctx, rt, controller, os.Stdin, cmd.OutOrStdout(), *port)
		},
	}
}

// NewResumeCmd continues an attempt from its checkpoint.
func NewResumeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <attemptID>",
		Short: "Continue an interrupted attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			cp, err := rt.checkpoints.Load(ctx, args[0])
			if errors.Is(err, domain.ErrCheckpointNotFound) {
				return fmt.Errorf("no saved progress for attempt %s", args[0])
			}
			if err != nil {
				return err
			}
			controller := rt.newController()
			if err := controller.Resume(cp); err != nil {
				return err
			}
			rt.logger.Info("resuming attempt", zap.String("attempt_id", cp.AttemptID), zap.Time("deadline", cp.Deadline))
			return runSession(ctx, rt, controller, os.Stdin, cmd.OutOrStdout(), *port)
		},
	}
}

func describeStartError(err error) error {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound):
		return fmt.Errorf("quiz not found: %w", err)
	case errors.Is(err, domain.ErrAttemptWindowClosed):
		return fmt.Errorf("this quiz is no longer open: %w", err)
	case errors.Is(err, domain.ErrAlreadyAttempted):
		return fmt.Errorf("you already attempted this quiz: %w", err)
	}
	return err
}
