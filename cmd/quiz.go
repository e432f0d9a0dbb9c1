// Copyright (c) 2025 VKB Academy
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"encoding/json"
	"os"
	"time"

	apperrors "vkbacademy/cli/internal/errors"
	"vkbacademy/cli/internal/hooks"
	"vkbacademy/cli/internal/progress"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var quizAnswers string

// quizAttempt is the part of the attempt response the CLI shows.
type quizAttempt struct {
	ID     string   `json:"id"`
	Score  *float64 `json:"score"`
	Passed bool     `json:"passed"`
}

var quizCmd = &cobra.Command{
	Use:   "quiz",
	Short: "Work with quizzes",
}

// quizSubmitCmd posts answers for a quiz and, once the attempt is accepted,
// reports challenge progress in the background.
var quizSubmitCmd = &cobra.Command{
	Use:   "submit <quizID>",
	Short: "Submit answers for a quiz",
	Long: `The submit command sends your answers for a quiz and prints the score.

--answers takes a JSON literal, @file or @- for stdin, for example:
  vkbacademy quiz submit intro-go --answers '{"answers":[{"questionId":"q1","optionId":"b"}]}'

After a successful attempt, progress toward active challenges is reported.
A failed progress report never fails the command.`,
	Args: cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		if quizAnswers == "" {
			return apperrors.New(apperrors.InvalidInput, "--answers is required")
		}
		body, err := readData(quizAnswers, os.Stdin)
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}

		var attempt quizAttempt
		if err := a.client.PostJSON(cmd.Context(), a.cfg.Endpoints.QuizAttempts(args[0]), json.RawMessage(body), &attempt); err != nil {
			return present(err, "submitting the quiz")
		}

		switch {
		case attempt.Score != nil && attempt.Passed:
			pterm.Printf("✅ Passed with %.0f%%\n", *attempt.Score)
		case attempt.Score != nil:
			pterm.Printf("📝 Scored %.0f%%, keep practising!\n", *attempt.Score)
		default:
			pterm.Println("📝 Answers submitted")
		}

		q := hooks.NewQueue(a.cfg.Hooks.Workers, a.cfg.Hooks.Buffer, a.log)
		policy := hooks.Retry(a.cfg.Hooks.Attempts, a.cfg.Hooks.Backoff.Std())
		ev := progress.Event{Type: progress.QuizSubmitted, ResourceID: args[0], Score: attempt.Score}
		if err := q.Submit(progress.Task(a.client, a.cfg.Endpoints.ChallengeProgress, ev, policy)); err != nil {
			a.log.Warn().Err(err).Msg("challenge progress not queued")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := q.Close(ctx); err != nil {
			a.log.Warn().Err(err).Msg("challenge progress still pending at exit")
		}
		a.log.Debug().Interface("stats", q.Stats()).Msg("hooks drained")
		return nil
	},
}

func init() {
	quizSubmitCmd.Flags().StringVar(&quizAnswers, "answers", "", "Answers as JSON, @file or @-")
	quizCmd.AddCommand(quizSubmitCmd)
	rootCmd.AddCommand(quizCmd)
}
