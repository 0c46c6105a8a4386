// -- cmd/run.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/shashank9mittal/uxray/api/schemas"
	"github.com/shashank9mittal/uxray/internal/browser"
	"github.com/shashank9mittal/uxray/internal/config"
	"github.com/shashank9mittal/uxray/internal/flow"
	"github.com/shashank9mittal/uxray/internal/observability"
	"github.com/shashank9mittal/uxray/internal/oracle"
	"github.com/shashank9mittal/uxray/internal/perception"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// newRunCmd creates and configures the `run` command, which executes one
// goal-directed flow against a start URL.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs a goal-directed flow against a start URL",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so command-line values override the config file and
			// environment with the right precedence.
			if err := viper.BindPFlag("flow.max_steps", cmd.Flags().Lookup("max-steps")); err != nil {
				return err
			}
			if err := viper.BindPFlag("flow.inter_step_delay", cmd.Flags().Lookup("delay")); err != nil {
				return err
			}
			if err := viper.BindPFlag("flow.capture_artifacts", cmd.Flags().Lookup("artifacts")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			startURL, _ := cmd.Flags().GetString("url")
			goal, _ := cmd.Flags().GetString("goal")
			outputPath, _ := cmd.Flags().GetString("output")

			// Signal-aware context so Ctrl-C terminates the loop at the next
			// phase boundary instead of killing the browser mid-action.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			manager := browser.NewManager(cfg, logger)
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := manager.Shutdown(sctx); err != nil {
					logger.Warn("Browser shutdown reported an error", zap.Error(err))
				}
			}()

			// Pages reach the orchestrator through the session store, so all
			// page work runs under the store's per-session phase lock.
			store := browser.NewSessionStore(manager, logger)

			client, err := oracle.NewClient(cfg.Oracle, logger)
			if err != nil {
				return fmt.Errorf("failed to construct oracle client: %w", err)
			}
			decider := oracle.NewAdapter(client, cfg.Oracle, logger)
			perceiver := perception.NewPerceiver(cfg.Perception, logger)

			orch, err := flow.New(cfg, logger, store, perceiver, decider)
			if err != nil {
				return err
			}

			req := schemas.FlowRequest{
				StartLocation:    startURL,
				Goal:             goal,
				MaxSteps:         cfg.Flow.MaxSteps,
				InterStepDelay:   cfg.Flow.InterStepDelay,
				CaptureArtifacts: cfg.Flow.CaptureArtifacts,
			}

			// Stream progress to stderr so stdout stays parseable.
			progress := make(chan schemas.ProgressEvent, 16)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for ev := range progress {
					fmt.Fprintf(os.Stderr, "[%3d%%] %-10s %s\n", ev.Percent, ev.Stage, ev.Message)
				}
			}()

			result, runErr := orch.Run(ctx, req, progress)
			close(progress)
			<-done

			// The result carries the partial step history even on error, so
			// write it out before deciding the exit status.
			if err := writeResult(result, outputPath); err != nil {
				logger.Error("Failed to write flow result", zap.Error(err))
				if runErr == nil {
					runErr = err
				}
			}

			if runErr != nil {
				return fmt.Errorf("flow terminated: %w", runErr)
			}
			logger.Info("Flow finished",
				zap.Bool("goalAchieved", result.GoalAchieved),
				zap.Int("stepsCompleted", result.StepsCompleted),
				zap.String("finalLocation", result.FinalLocation))
			return nil
		},
	}

	runCmd.Flags().StringP("url", "u", "", "start URL for the flow (required)")
	runCmd.Flags().StringP("goal", "g", "", "natural-language goal to pursue (required)")
	runCmd.Flags().StringP("output", "o", "", "write the JSON result to a file instead of stdout")
	runCmd.Flags().Int("max-steps", 0, "maximum number of steps before giving up")
	runCmd.Flags().Duration("delay", 0, "delay between steps (e.g. 1s, 500ms)")
	runCmd.Flags().Bool("artifacts", false, "capture a screenshot after each executed action")
	runCmd.Flags().Bool("headless", true, "run the browser headless")
	runCmd.MarkFlagRequired("url")
	runCmd.MarkFlagRequired("goal")

	return runCmd
}

func writeResult(result *schemas.FlowResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal flow result: %w", err)
	}
	if path == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write result file: %w", err)
	}
	return nil
}
