package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"speechstream/internal/bootstrap"
	"speechstream/internal/usecase"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream audio and print the transcript",
	Long: `Stream audio to the recognition service until the input ends or Ctrl-C.

Interim results are printed to stderr while streaming. The final transcript is
written to stdout, or to --output when given.

Examples:
  speechstream stream
  speechstream stream --input speech.pcm --output transcript.txt
  speechstream stream --input speech.pcm --realtime=false`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := cmd.Flags().GetString("input")
		if err != nil {
			return fmt.Errorf("failed to read 'input' flag: %w", err)
		}
		output, err := cmd.Flags().GetString("output")
		if err != nil {
			return fmt.Errorf("failed to read 'output' flag: %w", err)
		}
		realtime, err := cmd.Flags().GetBool("realtime")
		if err != nil {
			return fmt.Errorf("failed to read 'realtime' flag: %w", err)
		}

		var out io.Writer = cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		sink := newConsoleSink(cmd.ErrOrStderr(), out)
		services, err := bootstrap.Build(sink, bootstrap.Options{
			ConfigPath: cfgFile,
			LogLevel:   logLevel,
			InputFile:  input,
			Realtime:   realtime,
			LogOutput:  cmd.ErrOrStderr(),
		})
		if err != nil {
			return err
		}
		sink.setLogger(logrus.NewEntry(services.Logger))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runStream(ctx, services.Controller, services.Logger)
	},
}

// runStream streams until capture ends or ctx is cancelled, then stops the
// session and waits for the transcript.
func runStream(ctx context.Context, controller *usecase.SessionController, logger *logrus.Logger) error {
	if err := controller.Start(ctx); err != nil {
		return fmt.Errorf("failed to start streaming: %w", err)
	}

	select {
	case <-ctx.Done():
		logger.Info("interrupted, finishing transcript")
	case <-controller.CaptureDone():
	}

	// ctx may already be cancelled; the stop handshake still needs time.
	_, err := controller.Stop(context.Background())
	if errors.Is(err, usecase.ErrNoTranscript) {
		logger.Warn("no transcript captured")
		return nil
	}
	return err
}

func init() {
	streamCmd.Flags().StringP("input", "i", "", "raw s16le PCM file to stream instead of the microphone")
	streamCmd.Flags().StringP("output", "o", "", "write the final transcript to this file (default: stdout)")
	streamCmd.Flags().Bool("realtime", true, "pace --input at the configured sample rate")
}
