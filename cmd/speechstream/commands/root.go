package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "speechstream",
	Short: "Streaming speech-to-text client",
	Long: `speechstream streams live audio to a speech recognition service over a
websocket and prints the transcript as it arrives.

Configuration is read from an optional YAML file and SPEECHSTREAM_*
environment variables, which take precedence.

Examples:
  # Stream the default microphone until Ctrl-C
  SPEECHSTREAM_URL=wss://host/speech-to-text/api/v1/recognize speechstream stream

  # Stream a raw 16 kHz mono PCM file as Ogg/Opus
  speechstream --config speechstream.yaml stream --input speech.pcm

  # Print the resolved configuration
  speechstream --config speechstream.yaml config show
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides log.level)")

	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
