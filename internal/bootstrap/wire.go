package bootstrap

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"speechstream/internal/audio"
	"speechstream/internal/config"
	"speechstream/internal/domain"
	"speechstream/internal/ports"
	"speechstream/internal/session"
	"speechstream/internal/transport/wsclient"
	"speechstream/internal/usecase"
)

// Options selects how the runtime is assembled.
type Options struct {
	ConfigPath string
	// LogLevel overrides log.level from the config when set.
	LogLevel string
	// InputFile replaces the microphone with a raw PCM file.
	InputFile string
	Realtime  bool
	LogOutput io.Writer
}

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Config     config.Config
	Logger     *logrus.Logger
}

// Build wires all dependencies for one streaming run.
func Build(eventSink ports.EventSink, opts Options) (Services, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return Services{}, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return Services{}, err
	}

	output := opts.LogOutput
	if output == nil {
		output = os.Stderr
	}
	logger, err := NewLogger(cfg.Log.Level, output)
	if err != nil {
		return Services{}, err
	}
	log := logrus.NewEntry(logger)

	var capture ports.AudioCapture = audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand, log)
	if opts.InputFile != "" {
		capture = audio.NewFileCapture(opts.InputFile, opts.Realtime, log)
	}

	controller := usecase.NewSessionController(
		capture,
		newSessionFactory(cfg, log),
		eventSink,
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Stream.SampleRate,
				Channels:    cfg.Stream.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			ChunkSize: cfg.Stream.ChunkSize,
			StopGrace: cfg.Stream.StopGrace(),
			Logger:    log,
		},
	)

	return Services{Controller: controller, Config: cfg, Logger: logger}, nil
}

func newSessionFactory(cfg config.Config, log *logrus.Entry) usecase.SessionFactory {
	sessionCfg := session.Config{
		ServerURL:          cfg.Service.URL,
		Headers:            cfg.Service.Handshake(),
		AudioFormat:        domain.AudioFormat(cfg.Stream.AudioFormat),
		InactivityTimeout:  cfg.Stream.InactivityTimeout,
		InsecureSkipVerify: cfg.Service.InsecureSkipVerify,
		SampleRate:         cfg.Stream.SampleRate,
		Channels:           cfg.Stream.Channels,
		OpusBitrate:        cfg.Stream.OpusBitrate,
	}

	return func() (ports.UploadSession, error) {
		transport := wsclient.New(
			wsclient.WithLogger(log),
			wsclient.WithHandshakeTimeout(cfg.Service.HandshakeTimeout()),
		)
		s, err := session.New(sessionCfg, transport, session.WithLogger(log))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// NewLogger builds the process logger: text output at the given level.
func NewLogger(level string, out io.Writer) (*logrus.Logger, error) {
	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(parsed)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger, nil
}
