package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/yok-tottii/meetscribe/internal/archive"
	"github.com/yok-tottii/meetscribe/internal/audio"
	"github.com/yok-tottii/meetscribe/internal/config"
	"github.com/yok-tottii/meetscribe/internal/export"
	"github.com/yok-tottii/meetscribe/internal/history"
	"github.com/yok-tottii/meetscribe/internal/logger"
	"github.com/yok-tottii/meetscribe/internal/meeting"
	"github.com/yok-tottii/meetscribe/internal/notification"
	"github.com/yok-tottii/meetscribe/internal/recording"
	"github.com/yok-tottii/meetscribe/internal/transcription"
)

const appName = "meetscribe"

// errNoAudio is what the driver placeholder returns when a command runs without PortAudio
var errNoAudio = errors.New("audio input not initialized for this command")

type noDriver struct{}

func (noDriver) ListDevices() ([]audio.Device, error) { return nil, errNoAudio }

func (noDriver) Open(audio.Config) (audio.Input, error) { return nil, errNoAudio }

func (noDriver) Close() error { return nil }

// App holds the wired components for one command invocation
type App struct {
	config     *config.Config
	configPath string
	baseDir    string
	logger     *logger.Logger
	driver     audio.Driver
	history    *history.Store
	pipeline   *transcription.Pipeline
	service    *meeting.Service

	closers []func() error
}

type appOptions struct {
	configPath string
	logLevel   string
	verbose    bool
	withAudio  bool
	withLocal  bool
	deviceID   *int
	stderr     io.Writer
}

// newApp loads config, opens the log and history, and wires the meeting service
func newApp(opts appOptions) (*App, error) {
	a := &App{configPath: opts.configPath}
	if a.configPath == "" {
		a.configPath = config.GetConfigPath()
	}
	a.baseDir = filepath.Dir(a.configPath)

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.deviceID != nil {
		cfg.AudioDeviceID = *opts.deviceID
	}
	a.config = cfg

	levelName := cfg.LogLevel
	if opts.logLevel != "" {
		levelName = opts.logLevel
	}
	level, err := logger.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogDir = filepath.Join(a.baseDir, "logs")
	logCfg.Level = level
	if opts.verbose {
		logCfg.Mirror = opts.stderr
	}
	a.logger, err = logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.closers = append(a.closers, a.logger.Close)
	a.logger.Info("%s v%s starting (config: %s)", appName, Version, a.configPath)

	if err := cfg.EnsureDirectories(); err != nil {
		a.Close()
		return nil, err
	}

	recordingsDir, err := config.ExpandPath(cfg.RecordingsDir)
	if err != nil {
		a.Close()
		return nil, err
	}
	transcriptsDir, err := config.ExpandPath(cfg.TranscriptsDir)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.history, err = history.Open(a.baseDir)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.history.Close)

	a.driver = noDriver{}
	if opts.withAudio {
		driver, err := audio.NewPortAudioDriver()
		if err != nil {
			a.Close()
			return nil, err
		}
		a.driver = driver
		a.closers = append(a.closers, driver.Close)
	}

	a.pipeline = a.buildPipeline(opts.withLocal)

	audioCfg := audio.DefaultConfig()
	audioCfg.DeviceID = cfg.AudioDeviceID
	audioCfg.Latency = audio.ParseLatency(cfg.Latency)

	deps := meeting.Deps{
		Capturer:      recording.New(a.driver, audioCfg, a.logger),
		Transcriber:   a.pipeline,
		Exporter:      export.New(transcriptsDir, export.WithLogger(a.logger)),
		History:       a.history,
		Notifier:      notification.NewNotificationManager(appName, cfg.Notifications),
		Joiner:        a.buildJoiner(),
		Logger:        a.logger,
		RecordingsDir: recordingsDir,
	}

	uploader, err := archive.NewUploader(cfg.S3, a.logger)
	switch {
	case err == nil:
		deps.Archiver = uploader
	case errors.Is(err, archive.ErrNotConfigured):
		a.logger.Debug("S3 archive not configured")
	default:
		a.logger.Warn("S3 archive disabled: %v", err)
	}

	a.service = meeting.New(deps)
	return a, nil
}

// buildPipeline always builds the cloud backend; the local model is only
// loaded by commands that may transcribe.
func (a *App) buildPipeline(loadLocal bool) *transcription.Pipeline {
	if !loadLocal {
		return transcription.New(transcription.PrimaryFromConfig(a.config, a.logger), nil,
			transcription.WithLogger(a.logger))
	}

	p, closeFn := transcription.FromConfig(a.config, a.logger)
	a.closers = append(a.closers, closeFn)
	return p
}

// buildJoiner drives Chrome through the join screen when auto_join is on
// and a Chrome binary is available. Otherwise the meeting is opened in the
// default browser for the user to join by hand.
func (a *App) buildJoiner() meeting.Joiner {
	manual := meeting.Opener(meeting.OpenBrowser)
	if !a.config.AutoJoin {
		return manual
	}

	execPath := a.config.ChromePath
	if execPath != "" {
		if _, err := exec.LookPath(execPath); err != nil {
			a.logger.Warn("chrome_path %s is not executable, opening meetings in the default browser: %v", execPath, err)
			return manual
		}
	} else {
		p, err := meeting.FindChrome()
		if err != nil {
			a.logger.Info("Chrome not found, opening meetings in the default browser")
			return manual
		}
		execPath = p
	}

	chrome := meeting.NewChrome(execPath, meeting.WithChromeLogger(a.logger))
	a.closers = append(a.closers, chrome.Close)
	return chrome
}

// Close releases everything newApp opened, newest first
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cleanup failed: %v\n", err)
		}
	}
	a.closers = nil
}
