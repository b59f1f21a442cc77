package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/yok-tottii/meetscribe/internal/api"
	"github.com/yok-tottii/meetscribe/internal/meeting"
	"github.com/yok-tottii/meetscribe/internal/server"
	"github.com/yok-tottii/meetscribe/internal/transcription"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	return &cli.App{
		Name:    appName,
		Usage:   "Record meetings and turn them into transcripts",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to config.json", EnvVars: []string{"MEETSCRIBE_CONFIG"}},
			&cli.StringFlag{Name: "log-level", Usage: "Override log level: debug|info|warn|error"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Mirror log output to stderr"},
		},
		Commands: []*cli.Command{
			recordCmd(),
			transcribeCmd(),
			devicesCmd(),
			historyCmd(),
			serveCmd(),
		},
	}
}

func optionsFrom(c *cli.Context, withAudio, withLocal bool) appOptions {
	opts := appOptions{
		configPath: c.String("config"),
		logLevel:   c.String("log-level"),
		verbose:    c.Bool("verbose"),
		withAudio:  withAudio,
		withLocal:  withLocal,
		stderr:     c.App.ErrWriter,
	}
	if opts.stderr == nil {
		opts.stderr = os.Stderr
	}
	if c.IsSet("device") {
		id := c.Int("device")
		opts.deviceID = &id
	}
	return opts
}

// recordCmd creates the record command.
func recordCmd() *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: "Record a session until Enter or Ctrl+C, then transcribe it",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "Meeting URL to open before recording"},
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Session id (defaults to YYYYMMDD_HHMMSS)"},
			&cli.IntFlag{Name: "device", Aliases: []string{"d"}, Usage: "Input device id (-1 for system default)"},
		},
		Action: func(c *cli.Context) error {
			a, err := newApp(optionsFrom(c, true, true))
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			var sessionID string
			if u := c.String("url"); u != "" {
				sessionID, err = a.service.Join(ctx, u)
			} else {
				sessionID, err = a.service.Start(c.String("session"))
			}
			if err != nil {
				return err
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Recording session %s. Press Enter or Ctrl+C to stop.\n", sessionID)
			waitForStop(ctx, c.App.Reader)
			stop()

			fmt.Fprintln(w, "Stopping and transcribing...")
			out, err := a.service.Stop(context.Background())
			if err != nil {
				return err
			}
			return printOutcome(w, out)
		},
	}
}

// waitForStop returns on the first line from r or when ctx is done
func waitForStop(ctx context.Context, r io.Reader) {
	if r == nil {
		r = os.Stdin
	}
	enter := make(chan struct{})
	go func() {
		bufio.NewReader(r).ReadString('\n')
		close(enter)
	}()

	select {
	case <-enter:
	case <-ctx.Done():
	}
}

// transcribeCmd creates the transcribe command.
func transcribeCmd() *cli.Command {
	return &cli.Command{
		Name:      "transcribe",
		Usage:     "Transcribe an existing WAV recording",
		ArgsUsage: "<file.wav>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("transcribe takes exactly one WAV file", 1)
			}

			a, err := newApp(optionsFrom(c, false, true))
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.service.Transcribe(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			return printOutcome(c.App.Writer, out)
		},
	}
}

// devicesCmd creates the devices command.
func devicesCmd() *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List audio input devices",
		Action: func(c *cli.Context) error {
			a, err := newApp(optionsFrom(c, true, false))
			if err != nil {
				return err
			}
			defer a.Close()

			devices, err := a.driver.ListDevices()
			if err != nil {
				return err
			}
			return outputJSON(c.App.Writer, devices)
		},
	}
}

// historyCmd creates the history command.
func historyCmd() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Show finished sessions, newest first",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Maximum sessions to show"},
		},
		Action: func(c *cli.Context) error {
			a, err := newApp(optionsFrom(c, false, false))
			if err != nil {
				return err
			}
			defer a.Close()

			if c.NArg() > 0 {
				entry, err := a.history.Get(c.Context, c.Args().First())
				if err != nil {
					return err
				}
				return outputJSON(c.App.Writer, entry)
			}

			entries, err := a.history.List(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}
			return outputJSON(c.App.Writer, entries)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the localhost control API",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port to listen on (overrides server_port)"},
			&cli.IntFlag{Name: "device", Aliases: []string{"d"}, Usage: "Input device id (-1 for system default)"},
		},
		Action: func(c *cli.Context) error {
			a, err := newApp(optionsFrom(c, true, true))
			if err != nil {
				return err
			}
			defer a.Close()

			srvCfg := server.DefaultConfig()
			srvCfg.Port = a.config.ServerPort
			if c.IsSet("port") {
				srvCfg.Port = c.Int("port")
			}

			srv := server.New(srvCfg, a.logger)
			handler := api.New(a.config, a.service,
				api.WithDevices(a.driver),
				api.WithHistory(a.history),
				api.WithConfigPath(a.configPath),
				api.WithLogger(a.logger),
			)
			handler.RegisterRoutes(srv.Mux())

			if err := srv.Start(); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Control API listening on %s\n", srv.URL())

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			if a.service.Active() {
				a.logger.Info("Shutting down with an active session; finalizing it")
				if out, err := a.service.Stop(context.Background()); err != nil {
					a.logger.Error("Failed to finalize session: %v", err)
				} else {
					printOutcome(c.App.Writer, out)
				}
			}

			return srv.Stop()
		},
	}
}

// printOutcome writes the report and artifact paths. An outcome without
// transcript text is still printed, then reported as an error.
func printOutcome(w io.Writer, out *meeting.Outcome) error {
	if out.AudioPath == "" {
		if out.DeviceErr != nil {
			return cli.Exit(fmt.Sprintf("no audio captured: %v", out.DeviceErr), 1)
		}
		return cli.Exit("no audio captured", 1)
	}

	fmt.Fprintln(w, out.Report)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Audio: %s\n", out.AudioPath)
	if out.Files.Text != "" {
		fmt.Fprintf(w, "Text:  %s\n", out.Files.Text)
	}
	if out.Files.PDF != "" {
		fmt.Fprintf(w, "PDF:   %s\n", out.Files.PDF)
	}
	for _, key := range out.ArchiveKeys {
		fmt.Fprintf(w, "Archived: %s\n", key)
	}

	if out.Result.Outcome == transcription.NotFound {
		return cli.Exit("audio file not found: "+out.AudioPath, 1)
	}
	return nil
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
