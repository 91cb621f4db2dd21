// Package main provides the CLI entry point for capturedriver.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ideamans/go-l10n"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/user/capturedriver/pkg/adapters/chromebrowser"
	"github.com/user/capturedriver/pkg/adapters/filesink"
	"github.com/user/capturedriver/pkg/adapters/logger"
	"github.com/user/capturedriver/pkg/adapters/nullsink"
	"github.com/user/capturedriver/pkg/adapters/osfilesystem"
	"github.com/user/capturedriver/pkg/adapters/proxyclient"
	"github.com/user/capturedriver/pkg/adapters/s3uploader"
	"github.com/user/capturedriver/pkg/behavior"
	"github.com/user/capturedriver/pkg/capture"
	"github.com/user/capturedriver/pkg/channel"
	"github.com/user/capturedriver/pkg/config"
	"github.com/user/capturedriver/pkg/oembed"
	"github.com/user/capturedriver/pkg/orchestrator"
	"github.com/user/capturedriver/pkg/ports"
	"github.com/user/capturedriver/pkg/server"
	"github.com/user/capturedriver/pkg/stages/commit"
	"github.com/user/capturedriver/pkg/stages/interact"
	"github.com/user/capturedriver/pkg/stages/navigate"
	"github.com/user/capturedriver/pkg/stages/settle"
	"github.com/user/capturedriver/pkg/summarizer"
	"github.com/user/capturedriver/pkg/webhook"
)

var version = "dev"

func main() {
	// A missing .env is normal outside of development.
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "capturedriver",
		Usage:   l10n.T("Drive a remote browser through a recording proxy to archive a web page"),
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: l10n.T("YAML configuration file")},
			&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Usage: l10n.T("Log level (debug, info, warn, error)")},
			&cli.StringFlag{Name: "log-format", Usage: l10n.T("Log format (console, json)")},
			&cli.StringFlag{Name: "log-file", Usage: l10n.T("Rotated JSON log file")},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"Q"}, Usage: l10n.T("Suppress all log output")},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     l10n.T("Capture one URL and exit"),
				ArgsUsage: "[URL]",
				Flags: append(sessionFlags(),
					&cli.StringFlag{Name: "job-id", Usage: l10n.T("Job id reported to webhooks and the access URL")},
					&cli.StringFlag{Name: "dest", Usage: l10n.T("Upload destination (s3://bucket/key)")},
					&cli.StringFlag{Name: "listen", Usage: l10n.T("Serve status and embed pages on this address during the capture")},
					&cli.StringFlag{Name: "summary", Usage: l10n.T("Write a Markdown summary of the capture to this file")},
					&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: l10n.T("Save screenshots and the job JSON to the debug directory")},
					&cli.StringFlag{Name: "debug-dir", Usage: l10n.T("Directory for debug output")},
				),
				Action: runCommand,
			},
			{
				Name:  "serve",
				Usage: l10n.T("Accept capture requests over a websocket channel"),
				Flags: append(sessionFlags(),
					&cli.StringFlag{Name: "listen", Usage: l10n.T("Address to listen on")},
				),
				Action: serveCommand,
			},
			{
				Name:      "watch",
				Usage:     l10n.T("Request a capture from a running server and follow its progress"),
				ArgsUsage: "URL",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "endpoint", Value: "ws://localhost:3000/api/capture", Usage: l10n.T("Capture channel endpoint")},
					&cli.BoolFlag{Name: "json", Usage: l10n.T("Print every status update as JSON")},
				},
				Action: watchCommand,
			},
			{
				Name:  "version",
				Usage: l10n.T("Show version information"),
				Action: func(c *cli.Context) error {
					fmt.Println(l10n.F("capturedriver version %s", version))
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// sessionFlags are the flags shared by commands that drive a browser.
func sessionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "browser-host", Usage: l10n.T("Remote browser host")},
		&cli.IntFlag{Name: "browser-port", Usage: l10n.T("Remote browser debugging port")},
		&cli.StringFlag{Name: "proxy-host", Usage: l10n.T("Recording proxy host (empty for a dry run)")},
		&cli.IntFlag{Name: "proxy-port", Usage: l10n.T("Recording proxy port")},
		&cli.BoolFlag{Name: "embeds", Usage: l10n.T("Capture known embeds through their wrapper page")},
		&cli.BoolFlag{Name: "disable-cache", Usage: l10n.T("Disable the browser cache and service workers")},
		&cli.BoolFlag{Name: "auto-scroll", Usage: l10n.T("Scroll pages without a specific behavior")},
		&cli.StringFlag{Name: "exit-file", Usage: l10n.T("File created when browsing is over")},
		&cli.StringFlag{Name: "archive-path", Usage: l10n.T("Archive file written by the recording proxy")},
	}
}

// loadConfig resolves defaults, the YAML file, the environment and flags, in
// increasing order of precedence.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	if c.IsSet("log-file") {
		cfg.Log.File = c.String("log-file")
	}
	if c.IsSet("browser-host") {
		cfg.Browser.Host = c.String("browser-host")
	}
	if c.IsSet("browser-port") {
		cfg.Browser.Port = c.Int("browser-port")
	}
	if c.IsSet("proxy-host") {
		cfg.Proxy.Host = c.String("proxy-host")
	}
	if c.IsSet("proxy-port") {
		cfg.Proxy.Port = c.Int("proxy-port")
	}
	if c.IsSet("embeds") {
		cfg.Embeds.Enabled = c.Bool("embeds")
	}
	if c.IsSet("disable-cache") {
		cfg.Capture.DisableCache = c.Bool("disable-cache")
	}
	if c.IsSet("auto-scroll") {
		cfg.Capture.AutoScroll = c.Bool("auto-scroll")
	}
	if c.IsSet("exit-file") {
		cfg.Capture.ExitFile = c.String("exit-file")
	}
	if c.IsSet("archive-path") {
		cfg.Capture.ArchivePath = c.String("archive-path")
	}
	if c.IsSet("job-id") {
		cfg.JobID = c.String("job-id")
	}
	if c.IsSet("dest") {
		cfg.Storage.URL = c.String("dest")
		cfg.Storage.Prefix = ""
		cfg.Storage.Filename = ""
	}
	if c.IsSet("listen") {
		cfg.Listen = c.String("listen")
	}
	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}
	if c.IsSet("debug-dir") {
		cfg.DebugDir = c.String("debug-dir")
	}

	return cfg, cfg.Validate()
}

func newLogger(c *cli.Context, cfg config.Config) ports.Logger {
	if c.Bool("quiet") {
		return logger.NewNoop()
	}
	level := ports.ParseLogLevel(cfg.Log.Level)
	if ports.ParseLogFormat(cfg.Log.Format) == ports.FormatJSON || cfg.Log.File != "" {
		fields := map[string]string{"service": "capturedriver"}
		if cfg.JobID != "" {
			fields["job"] = cfg.JobID
		}
		return logger.NewZap(logger.ZapOptions{Level: level, File: cfg.Log.File, Fields: fields})
	}
	return logger.NewConsole(level)
}

// withSignals cancels the returned context on SIGINT or SIGTERM.
func withSignals(parent context.Context, log ports.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Warn("Interrupted, shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// runtimeDeps holds the collaborators shared by every job of a process.
type runtimeDeps struct {
	cfg        config.Config
	log        ports.Logger
	rules      *behavior.RuleSet
	embeds     *oembed.Client
	dispatcher *behavior.Dispatcher
	proxy      ports.RecordingProxy
	uploader   ports.Uploader
	fs         ports.FileSystem
	sink       ports.DebugSink
	notifier   orchestrator.Notifier
}

func newRuntimeDeps(cfg config.Config, log ports.Logger) (*runtimeDeps, error) {
	d := &runtimeDeps{cfg: cfg, log: log, fs: osfilesystem.New()}

	d.rules = behavior.DefaultRules()
	if cfg.Embeds.RulesFile != "" {
		data, err := d.fs.ReadFile(cfg.Embeds.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("read embed rules: %w", err)
		}
		if d.rules, err = behavior.ParseRules(data); err != nil {
			return nil, err
		}
	}
	d.dispatcher = behavior.NewDispatcher(d.rules, log)
	if cfg.Embeds.Enabled {
		d.embeds = oembed.New(d.rules, oembed.Prefix(cfg.Embeds.Host, cfg.Embeds.Port), log)
	}

	if cfg.Proxy.Host != "" {
		d.proxy = proxyclient.New(cfg.Proxy.Origin(), log, proxyclient.WithCollection(cfg.Proxy.Collection))
	}

	if cfg.Storage.DestURL() != "" {
		up, err := s3uploader.New(s3uploader.Options{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Region:    cfg.Storage.Region,
			PathStyle: cfg.Storage.PathStyle,
			ACL:       cfg.Storage.ACL,
		}, log)
		if err != nil {
			return nil, err
		}
		d.uploader = up
	}

	if cfg.Debug {
		d.sink = filesink.New(cfg.DebugDir, d.fs)
	} else {
		d.sink = nullsink.New()
	}

	hooks, err := webhook.ParseHooks(cfg.WebhookData)
	if err != nil {
		return nil, err
	}
	if len(hooks) > 0 {
		d.notifier = webhook.NewNotifier(hooks, cfg.UserID, log)
	}
	return d, nil
}

// newDriver wires a driver around a fresh browser session.
func (d *runtimeDeps) newDriver() *orchestrator.Driver {
	browser := chromebrowser.New(d.log)

	var resolver ports.EmbedResolver
	if d.embeds != nil {
		resolver = d.embeds
	}

	settleStage := settle.New(d.proxy, d.log)
	threshold := d.cfg.Capture.StableThreshold
	settleStage.StableThreshold = &threshold

	driver := orchestrator.New(
		browser,
		orchestrator.Stages{
			Navigate: navigate.New(browser, resolver, d.proxy, d.log),
			Interact: interact.New(browser, d.dispatcher, d.proxy, d.sink, d.log),
			Settle:   settleStage,
			Commit:   commit.New(d.proxy, d.uploader, d.log),
		},
		d.proxy,
		d.fs,
		d.sink,
		d.log,
	)
	driver.Notifier = d.notifier
	return driver
}

func newJob(cfg config.Config) *capture.Job {
	if cfg.JobID != "" {
		return capture.NewJobWithID(cfg.JobID, cfg.URL)
	}
	return capture.NewJob(cfg.URL)
}

func runCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if u := c.Args().First(); u != "" {
		cfg.URL = u
	}

	log := newLogger(c, cfg)
	ctx, cancel := withSignals(c.Context, log)
	defer cancel()

	deps, err := newRuntimeDeps(cfg, log)
	if err != nil {
		return err
	}

	jobs := capture.NewRegistry(0)
	job := newJob(cfg)
	jobs.Add(job)

	// The embed wrapper pages must be reachable while the browser loads them.
	if cfg.Embeds.Enabled || c.IsSet("listen") {
		srv := server.New(server.Options{Jobs: jobs, Embeds: deps.embeds, Logger: log})
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.Listen); err != nil {
				log.Error("%v", err)
			}
		}()
	}

	result := deps.newDriver().Run(ctx, job, cfg.ToDriverConfig())

	if path := c.String("summary"); path != "" {
		w := summarizer.NewWriter(summarizer.NewMarkdownFormatter(), deps.fs)
		if err := w.Write(path, summarizer.FromResult(result)); err != nil {
			log.Warn("%v", err)
		}
	}

	if result.ExitCode != 0 {
		return cli.Exit("", result.ExitCode)
	}
	return nil
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	log := newLogger(c, cfg)
	ctx, cancel := withSignals(c.Context, log)
	defer cancel()

	deps, err := newRuntimeDeps(cfg, log)
	if err != nil {
		return err
	}
	driverConfig := cfg.ToDriverConfig()

	// There is a single remote browser, so jobs take turns.
	slot := make(chan struct{}, 1)
	runner := channel.RunnerFunc(func(ctx context.Context, job *capture.Job) error {
		select {
		case slot <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		defer func() { <-slot }()

		result := deps.newDriver().Run(ctx, job, driverConfig)
		if result.ExitCode != 0 {
			return capture.NewError(result.Job.Error, nil)
		}
		return nil
	})

	jobs := capture.NewRegistry(0)
	handler := channel.NewHandler(runner, log)
	handler.Registry = jobs
	handler.BaseContext = ctx

	srv := server.New(server.Options{
		Jobs:    jobs,
		Embeds:  deps.embeds,
		Channel: handler,
		Logger:  log,
	})
	err = srv.ListenAndServe(ctx, cfg.Listen)
	// Running jobs see the cancelled context; let them report and clean up.
	handler.Wait()
	return err
}

func watchCommand(c *cli.Context) error {
	target := c.Args().First()
	if target == "" {
		return cli.Exit(l10n.T("A URL to capture is required"), 2)
	}

	ctx, cancel := withSignals(c.Context, logger.NewConsole(ports.LevelWarn))
	defer cancel()

	client, err := channel.Dial(ctx, c.String("endpoint"), target, channel.DialOptions{})
	if err != nil {
		return err
	}
	defer client.Close()
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	asJSON := c.Bool("json")
	var last capture.Snapshot
	for u := range client.Updates() {
		if u.Err != nil {
			return cli.Exit(l10n.F("Capture %s failed: %v", client.ID(), u.Err), 1)
		}
		if u.Snapshot.ID == "" {
			continue
		}
		last = u.Snapshot
		if asJSON {
			data, _ := json.Marshal(u.Snapshot)
			fmt.Println(string(data))
			continue
		}
		fmt.Printf("[%s] %s %s\n", u.Snapshot.Phase, u.Snapshot.Status, sizeLabel(u.Snapshot.Size))
	}

	if ctx.Err() != nil {
		return cli.Exit("", 130)
	}
	if !last.Succeeded() {
		return cli.Exit(l10n.F("Capture %s did not finish", client.ID()), 1)
	}
	if last.AccessURL != "" {
		fmt.Println(last.AccessURL)
	}
	return nil
}

func sizeLabel(n int64) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("(%d bytes)", n)
}
