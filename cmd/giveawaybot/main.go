package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"giveawaybot/internal/app"
	"giveawaybot/internal/config"
	logx "giveawaybot/pkg/logx"
	"giveawaybot/pkg/systemd"
)

func main() {
	cliApp := &cli.App{
		Name:  "giveawaybot",
		Usage: "Telegram giveaway and points bot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "./config.yaml",
				Usage:   "path to the config file (json or yaml)",
				EnvVars: []string{config.EnvPrefix + "CONFIG"},
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Value: cli.NewStringSlice(".env"),
				Usage: "dotenv files loaded before the config",
			},
		},
		Before: func(c *cli.Context) error {
			return config.LoadDotEnv(c.StringSlice("env-file")...)
		},
		DefaultCommand: "run",
		Commands: []*cli.Command{
			runCommand(),
			checkConfigCommand(),
			inspectCommand(),
		},
	}
	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "start the bot",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "stop-timeout", Value: 10 * time.Second, Usage: "graceful shutdown bound"},
		},
		Action: func(c *cli.Context) error {
			ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(c.String("config"))
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				stopCtx, stop := context.WithTimeout(context.Background(), c.Duration("stop-timeout"))
				defer stop()
				return errors.Join(err, a.Stop(stopCtx, app.StopFatalError))
			}

			log := logx.NewConsole("info").With(logx.String("comp", "main"))
			systemd.Ready(log)
			done := make(chan struct{})
			defer close(done)
			go systemd.Watchdog(log, systemd.WatchdogInterval(), done)

			select {
			case <-ctx.Done():
			case <-a.Done():
			}
			// a.Done also closes on a signal; only an untouched ctx means a fatal error
			reason := app.StopSignal
			if ctx.Err() == nil {
				reason = app.StopFatalError
			}
			systemd.Stopping(log)

			stopCtx, stop := context.WithTimeout(context.Background(), c.Duration("stop-timeout"))
			defer stop()
			stopErr := a.Stop(stopCtx, reason)
			if reason == app.StopFatalError {
				return errors.Join(a.Err(), stopErr)
			}
			return stopErr
		},
	}
}

func checkConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "check-config",
		Usage: "parse and validate the config, then exit",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "offline", Usage: "do not require a telegram token"},
		},
		Action: func(c *cli.Context) error {
			path := c.String("config")
			cfg, err := config.NewConfigManager(path).Parse()
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if err := config.Validate(cfg, !c.Bool("offline")); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "%s: ok\n", path)
			return nil
		},
	}
}
