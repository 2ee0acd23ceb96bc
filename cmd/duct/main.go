package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/urfave/cli/v2"

	cfg "meditrack.dev/duct/config"
	"meditrack.dev/duct/logging"
	"meditrack.dev/duct/telemetry"
	"meditrack.dev/duct/tools"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := newApp(os.Stdout, os.Stderr, tools.Registry).RunContext(ctx, os.Args)
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, exitErr.Error())
		os.Exit(exitErr.ExitCode())
	}
	if err != nil {
		log.Fatal(err)
	}
}

func newApp(stdout, stderr io.Writer, registry map[string]tools.Description) *cli.App {
	notFound := func(ctx *cli.Context, command string) {
		fmt.Fprintf(ctx.App.ErrWriter, "Command %s doesn't exist.\n", command)
	}

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)

	commands := make([]*cli.Command, 0, len(names))
	for _, name := range names {
		commands = append(commands, toolCommand(name, registry[name], stderr))
	}

	return &cli.App{
		Name:            "duct",
		Usage:           "Move MediTrack artifacts between the local disk, HDFS and S3",
		Writer:          stdout,
		ErrWriter:       stderr,
		Commands:        commands,
		CommandNotFound: notFound,
		// Exit codes are handled in main so tests can run the app.
		ExitErrHandler: func(*cli.Context, error) {},
		Action: func(ctx *cli.Context) error {
			if ctx.Args().Present() {
				notFound(ctx, ctx.Args().First())
				return nil
			}
			return cli.ShowAppHelp(ctx)
		},
	}
}

func toolCommand(name string, desc tools.Description, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     desc.Usage,
		ArgsUsage: "<outputPath>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "fileSystem",
				Aliases: []string{"fs"},
				EnvVars: []string{"DUCT_FILESYSTEM"},
				Usage:   "the file system to write to: local, hdfs://host:port, s3://bucket/prefix or conf:<hadoop conf dir> or default for fs.defaultFS of the Hadoop environment. Defaults to the local disk",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "a JSON config file, local or on a file system URL",
			},
			&cli.StringSliceFlag{
				Name:  "param",
				Usage: "a KEY=VALUE value for {\"$param\": \"KEY\"} references in the config file",
			},
			&cli.StringFlag{
				Name:  "work-dir",
				Usage: "where local artifacts are written. Defaults to a temporary directory removed after the run",
			},
			&cli.IntFlag{
				Name:  "replication",
				Usage: "the HDFS replication factor of uploaded files, 0 keeps the cluster default",
			},
			&cli.StringFlag{
				Name:  "codec",
				Value: "null",
				Usage: "the Avro block codec: null, deflate or snappy",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "metrics-file",
				Usage: "write metrics in the Prometheus text format to this file when the run finishes",
			},
		},
		Action: func(ctx *cli.Context) error {
			c, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if c.OutputPath == "" {
				if err := cli.ShowSubcommandHelp(ctx); err != nil {
					return err
				}
				return cli.Exit("missing <outputPath>", 2)
			}
			if err := c.Validate(); err != nil {
				return fmt.Errorf("configuration validation error: %v", err)
			}

			logging.SetLevel(c.Level())
			slog.SetDefault(slog.New(logging.NewTextHandlerTo(stderr)))
			slog.Info("running tool", "command", name, "args", ctx.Args().Slice())

			runErr := desc.Tool.Run(ctx.Context, c)
			if runErr != nil {
				slog.Error("terminated with error", "command", name, "error", runErr)
			}
			if c.MetricsFile != "" {
				if err := telemetry.WriteMetricsFile(c.MetricsFile); err != nil {
					slog.Warn("failed to write metrics", "file", c.MetricsFile, "error", err)
				}
			}
			return runErr
		},
	}
}

// loadConfig reads the optional config file and applies the flags on top.
// Flags override file values only when set explicitly.
func loadConfig(ctx *cli.Context) (*cfg.Config, error) {
	c := cfg.Default()
	fromFile := ctx.IsSet("config")
	if fromFile {
		params, err := parseParams(ctx.StringSlice("param"))
		if err != nil {
			return nil, err
		}
		c, err = cfg.Load(ctx.Context, ctx.String("config"), params)
		if err != nil {
			return nil, err
		}
	}

	use := func(name string) bool {
		return ctx.IsSet(name) || !fromFile
	}
	if use("fileSystem") {
		c.FileSystem = ctx.String("fileSystem")
	}
	if use("work-dir") {
		c.WorkDir = ctx.String("work-dir")
	}
	if use("replication") {
		c.Replication = ctx.Int("replication")
	}
	if use("codec") {
		c.Codec = ctx.String("codec")
	}
	if use("log-level") {
		c.LogLevel = ctx.String("log-level")
	}
	if use("metrics-file") {
		c.MetricsFile = ctx.String("metrics-file")
	}
	if ctx.Args().Present() {
		c.OutputPath = ctx.Args().First()
	}
	return c, nil
}

func parseParams(pairs []string) (*cfg.Params, error) {
	params := cfg.NewParams()
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, want KEY=VALUE", pair)
		}
		params.Set(key, value)
	}
	return params, nil
}
