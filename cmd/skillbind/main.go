// Package main implements the skillbind CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jllopis/skillbind/pkg/config"
)

var version = "dev"

type globalFlags struct {
	ConfigArgs []string
	GRPCAddr   string
	Timeout    time.Duration
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		printError(os.Stderr, err, hasJSONFlag(os.Args[1:]))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string, stdout, stderr io.Writer) error {
	global, args, err := parseGlobalFlags(argv)
	if err != nil {
		return NewInvalidArgumentError(strings.Join(argv, " "), err.Error())
	}
	if global.Help || len(args) == 0 {
		printUsage(stdout)
		return nil
	}

	switch args[0] {
	case "help":
		printUsage(stdout)
		return nil
	case "version":
		fmt.Fprintln(stdout, version)
		return nil
	case "skills", "describe", "assemble", "watch":
	default:
		return NewInvalidArgumentError(args[0], fmt.Sprintf("unknown command %q", args[0]))
	}

	cfg, err := config.LoadWithCLI(global.ConfigArgs)
	if err != nil {
		return NewConfigError(err, configPath(global.ConfigArgs))
	}
	if global.GRPCAddr != "" {
		cfg.Registry.GRPCTarget = global.GRPCAddr
	}

	a, err := newApp(cfg, stdout, stderr)
	if err != nil {
		return withHint(err)
	}
	defer a.Close(context.WithoutCancel(ctx))

	if args[0] != "watch" && global.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, global.Timeout)
		defer cancel()
	}

	switch args[0] {
	case "skills":
		err = a.runSkills(ctx, global, args[1:])
	case "describe":
		err = a.runDescribe(ctx, global, args[1:])
	case "assemble":
		err = a.runAssemble(ctx, global, args[1:])
	case "watch":
		err = a.runWatch(ctx, args[1:])
	}
	return withHint(err)
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{
		Timeout: 30 * time.Second,
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config" || arg == "--set" || arg == "--profile":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for %s", arg)
			}
			flags.ConfigArgs = append(flags.ConfigArgs, arg, args[i+1])
			i++
		case strings.HasPrefix(arg, "--config="), strings.HasPrefix(arg, "--set="), strings.HasPrefix(arg, "--profile="):
			flags.ConfigArgs = append(flags.ConfigArgs, arg)
		case arg == "--grpc":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --grpc")
			}
			flags.GRPCAddr = args[i+1]
			i++
		case strings.HasPrefix(arg, "--grpc="):
			flags.GRPCAddr = strings.TrimPrefix(arg, "--grpc=")
		case arg == "--timeout":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --timeout")
			}
			value, err := time.ParseDuration(args[i+1])
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
			i++
		case strings.HasPrefix(arg, "--timeout="):
			value, err := time.ParseDuration(strings.TrimPrefix(arg, "--timeout="))
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
	}
	return ""
}

func hasJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `skillbind binds arguments to skill parameter schemas.

Usage:
  skillbind [global flags] <command> [args]

Global flags:
  --config <path>      Path to config.yaml
  --profile <name>     Merge config.<name>.yaml over the base config
  --set key=value      Override config (repeatable)
  --grpc <addr>        Discover skills through gRPC reflection at addr
  --timeout <dur>      Request timeout (default 30s)
  --json               JSON output

Commands:
  skills
  describe <skill>
  assemble <skill> [--arg name=json] [--bb name=path] [--expr name=text]
                   [--resource slot=handle] [--result-key key]
  watch
  version`)
}
