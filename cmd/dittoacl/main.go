package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/marmos91/dittoacl/internal/logger"
	"github.com/marmos91/dittoacl/pkg/config"
)

// command is one dittoacl subcommand.
type command struct {
	summary string
	run     func(ctx context.Context, args []string, out io.Writer) error
}

var commands = map[string]command{
	"init":      {"write a default configuration file", runInit},
	"mkroot":    {"create a root directory inode", runMkroot},
	"create":    {"create an inode below a directory, inheriting its default ACL", runCreate},
	"stat":      {"show the metadata of an inode", runStat},
	"getfacl":   {"print the ACLs of an inode", runGetfacl},
	"setfacl":   {"replace or remove an ACL of an inode", runSetfacl},
	"chmod":     {"change the mode of an inode, keeping its ACL in step", runChmod},
	"listxattr": {"list the ACL attributes of an inode", runListxattr},
	"gc":        {"remove ACLs whose inode no longer exists", runGC},
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "DittoACL - POSIX ACLs for DittoFS metadata stores")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Usage: dittoacl <command> [flags] [args]")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Commands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].summary)
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Run 'dittoacl <command> -h' for the flags of a command.")
}

// run dispatches a subcommand.
func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return errUsage
	}

	cmd, ok := commands[args[0]]
	if !ok {
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}

	err := cmd.run(ctx, args[1:], out)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

var errUsage = errors.New("missing command")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		logger.Error("%v", err)
		_, _ = fmt.Fprintf(os.Stderr, "dittoacl: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// globalFlags are accepted by every command that opens the store.
type globalFlags struct {
	configPath string
	logLevel   string
}

func (g *globalFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&g.configPath, "config", "", "Path to config file (default: $XDG_CONFIG_HOME/dittoacl/config.yaml)")
	fs.StringVar(&g.logLevel, "log-level", "", "Override the configured log level (DEBUG, INFO, WARN, ERROR)")
}

// open loads the configuration and builds the runtime.
func (g *globalFlags) open(ctx context.Context) (*config.Runtime, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return config.NewRuntime(ctx, cfg)
}

// withRuntime opens the runtime, runs fn and closes the runtime, reporting
// the first error.
func (g *globalFlags) withRuntime(ctx context.Context, fn func(rt *config.Runtime) error) (err error) {
	rt, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(rt)
}
