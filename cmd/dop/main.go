// Command dop resolves, builds and stages native packages described by
// scripted dopamine recipes.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
)

type command interface {
	Name() string           // "resolve"
	Args() string           // "[<recipe-dir>]"
	ShortHelp() string      // "Resolve the dependency graph"
	LongHelp() string       // full usage text
	Register(*flag.FlagSet) // command-specific flags
	Hidden() bool
	Run(ctx *Ctx, args []string) error
}

func main() {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to get working directory:", err)
		os.Exit(1)
	}
	c := &Config{
		Args:       os.Args,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		WorkingDir: wd,
	}
	os.Exit(c.Run())
}

// Config specifies a full configuration for a dop execution.
type Config struct {
	WorkingDir     string
	Args           []string
	Stdout, Stderr io.Writer
}

// Run executes a configuration and returns an exit code.
func (c *Config) Run() (exitCode int) {
	commands := []command{
		&resolveCommand{},
		&buildCommand{},
		&stageCommand{},
		&lockCommand{},
		&statusCommand{},
	}

	errLogger := log.New(c.Stderr, "", 0)

	usage := func() {
		errLogger.Println("dop builds native packages from scripted recipes")
		errLogger.Println()
		errLogger.Println("Usage: dop <command>")
		errLogger.Println()
		errLogger.Println("Commands:")
		errLogger.Println()
		w := tabwriter.NewWriter(c.Stderr, 0, 4, 2, ' ', 0)
		for _, cmd := range commands {
			if !cmd.Hidden() {
				fmt.Fprintf(w, "\t%s\t%s\n", cmd.Name(), cmd.ShortHelp())
			}
		}
		w.Flush()
		errLogger.Println()
		errLogger.Println(`Use "dop <command> -h" for more information about a command.`)
	}

	cmdName, printCommandHelp, exit := parseArgs(c.Args)
	if exit {
		usage()
		exitCode = 1
		return
	}

	for _, cmd := range commands {
		if cmd.Name() != cmdName {
			continue
		}

		fs := flag.NewFlagSet(cmdName, flag.ContinueOnError)
		fs.SetOutput(c.Stderr)
		verbose := fs.Bool("v", false, "enable verbose logging")

		cmd.Register(fs)
		resetUsage(errLogger, fs, cmdName, cmd.Args(), cmd.LongHelp())

		if printCommandHelp {
			fs.Usage()
			exitCode = 1
			return
		}

		if err := fs.Parse(c.Args[2:]); err != nil {
			exitCode = 1
			return
		}

		sigctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		cctx, done := callContext(sigctx)
		defer done()

		ctx, err := NewContext(cctx, c.WorkingDir, c.Stdout, c.Stderr, *verbose)
		if err != nil {
			errLogger.Printf("%v\n", err)
			exitCode = 1
			return
		}

		if err := cmd.Run(ctx, fs.Args()); err != nil {
			errLogger.Printf("%v\n", err)
			exitCode = 1
			return
		}
		return
	}

	errLogger.Printf("dop: %s: no such command\n", cmdName)
	usage()
	exitCode = 1
	return
}

func resetUsage(logger *log.Logger, fs *flag.FlagSet, name, args, longHelp string) {
	var (
		hasFlags   bool
		flagBlock  bytes.Buffer
		flagWriter = tabwriter.NewWriter(&flagBlock, 0, 4, 2, ' ', 0)
	)
	fs.VisitAll(func(f *flag.Flag) {
		hasFlags = true
		defValue := f.DefValue
		if defValue == "" {
			defValue = "<none>"
		}
		fmt.Fprintf(flagWriter, "\t-%s\t%s (default: %s)\n", f.Name, f.Usage, defValue)
	})
	flagWriter.Flush()
	fs.Usage = func() {
		logger.Printf("Usage: dop %s %s\n", name, args)
		logger.Println()
		logger.Println(strings.TrimSpace(longHelp))
		logger.Println()
		if hasFlags {
			logger.Println("Flags:")
			logger.Println()
			logger.Println(flagBlock.String())
		}
	}
}

// parseArgs determines the name of the dop command and whether the user
// asked for help to be printed.
func parseArgs(args []string) (cmdName string, printCmdUsage bool, exit bool) {
	isHelpArg := func() bool {
		return strings.Contains(strings.ToLower(args[1]), "help") || strings.ToLower(args[1]) == "-h"
	}

	switch len(args) {
	case 0, 1:
		exit = true
	case 2:
		if isHelpArg() {
			exit = true
		}
		cmdName = args[1]
	default:
		if isHelpArg() {
			cmdName = args[2]
			printCmdUsage = true
		} else {
			cmdName = args[1]
		}
	}
	return cmdName, printCmdUsage, exit
}
