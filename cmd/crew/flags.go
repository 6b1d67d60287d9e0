package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/pflag"
)

const (
	defaultConfigPath = "crew.yaml"
	configEnv         = "CREW_CONFIG"
)

// options holds the parsed command line.
type options struct {
	Command        string // "" or "doctor"
	ConfigPath     string
	Hierarchy      string
	RecreateAgents bool
	CleanUp        bool
	Ticker         string
	TraceLevel     string
	Help           bool

	flagUsages string
}

// parseFlags parses args (without the program name). Boolean options take an
// explicit value so "--clean_up true" and "--clean_up=true" both work.
func parseFlags(args []string, getenv func(string) string, stderr io.Writer) (*options, error) {
	opts := &options{}
	var recreate, cleanUp string

	fs := pflag.NewFlagSet("crew", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.ConfigPath, "config", "", "config file path (default crew.yaml, env "+configEnv+")")
	fs.StringVar(&opts.Hierarchy, "hierarchy", "", "hierarchy to provision (default from config)")
	fs.StringVar(&recreate, "recreate_agents", "true", "tear down and recreate the hierarchy before use (true|false)")
	fs.StringVar(&cleanUp, "clean_up", "false", "delete the hierarchy and exit (true|false)")
	fs.StringVar(&opts.Ticker, "ticker", "AMZN", "value substituted into the hierarchy prompt template")
	fs.StringVar(&opts.TraceLevel, "trace_level", "", "invocation trace display: core, outline or all")
	fs.BoolVarP(&opts.Help, "help", "h", false, "show help")
	opts.flagUsages = fs.FlagUsages()
	fs.Usage = func() { usage(stderr, opts.flagUsages) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	rest := fs.Args()
	if len(rest) > 0 {
		if rest[0] != "doctor" || len(rest) > 1 {
			return nil, fmt.Errorf("unexpected arguments: %v", rest)
		}
		opts.Command = rest[0]
	}

	var err error
	if opts.RecreateAgents, err = strconv.ParseBool(recreate); err != nil {
		return nil, fmt.Errorf("--recreate_agents: %q is not true or false", recreate)
	}
	if opts.CleanUp, err = strconv.ParseBool(cleanUp); err != nil {
		return nil, fmt.Errorf("--clean_up: %q is not true or false", cleanUp)
	}

	if opts.ConfigPath == "" {
		opts.ConfigPath = getenv(configEnv)
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = defaultConfigPath
	}
	return opts, nil
}

func usage(w io.Writer, flagUsages string) {
	fmt.Fprint(w, `crew - provision, use and clean up a hierarchy of collaborating Bedrock agents

USAGE:
    crew [FLAGS]           provision (or reuse) the hierarchy and start a session
    crew doctor [FLAGS]    check configuration, credentials and model access

FLAGS:
`)
	fmt.Fprint(w, flagUsages)
	fmt.Fprint(w, `
EXAMPLES:
    crew --ticker NVDA --trace_level outline
    crew --recreate_agents false
    crew --clean_up true
`)
}
