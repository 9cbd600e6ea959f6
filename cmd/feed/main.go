package main

import (
	"os"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/spf13/cobra"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"marketfeed/internal/config"
)

type rootOptions struct {
	configPath string
	dotenv     []string
	pyroscope  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logs.Errorf("feed: %+v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	var profiler *pyroscope.Profiler

	root := &cobra.Command{
		Use:           "feed",
		Short:         "Deterministic market-data replay and alignment feed",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.pyroscope == "" {
				return nil
			}
			p, err := startProfiler(opts.pyroscope, cmd.Name())
			if err != nil {
				return err
			}
			profiler = p
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if profiler != nil {
				_ = profiler.Stop()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "settings JSON file; TS_* environment variables override it")
	flags.StringSliceVar(&opts.dotenv, "env-file", nil, "dotenv files loaded before the environment (default .env when present)")
	flags.StringVar(&opts.pyroscope, "pyroscope", "", "pyroscope server address, e.g. http://localhost:4040")

	root.AddCommand(
		newReplayCmd(opts),
		newStubCmd(opts, "paper"),
		newStubCmd(opts, "live"),
		newIngestCmd(),
		newInspectCmd(),
		newTailCmd(),
	)
	return root
}

func (o *rootOptions) settings() (config.Settings, error) {
	s, err := config.Load(o.configPath, o.dotenv...)
	if err != nil {
		return config.Settings{}, errors.Wrap(err, "load settings").With("config", o.configPath)
	}
	return s, nil
}

func startProfiler(addr, command string) (*pyroscope.Profiler, error) {
	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "marketfeed." + command,
		ServerAddress:   addr,
		Tags: map[string]string{
			"command": command,
		},
		Logger: profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "start pyroscope").With("address", addr)
	}
	return p, nil
}

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...interface{})  { logs.Infof(format, args...) }
func (profilerLogger) Debugf(_ string, _ ...interface{})         {}
func (profilerLogger) Errorf(format string, args ...interface{}) { logs.Errorf(format, args...) }
