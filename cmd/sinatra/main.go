package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sinatra-studio/sinatra/config"
	"github.com/sinatra-studio/sinatra/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	configFile string
	logLevel   string
	logFile    string
	backend    string
}

var (
	opts    options
	cfg     config.Config
	log     = logrus.New()
	logSink io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "sinatra",
	Short: "Multi-track audio timeline engine",
	Long: `sinatra plays loops against a metronome, records takes on top of them and
sends the takes to a conversion service that transcribes them to MIDI and
renders them on an instrument.`,
	Version:           version.VersionOrHash,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logSink != nil {
			logSink.Close()
		}
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&opts.configFile, "config", "c", "", "YAML configuration `file`")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	f.StringVarP(&opts.logFile, "log", "l", "", "write logs to `file` instead of stderr")
	f.StringVar(&opts.backend, "backend", "", "conversion service URL (overrides the configuration)")
	rootCmd.AddCommand(playCmd, recordCmd, bpmCmd, renderCmd, chordsCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	level, err := logrus.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("could not open log file: %w", err)
		}
		log.SetOutput(f)
		logSink = f
	}
	cfg, err = config.Load(opts.configFile)
	if err != nil {
		return err
	}
	if opts.backend != "" {
		cfg.Backend.URL = opts.backend
	}
	log.WithFields(logrus.Fields{"version": version.VersionOrHash, "backend": cfg.Backend.URL}).Debug("configuration loaded")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
