package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel = "info"

var rootCmd = &cobra.Command{
	Use:   "collab-chat",
	Short: "Collaborative chat with presence and an AI participant",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			log.WithError(err).Fatal("cannot parse log-level")
		}
		log.SetLevel(level)
		log.Debug("debug logging enabled")
	},
}

func main() {
	// Millisecond precision on timestamps.
	formatter := new(log.TextFormatter)
	formatter.TimestampFormat = "2006-01-02T15:04:05.999Z07:00"
	formatter.FullTimestamp = true
	log.SetFormatter(formatter)

	cfg := loadConfig()

	rootCmd.AddCommand(
		NewServeCommand(cfg),
		NewClientCommand(cfg),
		NewHealthcheckCommand(cfg),
	)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", cfg.LogLevel,
		"Log level (trace,debug,info,warn,error)")

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("could not execute root command")
	}
}
