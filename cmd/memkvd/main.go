package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/memkv/memkv/pkg/config"
	"github.com/memkv/memkv/pkg/log"
	"github.com/memkv/memkv/pkg/metrics"
	"github.com/memkv/memkv/pkg/server"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "memkvd [config file]",
	Short:   "memkvd - an in-memory multi-model key/value server",
	Version: Version,
	Args:    cobra.MaximumNArgs(1),
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"memkvd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "notice", "Log level (debug, notice, warn)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("metrics-addr", "127.0.0.1:9090", "Address to serve Prometheus metrics on")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	level := log.InfoLevel
	switch logLevel {
	case "debug":
		level = log.DebugLevel
	case "warn", "warning":
		level = log.WarnLevel
	}

	log.Init(log.Config{
		Level:      level,
		JSONOutput: logJSON,
	})
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if len(args) == 1 {
		loaded, err := config.Load(args[0])
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	go func() {
		http.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			log.WithComponent("metrics").Warn().Err(err).Msg("metrics server exited")
		}
	}()
	log.WithComponent("main").Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")

	srv := server.New(cfg)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.WithComponent("main").Info().Msg("shutdown signal received")
		srv.Stop()
	}()

	return srv.Run()
}
