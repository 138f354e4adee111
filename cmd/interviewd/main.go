// Interview engine server
//
// Hosts one interview session behind the gRPC interview service and
// provides inspection commands for phase scripts and persisted records.
//
// Usage:
//
//	interviewd serve                              # :50051, ./data/interview.db
//	interviewd serve --listen :8080 --metrics-listen :9090
//	interviewd phases --script phases.yaml
//	interviewd records --type knowledge_card
//
// Every flag can also come from the config file (--config) or from an
// INTERVIEWD_ environment variable, e.g. INTERVIEWD_SUPERSEDE_ON_CHAT=false.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeeves-cluster-organization/interviewcore/coreengine/config"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(viper.New()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:           "interviewd",
		Short:         "Interview orchestration engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cmd)
		},
	}

	root.PersistentFlags().String("config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().String("script", "", "phase script YAML (default: built-in script)")
	root.PersistentFlags().String("db", "data/interview.db", "SQLite database path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("json", false, "output JSON")

	root.AddCommand(newServeCmd(v), newPhasesCmd(v), newRecordsCmd(v))
	return root
}

// initConfig layers flags over environment over config file over defaults.
func initConfig(v *viper.Viper, cmd *cobra.Command) error {
	for key, value := range config.DefaultEngineConfig().ToMap() {
		v.SetDefault(key, value)
	}
	v.SetDefault("phase_script_path", "")

	v.SetEnvPrefix("INTERVIEWD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	// engine keys use underscores; these flags feed them directly
	_ = v.BindPFlag("log_level", cmd.Flags().Lookup("log-level"))
	_ = v.BindPFlag("phase_script_path", cmd.Flags().Lookup("script"))

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return nil
}

// loadEngineConfig decodes the engine settings and validates them.
func loadEngineConfig(v *viper.Viper) (*config.EngineConfig, error) {
	cfg := config.DefaultEngineConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode engine config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	return cfg, nil
}
