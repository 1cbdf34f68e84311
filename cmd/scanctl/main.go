package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/cuongbtq/sensei-scan/internal/config"
	"github.com/cuongbtq/sensei-scan/internal/scan/storage"
	"github.com/cuongbtq/sensei-scan/shared/kvstore"
	"github.com/cuongbtq/sensei-scan/shared/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "scanctl:", err)
		os.Exit(1)
	}
}

type cli struct {
	configPath string
	storePath  string
	verbose    bool

	store  kvstore.Store
	reader *storage.Reader
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}

	root := &cobra.Command{
		Use:               "scanctl",
		Short:             "Inspect the scan queue and stored reports",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.open,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.store == nil {
				return nil
			}
			return c.store.Close()
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", defaultConfigPath, "Path to the api-service configuration file")
	root.PersistentFlags().StringVar(&c.storePath, "store", "", "SQLite database path; overrides the configured store")
	root.PersistentFlags().BoolVar(&c.verbose, "verbose", false, "Enable debug logging")

	root.AddCommand(newJobsCmd(c))
	root.AddCommand(newReportCmd(c))
	return root
}

// open connects to the store the api-service persists into
func (c *cli) open(cmd *cobra.Command, _ []string) error {
	level := "warn"
	if c.verbose {
		level = "debug"
	}
	log, err := logger.New(&logger.Config{Level: level, Format: "console", Output: "stderr"})
	if err != nil {
		return err
	}

	var storeCfg *kvstore.Config
	if c.storePath != "" {
		storeCfg = &kvstore.Config{Driver: kvstore.DriverSQLite, Path: c.storePath}
	} else {
		cfg, err := config.Load(c.configPath)
		if err != nil {
			return err
		}
		storeCfg = cfg.KVStore()
	}

	if storeCfg.Driver == kvstore.DriverMemory {
		return fmt.Errorf("store driver %q is private to the api-service process", kvstore.DriverMemory)
	}

	log.Debug("Opening store",
		slog.String("driver", storeCfg.Driver),
		slog.String("command", cmd.Name()),
	)

	store, err := kvstore.Open(storeCfg, log.Logger)
	if err != nil {
		return err
	}
	c.store = store
	c.reader = storage.NewReader(store)
	return nil
}
