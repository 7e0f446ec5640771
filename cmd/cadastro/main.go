package main

import (
	"fmt"
	"os"

	"github.com/boddenberg/cadastro-clientes-pf-go/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	var (
		configPath string
		envFile    string
	)

	root := &cobra.Command{
		Use:           "cadastro",
		Short:         "Cadastro de clientes pessoa física",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "YAML config file (env CONFIG_FILE)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	// loadConfig runs after flag parsing so both flags are populated.
	loadConfig := func() (*config.Config, error) {
		if err := config.LoadDotEnv(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
		return config.Load(configPath)
	}

	root.AddCommand(newServeCmd(loadConfig), newMigrateCmd(loadConfig))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
