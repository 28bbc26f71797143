package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var outputFmt string

var rootCmd = &cobra.Command{
	Use:   "rebuildctl",
	Short: "CLI for the rebuild control plane",
	Long: `rebuildctl manages the data-rebuild control plane: versioned rebuild
configs, the cohort registry, batch seed jobs, and the provider status
endpoint.

The server URL resolves from --server, then the REBUILD_SERVER environment
variable, then http://localhost:8080.`,
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "Rebuild server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")

	viper.SetEnvPrefix("REBUILD")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))

	rootCmd.AddCommand(configsCmd)
	rootCmd.AddCommand(cohortsCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(healthCmd)
}

// serverURL returns the effective server URL from flag or environment.
func serverURL() string {
	return viper.GetString("server")
}
