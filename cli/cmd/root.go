package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "batchctl",
	Short: "batchctl submits product image tables and tracks their jobs",
	Long: `batchctl is the command-line client for the image batch service.

A job is a CSV or XLSX table with the columns "Serial Number", "Product Name"
and "Input Image Urls". Every image is fetched, re-encoded as a JPEG and
stored; the result table lists the new URLs alongside the originals.

Common workflows:

  Submit a table:
    batchctl submit products.csv --webhook https://example.com/hooks/batch

  Check a job:
    batchctl status <job-id>

  Wait for a job to finish:
    batchctl status <job-id> --wait

Configuration:
  BATCHCTL_URL    API endpoint (default: http://localhost:8081)
  Or put "url: ..." in $HOME/.batchctl.yaml`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".batchctl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BATCHCTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.batchctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8081", "image batch API URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
}
