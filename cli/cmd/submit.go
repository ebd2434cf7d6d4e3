package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var submitCmd = &cobra.Command{
	Use:   "submit [file]",
	Short: "Upload a product table and start a job",
	Long: `Upload a CSV or XLSX product table. The job id is printed on success.

Example:
  batchctl submit products.csv
  batchctl submit products.xlsx --webhook https://example.com/hooks/batch`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		webhook, _ := cmd.Flags().GetString("webhook")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		client := NewBatchClient(viper.GetString("url"))
		result, err := client.Submit(args[0], data, webhook)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Submit failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			}
			return err
		}

		cmd.Printf("%s Job submitted\n", statusIcon(result.Status))
		cmd.Printf("%sJob ID:%s      %s\n", colorDim, colorReset, result.JobID)
		cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(result.Status))
		return nil
	},
}

func init() {
	submitCmd.Flags().String("webhook", "", "URL to POST the job outcome to")
	rootCmd.AddCommand(submitCmd)
}
