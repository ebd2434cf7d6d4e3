package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"imageBatch/api/dto"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Get the status of a job",
	Long:  `Show the current status of a job (PENDING, PROCESSING, COMPLETED, FAILED) together with its input table and, once finished, its result table or failure reason.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetBool("wait")
		interval, _ := cmd.Flags().GetDuration("interval")
		if interval <= 0 {
			interval = 2 * time.Second
		}

		client := NewBatchClient(viper.GetString("url"))
		for {
			job, err := client.Status(args[0])
			if err != nil {
				if apiErr, ok := err.(*APIError); ok {
					cmd.Printf("Status failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
				}
				return err
			}

			if !wait || isTerminal(job.Status) {
				printStatus(cmd, job)
				return nil
			}
			time.Sleep(interval)
		}
	},
}

func isTerminal(status string) bool {
	return status == "COMPLETED" || status == "FAILED"
}

func printStatus(cmd *cobra.Command, job *dto.JobStatusResponse) {
	cmd.Printf("%s %sJob Details%s\n", statusIcon(job.Status), colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, job.JobID)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(job.Status))
	cmd.Printf("%sInput:%s       %s\n", colorDim, colorReset, orDash(job.InputURL))
	cmd.Printf("%sOutput:%s      %s\n", colorDim, colorReset, orDash(job.OutputURL))
	if job.FailureReason != "" {
		cmd.Printf("%sReason:%s      %s%s%s\n", colorDim, colorReset, colorRed, job.FailureReason, colorReset)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "COMPLETED":
		return colorGreen + "✓" + colorReset
	case "FAILED":
		return colorRed + "✗" + colorReset
	case "PROCESSING":
		return colorYellow + "⏳" + colorReset
	case "PENDING":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	switch status {
	case "COMPLETED":
		return colorGreen + status + colorReset
	case "FAILED":
		return colorRed + status + colorReset
	case "PROCESSING":
		return colorYellow + status + colorReset
	case "PENDING":
		return colorCyan + status + colorReset
	default:
		return status
	}
}

func init() {
	statusCmd.Flags().Bool("wait", false, "poll until the job is COMPLETED or FAILED")
	statusCmd.Flags().Duration("interval", 2*time.Second, "poll interval used with --wait")
	rootCmd.AddCommand(statusCmd)
}
