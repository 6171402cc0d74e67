package arg

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether you are clocked in",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		st, err := client.Status(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Status:", st.Status)
		if st.Session != nil {
			fmt.Fprintln(out, "Clocked in at:", st.Session.CheckIn)
			fmt.Fprintf(out, "Hours so far: %.2f\n", st.Session.DurationHours)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
