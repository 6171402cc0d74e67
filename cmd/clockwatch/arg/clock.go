package arg

import (
	"fmt"

	"tn-work/internal/clockclient"

	"github.com/spf13/cobra"
)

var inCmd = &cobra.Command{
	Use:   "in",
	Short: "Clock in",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		session, err := client.ClockIn(cmd.Context())
		if clockclient.IsConflict(err) {
			return fmt.Errorf("already clocked in")
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Clocked in at:", session.CheckIn)
		return nil
	},
}

var outCmd = &cobra.Command{
	Use:   "out",
	Short: "Clock out",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		result, err := client.ClockOut(cmd.Context(), clockclient.SourceManual)
		if err != nil {
			return err
		}
		if result.AlreadyOut || result.Session == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Already clocked out")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Clocked out, %.2f hours\n", result.Session.DurationHours)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inCmd)
	rootCmd.AddCommand(outCmd)
}
