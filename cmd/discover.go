package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hr-contact-discovery/internal/discovery"
)

func newDiscoverCmd() *cobra.Command {
	var name, company string
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Runs one discovery and prints the JSON report",
		Long: `Runs a single discovery for a person and/or company and writes the
report to stdout. Interrupting the command still prints whatever was found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			req := discovery.Request{Name: name, CompanyName: company}
			run, runErr := appInstance.Discover(cmd.Context(), req)
			if run.Report == nil {
				if runErr == nil {
					runErr = errors.New("run produced no report")
				}
				return fmt.Errorf("discover: %w", runErr)
			}
			if runErr != nil {
				appInstance.Logger().Warn("discovery ended early", zap.String("run_id", run.ID), zap.Error(runErr))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(run.Report); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name of the person")
	cmd.Flags().StringVar(&company, "company", "", "company name")
	return cmd
}
