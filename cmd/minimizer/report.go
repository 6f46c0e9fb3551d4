package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"minimizer/internal/balance"
	id "minimizer/pkg/domain"
)

func newBalanceCmd(a *app) *cobra.Command {
	var xlsxPath string
	cmd := &cobra.Command{
		Use:   "balance TRIAL",
		Short: "Show arm balance per variable over active patients",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trialID, err := id.ParseTrialID(args[0])
			if err != nil {
				return err
			}
			rep, err := a.svc.Balance(a.actorContext(cmd.Context()), trialID)
			if err != nil {
				return err
			}
			if xlsxPath != "" {
				if err := writeWorkbook(xlsxPath, trialID, rep); err != nil {
					return err
				}
			}
			return a.emit(rep, func() error {
				a.println("%s", titleStyle.Render(fmt.Sprintf("Balance for %s: %d active of %d patients",
					trialID, rep.ActivePatients, rep.TotalPatients)))
				for _, t := range rep.Tables {
					rows := t.Rows()
					a.println("\n%s", titleStyle.Render(t.Variable))
					a.println("%s", renderTable(rows[0], rows[1:]))
					if note := t.Note(); note != "" {
						a.println("%s", noteStyle.Render(note))
					}
				}
				if xlsxPath != "" {
					a.println("\nWorkbook written to %s", xlsxPath)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also write the report to this .xlsx file")
	return cmd
}

func writeWorkbook(path string, trialID id.TrialID, rep balance.Report) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create workbook: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", cerr)
		}
	}()
	return balance.WriteXLSX(f, "Balance "+trialID.String(), rep)
}

func newAuditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "audit TRIAL",
		Short: "Print a trial's audit trail, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trialID, err := id.ParseTrialID(args[0])
			if err != nil {
				return err
			}
			events, err := a.svc.AuditTrail(a.actorContext(cmd.Context()), trialID)
			if err != nil {
				return err
			}
			return a.emit(events, func() error {
				rows := make([][]string, 0, len(events))
				for _, e := range events {
					rows = append(rows, []string{
						e.Timestamp.Format("2006-01-02 15:04:05"),
						string(e.Action),
						e.Actor.String(),
						strings.TrimSpace(string(e.Data)),
					})
				}
				a.println("%s", renderTable([]string{"Time", "Action", "Actor", "Details"}, rows))
				return nil
			})
		},
	}
}
