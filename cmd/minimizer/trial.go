package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"minimizer/internal/trial/models"
	id "minimizer/pkg/domain"
	"minimizer/pkg/platform/httputil"
)

func newTrialCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trial",
		Short: "Create, inspect and archive trials",
	}
	cmd.AddCommand(
		newTrialCreateCmd(a),
		newTrialListCmd(a),
		newTrialShowCmd(a),
		newTrialArchiveCmd(a),
	)
	return cmd
}

func newTrialCreateCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create -f trial.yaml",
		Short: "Create a trial from a YAML definition",
		Example: `  # trial.yaml
  trial_id: ADJ-01
  arms: [control, treatment]
  variables:
    - name: gender
      values: [male, female]
    - name: age
      values: ["<65", ">=65"]
  weight: 0.8
  strict_mode: true`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := readTrialDefinition(file)
			if err != nil {
				return err
			}
			trial, err := a.svc.CreateTrial(a.actorContext(cmd.Context()), *req)
			if err != nil {
				return err
			}
			return a.emit(trial, func() error {
				a.println("Created trial %s with arms %s (seed %s)",
					trial.ID, strings.Join(trial.Config.Arms, ", "), trial.Config.Seed)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "trial definition (YAML)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readTrialDefinition(path string) (*models.CreateTrialRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trial definition: %w", err)
	}
	var req models.CreateTrialRequest
	if err := yaml.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("parse trial definition %s: %w", path, err)
	}
	if err := httputil.ValidateStruct(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func newTrialListCmd(a *app) *cobra.Command {
	var archived bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List trials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			trials, err := a.svc.ListTrials(a.actorContext(cmd.Context()), archived)
			if err != nil {
				return err
			}
			return a.emit(trials, func() error {
				if len(trials) == 0 {
					a.println("No trials.")
					return nil
				}
				rows := make([][]string, 0, len(trials))
				for _, t := range trials {
					status := "open"
					if t.Archived {
						status = "archived"
					}
					rows = append(rows, []string{
						t.ID.String(),
						strings.Join(t.Arms, ", "),
						strings.Join(t.Variables, ", "),
						strconv.Itoa(t.ActivePatients) + "/" + strconv.Itoa(t.TotalPatients),
						status,
					})
				}
				a.println("%s", renderTable([]string{"Trial", "Arms", "Variables", "Active/Total", "Status"}, rows))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "include archived trials")
	return cmd
}

func newTrialShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show TRIAL",
		Short: "Show a trial's configuration and patients",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trialID, err := id.ParseTrialID(args[0])
			if err != nil {
				return err
			}
			trial, err := a.svc.GetTrial(a.actorContext(cmd.Context()), trialID)
			if err != nil {
				return err
			}
			return a.emit(trial, func() error {
				cfg := trial.Config
				a.println("%s", titleStyle.Render("Trial "+trial.ID.String()))
				a.println("Arms:        %s", strings.Join(cfg.Arms, ", "))
				for _, v := range cfg.Variables {
					a.println("Variable:    %s (%s)", v.Name, strings.Join(v.Values, ", "))
				}
				a.println("Weight:      %v", cfg.Weight)
				a.println("Seed:        %s", cfg.Seed)
				a.println("Strict mode: %t", cfg.StrictMode)
				a.println("Created:     %s by %s", trial.CreatedAt.Format("2006-01-02 15:04"), trial.CreatedBy)
				if trial.ArchivedAt != nil {
					a.println("Archived:    %s", trial.ArchivedAt.Format("2006-01-02 15:04"))
				}

				patients := trial.Registry.Patients()
				if len(patients) == 0 {
					a.println("No patients enrolled.")
					return nil
				}
				headers := append([]string{"Patient"}, cfg.VariableNames()...)
				headers = append(headers, "Arm", "Active", "Enrolled")
				rows := make([][]string, 0, len(patients))
				for _, p := range patients {
					row := []string{p.ID.String()}
					for _, name := range cfg.VariableNames() {
						row = append(row, p.Characteristics[name])
					}
					row = append(row, p.Arm, strconv.FormatBool(p.Active), p.EnrolledAt.Format("2006-01-02 15:04"))
					rows = append(rows, row)
				}
				a.println("%s", renderTable(headers, rows))
				return nil
			})
		},
	}
}

func newTrialArchiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "archive TRIAL",
		Short: "Freeze a trial and write its archive bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trialID, err := id.ParseTrialID(args[0])
			if err != nil {
				return err
			}
			result, err := a.svc.ArchiveTrial(a.actorContext(cmd.Context()), trialID)
			if err != nil {
				return err
			}
			return a.emit(result, func() error {
				a.println("Archived trial %s; bundle written to %s", trialID, result.BundleKey)
				return nil
			})
		},
	}
}
