package main

import (
	"github.com/spf13/cobra"

	"minimizer/internal/trial/models"
	id "minimizer/pkg/domain"
	"minimizer/pkg/platform/httputil"
)

func newPatientCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Enroll and manage trial patients",
	}
	cmd.AddCommand(
		newPatientAddCmd(a),
		newPatientStatusCmd(a, "deactivate", "Exclude a patient from future allocations", false),
		newPatientStatusCmd(a, "reactivate", "Include a deactivated patient again", true),
		newPatientReassignCmd(a),
	)
	return cmd
}

func newPatientAddCmd(a *app) *cobra.Command {
	var (
		chars map[string]string
		arm   string
	)
	cmd := &cobra.Command{
		Use:     "add TRIAL PATIENT --set variable=value ...",
		Short:   "Enroll a patient and allocate an arm",
		Example: "  minimizer patient add ADJ-01 P-001 --set gender=female --set age='<65'",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			trialID, err := id.ParseTrialID(args[0])
			if err != nil {
				return err
			}
			req := models.EnrollRequest{PatientID: args[1], Characteristics: chars, Arm: arm}
			if err := httputil.ValidateStruct(&req); err != nil {
				return err
			}
			result, err := a.svc.Enroll(a.actorContext(cmd.Context()), trialID, req)
			if err != nil {
				return err
			}
			return a.emit(result, func() error {
				a.println("Patient %s allocated to %s (%s)",
					result.Patient.ID, result.Allocation.Arm, result.Allocation.Method)
				return nil
			})
		},
	}
	cmd.Flags().StringToStringVarP(&chars, "set", "s", nil, "characteristic as variable=value (repeatable)")
	cmd.Flags().StringVar(&arm, "arm", "", "assign this arm manually (rejected in strict mode)")
	_ = cmd.MarkFlagRequired("set")
	return cmd
}

func newPatientStatusCmd(a *app, use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " TRIAL PATIENT",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			trialID, err := id.ParseTrialID(args[0])
			if err != nil {
				return err
			}
			ctx := a.actorContext(cmd.Context())
			if active {
				err = a.svc.Reactivate(ctx, trialID, args[1])
			} else {
				err = a.svc.Deactivate(ctx, trialID, args[1])
			}
			if err != nil {
				return err
			}
			out := map[string]any{"trial_id": trialID, "patient_id": args[1], "active": active}
			return a.emit(out, func() error {
				a.println("Patient %s %sd", args[1], use)
				return nil
			})
		},
	}
}

func newPatientReassignCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reassign TRIAL PATIENT ARM",
		Short: "Move a patient to another arm",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			trialID, err := id.ParseTrialID(args[0])
			if err != nil {
				return err
			}
			req := models.ReassignRequest{Arm: args[2]}
			previous, err := a.svc.ReassignArm(a.actorContext(cmd.Context()), trialID, args[1], req)
			if err != nil {
				return err
			}
			out := map[string]any{"patient_id": args[1], "previous_arm": previous, "arm": args[2]}
			return a.emit(out, func() error {
				a.println("Patient %s moved from %s to %s", args[1], previous, args[2])
				return nil
			})
		},
	}
}
