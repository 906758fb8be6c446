package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/user/emrchat/internal/errors"
	"github.com/user/emrchat/internal/fhir"
	"github.com/user/emrchat/internal/tools"
)

type probeOptions struct {
	name      string
	mrn       string
	patientID string
	jsonOut   bool
}

func newProbeCmd() *cobra.Command {
	opts := &probeOptions{}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Smoke test the FHIR record server",
		Long: `Run a fixed set of lookups against the configured record server:

  1. search all patients
  2. search patients by name
  3. search patients by MRN
  4. get patient details

Each step reports its outcome; a failing step does not stop the others.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			records := fhir.NewClient(cfg.FHIR)
			fmt.Fprintf(cmd.OutOrStdout(), "Probing FHIR server at %s\n", records.BaseURL())
			return runProbe(cmd.Context(), records, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "SARAH", "Name to search for")
	cmd.Flags().StringVar(&opts.mrn, "mrn", "10868", "MRN to search for")
	cmd.Flags().StringVar(&opts.patientID, "patient-id", "10868", "Patient id to fetch")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print full normalized records")

	return cmd
}

func init() {
	rootCmd.AddCommand(newProbeCmd())
}

type probeStep struct {
	title string
	run   func(ctx context.Context) (any, string, error)
}

func runProbe(ctx context.Context, records tools.RecordStore, opts *probeOptions, out io.Writer) error {
	search := func(q fhir.PatientSearch) func(context.Context) (any, string, error) {
		return func(ctx context.Context) (any, string, error) {
			res, err := records.SearchPatients(ctx, q)
			if err != nil {
				return nil, "", err
			}
			summary := fmt.Sprintf("found %d patients", res.Total)
			if len(res.Results) > 0 {
				if p, ok := res.Results[0].(fhir.Patient); ok {
					summary += fmt.Sprintf(", first: %s (MRN %s)", p.Name, deref(p.MRN))
				}
			}
			return res, summary, nil
		}
	}

	steps := []probeStep{
		{title: "search all patients", run: search(fhir.PatientSearch{})},
		{title: fmt.Sprintf("search by name (%s)", opts.name), run: search(fhir.PatientSearch{Name: opts.name})},
		{title: fmt.Sprintf("search by MRN (%s)", opts.mrn), run: search(fhir.PatientSearch{MRN: opts.mrn})},
		{title: fmt.Sprintf("get patient details (%s)", opts.patientID), run: func(ctx context.Context) (any, string, error) {
			p, err := records.GetPatient(ctx, opts.patientID)
			if err != nil {
				return nil, "", err
			}
			return p, fmt.Sprintf("%s, born %s, marital status %s, citizenship %s",
				p.Name, deref(p.BirthDate), deref(p.MaritalStatus), deref(p.Citizenship)), nil
		}},
	}

	failed := 0
	for i, step := range steps {
		fmt.Fprintf(out, "\n%d. %s\n", i+1, step.title)
		value, summary, err := step.run(ctx)
		if err != nil {
			failed++
			fmt.Fprintf(out, "   error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "   %s\n", summary)
		if opts.jsonOut {
			data, err := json.MarshalIndent(value, "   ", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "   %s\n", data)
		}
	}

	if failed > 0 {
		return errors.NewError(fmt.Sprintf("%d of %d probe steps failed", failed, len(steps)), errors.ExitRecordError)
	}
	fmt.Fprintln(out, "\nAll probe steps passed")
	return nil
}

func deref(s *string) string {
	if s == nil {
		return "n/a"
	}
	return *s
}
