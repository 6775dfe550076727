package main

import (
	"encoding/json"
	"fmt"
	"os"

	"abtrust/adapters/events"
	"abtrust/adapters/excel"
	"abtrust/adapters/rng"
	"abtrust/app"
	"abtrust/domain/experiment"
	"abtrust/domain/stats"
	"abtrust/internal/bucketing"
	"abtrust/internal/report"
	"abtrust/internal/testkit"
	"abtrust/models"
	"abtrust/ports"

	"github.com/spf13/cobra"
)

func newAssignCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "assign [subject-id...]",
		Short: "Show the variant of each subject in every layer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.experimentConfig()
			if err != nil {
				return err
			}

			service := newService()
			for _, id := range args {
				assignments, err := service.AssignSubject(cfg, id)
				if err != nil {
					return err
				}
				fmt.Printf("👤 %s\n", id)
				for _, a := range assignments {
					fmt.Printf("   %-12s → %s\n", a.Layer, a.Variant)
				}
			}
			return nil
		},
	}
}

func newPlanCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute the required sample size and run length",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.experimentConfig()
			if err != nil {
				return err
			}

			plan, err := newService().Plan(cfg)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(plan)
			}

			fmt.Printf("\n📐 EXPERIMENT PLAN: %s\n", cfg.Name)
			fmt.Printf("Baseline: %.2f%% → target %.2f%% (lift %+.1f%%)\n",
				plan.BaselineRate*100, plan.TargetRate*100, plan.MDETarget*100)
			fmt.Printf("Effect size (Cohen's h): %.4f\n", plan.EffectSize)
			fmt.Printf("Alpha: %.3f, power: %.0f%%\n", plan.Alpha, plan.PowerTarget*100)
			fmt.Printf("Required subjects: %d total (%.0f per group)\n", plan.RequiredN, plan.RequiredPerGroup)
			fmt.Printf("Run length: %d days at %d subjects/day\n", plan.RequiredDays, plan.DailyVolume)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the plan as JSON")
	return cmd
}

// reportOutputs are the optional renderings shared by analyze and simulate
type reportOutputs struct {
	format       string
	xlsxPath     string
	markdownPath string
}

func (o *reportOutputs) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.format, "format", "text", "Console output: text, json or markdown")
	cmd.Flags().StringVar(&o.xlsxPath, "xlsx", "", "Also write the report as an Excel workbook")
	cmd.Flags().StringVar(&o.markdownPath, "markdown", "", "Also write the report as Markdown")
}

func (o *reportOutputs) emit(r *models.AnalysisReport) error {
	switch o.format {
	case "json":
		if err := printJSON(r); err != nil {
			return err
		}
	case "markdown", "md":
		fmt.Print(report.Markdown(r))
	case "text", "":
		printReport(r)
	default:
		return fmt.Errorf("unsupported format %q", o.format)
	}

	if o.xlsxPath != "" {
		if err := excel.NewReportWriter(r).SaveAs(o.xlsxPath); err != nil {
			return err
		}
		fmt.Printf("\n💾 Workbook saved to: %s\n", o.xlsxPath)
	}
	if o.markdownPath != "" {
		if err := os.WriteFile(o.markdownPath, []byte(report.Markdown(r)), 0644); err != nil {
			return fmt.Errorf("failed to write markdown report: %w", err)
		}
		fmt.Printf("💾 Markdown saved to: %s\n", o.markdownPath)
	}
	return nil
}

func newAnalyzeCmd(opts *globalOptions) *cobra.Command {
	var counts experiment.AggregateCounts
	var countsFile, eventsFile, eventsURL string
	outputs := &reportOutputs{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Test, estimate and audit the primary layer",
		Long: `Analyze a snapshot of the primary layer's counts.

Counts come from flags, a counts sheet (xlsx or csv with variant,n,successes columns)
or raw observations (JSON lines or an HTTP endpoint), which are bucketed on the primary layer.

Example: abtrust analyze --a-n 30000 --a-successes 3000 --b-n 30000 --b-successes 3300`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.experimentConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			service := newService()

			var source ports.ObservationSource
			switch {
			case eventsFile != "":
				source = events.NewFileSource(eventsFile)
			case eventsURL != "":
				source = events.NewHTTPSource(events.HTTPSourceConfig{URL: eventsURL})
			}

			var r *models.AnalysisReport
			switch {
			case source != nil:
				r, err = service.AnalyzeObservations(ctx, cfg, source)
			case countsFile != "":
				fileCounts, readErr := excel.NewCountsReader(countsFile).ReadCounts()
				if readErr != nil {
					return readErr
				}
				r, err = service.Analyze(ctx, app.AnalysisRequest{Config: cfg, Counts: fileCounts})
			default:
				r, err = service.Analyze(ctx, app.AnalysisRequest{Config: cfg, Counts: counts})
			}
			if err != nil {
				return err
			}
			return outputs.emit(r)
		},
	}

	cmd.Flags().IntVar(&counts.A.N, "a-n", 0, "Subjects exposed to A")
	cmd.Flags().IntVar(&counts.A.Successes, "a-successes", 0, "Conversions in A")
	cmd.Flags().IntVar(&counts.B.N, "b-n", 0, "Subjects exposed to B")
	cmd.Flags().IntVar(&counts.B.Successes, "b-successes", 0, "Conversions in B")
	cmd.Flags().StringVar(&countsFile, "counts-file", "", "Counts sheet (.xlsx or .csv)")
	cmd.Flags().StringVar(&eventsFile, "events", "", "Observations as JSON lines")
	cmd.Flags().StringVar(&eventsURL, "events-url", "", "HTTP endpoint serving observations")
	cmd.MarkFlagsMutuallyExclusive("counts-file", "events", "events-url")
	outputs.register(cmd)
	return cmd
}

func newAACheckCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "aa-check",
		Short: "Simulate an A/A experiment on the primary layer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.experimentConfig()
			if err != nil {
				return err
			}

			result, err := newService().RunAACheck(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			fmt.Printf("\n🧪 A/A CHECK on %s (%d subjects)\n", result.Layer, result.Subjects)
			fmt.Printf("A: %s   B: %s\n", result.Counts.A, result.Counts.B)
			fmt.Printf("z = %.3f, p = %.4f\n", result.Test.ZStatistic, result.Test.PValue)
			if result.Passed {
				fmt.Printf("✅ No difference detected at alpha %.2f\n", result.Alpha)
			} else {
				fmt.Printf("⚠️  A/A difference is significant at alpha %.2f: check the assignment pipeline\n", result.Alpha)
			}
			return nil
		},
	}
}

func newCalibrateCmd(opts *globalOptions) *cobra.Command {
	req := app.CalibrationRequest{}

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Measure the false-positive rate over many simulated A/A experiments",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.experimentConfig()
			if err != nil {
				return err
			}
			req.Config = cfg

			result, err := newService().Calibrate(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Printf("\n🎯 CALIBRATION: %d trials of %d subjects (A=%d, B=%d)\n",
				result.Trials, result.Subjects, result.GroupA, result.GroupB)
			fmt.Printf("Rejections: %d (%.2f%%, nominal %.2f%%)\n",
				result.Rejections, result.RejectionRate*100, result.Alpha*100)
			fmt.Printf("p-values: mean %.3f, median %.3f\n", result.MeanPValue, result.MedianPValue)
			if result.Calibrated {
				fmt.Println("✅ False-positive rate matches alpha")
			} else {
				fmt.Println("❌ False-positive rate is outside the expected range")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&req.Trials, "trials", app.DefaultCalibrationTrials, "Number of simulated experiments")
	cmd.Flags().IntVar(&req.Subjects, "subjects", 0, "Subjects per experiment (0 = aa_sample_size)")
	cmd.Flags().IntVar(&req.Workers, "workers", 0, "Parallel workers (0 = one per CPU)")
	return cmd
}

func newOrthogonalityCmd(opts *globalOptions) *cobra.Command {
	var subjects int

	cmd := &cobra.Command{
		Use:   "orthogonality [first-layer second-layer]",
		Short: "Test that two layers assign independently",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected no layers or exactly two, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.experimentConfig()
			if err != nil {
				return err
			}

			if err := bucketing.ValidateCheck(subjects, cfg.Alpha); err != nil {
				return err
			}

			names := args
			if len(names) != 2 {
				if len(cfg.Layers) < 2 {
					return fmt.Errorf("two layers are needed, %d configured", len(cfg.Layers))
				}
				names = []string{cfg.Layers[0].Name, cfg.Layers[1].Name}
			}

			assigners := make([]*bucketing.Assigner, 2)
			for i, name := range names {
				layer, ok := cfg.Layer(name)
				if !ok {
					return fmt.Errorf("layer %q is not configured", name)
				}
				if assigners[i], err = bucketing.NewEvenAssigner(layer); err != nil {
					return err
				}
			}

			r := bucketing.CheckOrthogonality(bucketing.SubjectIDs("user_", subjects), assigners[0], assigners[1], cfg.Alpha)

			fmt.Printf("\n🔀 ORTHOGONALITY: %s × %s over %d subjects\n", r.FirstLayer, r.SecondLayer, r.Subjects)
			fmt.Printf("%-6s", "")
			for _, v := range r.ColVariants {
				fmt.Printf("%10s", r.SecondLayer+"="+string(v))
			}
			fmt.Println()
			for i, v := range r.RowVariants {
				fmt.Printf("%-6s", string(v))
				for _, cell := range r.Table[i] {
					fmt.Printf("%10d", cell)
				}
				fmt.Println()
			}
			fmt.Printf("chi² = %.3f (df %d), p = %.4f\n", r.ChiSquare, r.DegreesOfFreedom, r.PValue)
			if r.Independent {
				fmt.Println("✅ Layers are independent")
			} else {
				fmt.Println("❌ Layers are correlated: use distinct salts")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&subjects, "subjects", 100000, "Synthetic subjects to bucket")
	return cmd
}

func newSimulateCmd(opts *globalOptions) *cobra.Command {
	traffic := testkit.DefaultTrafficConfig()
	var jsonlPath string
	outputs := &reportOutputs{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate synthetic traffic with a known lift and analyze it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.experimentConfig()
			if err != nil {
				return err
			}
			traffic.Layers = cfg.Layers
			if !cmd.Flags().Changed("effect-layer") {
				traffic.EffectLayer = cfg.PrimaryLayer
			}

			generator, err := testkit.NewTrafficGenerator(traffic, rng.ForSeed(cfg.Seed))
			if err != nil {
				return err
			}

			fmt.Printf("🎲 Simulating %d subjects over %d days, true lift %+.1f%% in %s\n",
				traffic.Subjects(), traffic.Days, traffic.TrueLift*100, traffic.EffectLayer)

			if jsonlPath != "" {
				if err := generator.WriteToFile(cmd.Context(), jsonlPath); err != nil {
					return err
				}
				fmt.Printf("💾 Observations saved to: %s\n", jsonlPath)
			}

			r, err := newService().AnalyzeObservations(cmd.Context(), cfg, generator)
			if err != nil {
				return err
			}
			return outputs.emit(r)
		},
	}
	cmd.Flags().IntVar(&traffic.DailyVolume, "daily", traffic.DailyVolume, "Subjects per day")
	cmd.Flags().IntVar(&traffic.Days, "days", traffic.Days, "Days of traffic")
	cmd.Flags().Float64Var(&traffic.BaselineRate, "baseline", traffic.BaselineRate, "Control conversion rate")
	cmd.Flags().Float64Var(&traffic.TrueLift, "lift", traffic.TrueLift, "True relative lift of B")
	cmd.Flags().StringVar(&traffic.EffectLayer, "effect-layer", "", "Layer carrying the effect (default: primary layer)")
	cmd.Flags().StringVar(&jsonlPath, "jsonl", "", "Also write the observations as JSON lines")
	outputs.register(cmd)
	return cmd
}

func printReport(r *models.AnalysisReport) {
	fmt.Printf("\n📊 ANALYSIS: %s / %s (run %s)\n", r.Experiment, r.Layer, r.RunID)
	fmt.Printf("A: %s   B: %s\n", r.Counts.A, r.Counts.B)

	if r.Test != nil {
		fmt.Printf("\n📈 Frequentist: z = %.3f, p = %.4f", r.Test.ZStatistic, r.Test.PValue)
		if r.Test.LiftDefined {
			fmt.Printf(", observed lift %+.2f%%", r.Test.ObservedLift*100)
		}
		fmt.Println()
	} else {
		fmt.Printf("\n📈 Frequentist: unavailable (%s)\n", r.TestError)
	}

	if r.Bayes != nil {
		fmt.Printf("🎲 Bayesian: P(B > A) = %.1f%%, 95%% lift interval [%+.2f%%, %+.2f%%]\n",
			r.Bayes.ProbBBetter*100, r.Bayes.LiftInterval.Lower*100, r.Bayes.LiftInterval.Upper*100)
		mark := "⚠️ "
		if r.Bayes.Decision == stats.DecisionConfident {
			mark = "✅"
		}
		fmt.Printf("%s Bayesian call at %.0f%%: %s\n", mark, r.Bayes.DecisionThreshold*100, r.Bayes.Decision.Summary())
	} else {
		fmt.Printf("🎲 Bayesian: unavailable (%s)\n", r.BayesError)
	}

	if r.Plan != nil {
		fmt.Printf("📐 Plan: %d subjects needed, %d collected\n", r.Plan.RequiredN, r.Counts.Total())
	} else {
		fmt.Printf("📐 Plan: unavailable (%s)\n", r.PlanError)
	}

	if r.Audit == nil {
		fmt.Printf("\n🚫 AUDIT BLOCKED: %s\n", r.AuditError)
		return
	}
	fmt.Printf("\n🛡️  TRUST AUDIT: %d/100, %s confidence\n", r.Audit.Score, r.Audit.Confidence)
	for _, check := range r.Audit.Checks {
		mark := "❌"
		if check.Passed {
			mark = "✅"
		}
		fmt.Printf("%s %s (%d): %s\n", mark, check.Name, check.Weight, check.Explanation)
	}
	fmt.Printf("👉 %s\n", r.Audit.Action)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
