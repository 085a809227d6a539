package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/v0xg/applypilot/internal/agent"
	"github.com/v0xg/applypilot/internal/automation"
	"github.com/v0xg/applypilot/internal/browser"
	"github.com/v0xg/applypilot/internal/classifier"
	"github.com/v0xg/applypilot/internal/config"
	"github.com/v0xg/applypilot/internal/cost"
	"github.com/v0xg/applypilot/internal/dom"
	"github.com/v0xg/applypilot/internal/fill"
	"github.com/v0xg/applypilot/internal/matcher"
	"github.com/v0xg/applypilot/internal/metrics"
	"github.com/v0xg/applypilot/internal/observability"
	"github.com/v0xg/applypilot/internal/orchestrator"
	"github.com/v0xg/applypilot/internal/platform"
	"github.com/v0xg/applypilot/internal/profile"
	"github.com/v0xg/applypilot/internal/progress"
	"github.com/v0xg/applypilot/internal/scanner"
	"github.com/v0xg/applypilot/internal/trail"
	"go.uber.org/zap"
)

var (
	configFile  string
	profileFile string
	platformID  string
	budget      float64
	headless    bool
	browserDir  string
	metricsFile string
	noTrail     bool
	verbose     bool
	qaLabel     string
)

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "applypilot",
		Short: "Fill job application forms up to the final review page",
		Long: `applypilot walks a job application flow in a real browser, fills every form page
from your profile, and stops on the final review page so you can check and submit
the application yourself. It never clicks the final submit button.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./applypilot.yaml if present)")
	rootCmd.PersistentFlags().StringVarP(&profileFile, "profile", "p", "profile.yaml", "Applicant profile")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed progress")

	applyCmd := &cobra.Command{
		Use:   "apply <job-url>",
		Short: "Fill an application and stop at the review page",
		Example: `  applypilot apply "https://boards.greenhouse.io/acme/jobs/123" -p profile.yaml
  applypilot apply "https://acme.wd5.myworkdayjobs.com/..." --browser-profile ~/.applypilot/chrome`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, v, args[0])
		},
	}
	applyCmd.Flags().StringVar(&platformID, "platform", "", "Site platform: "+strings.Join(platform.IDs(), ", ")+" (default: detected from the URL)")
	applyCmd.Flags().Float64Var(&budget, "budget", 0, "Cost budget in dollars for this application")
	applyCmd.Flags().BoolVar(&headless, "headless", false, "Run the browser headless")
	applyCmd.Flags().StringVar(&browserDir, "browser-profile", "", "Chrome/Chromium profile directory for signed-in sessions (close browser first)")
	applyCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write run metrics in prometheus text format")
	applyCmd.Flags().BoolVar(&noTrail, "no-trail", false, "Do not record the review trail GIF")
	_ = v.BindPFlag("budget.task_budget", applyCmd.Flags().Lookup("budget"))
	_ = v.BindPFlag("browser.headless", applyCmd.Flags().Lookup("headless"))
	_ = v.BindPFlag("browser.profile_dir", applyCmd.Flags().Lookup("browser-profile"))
	_ = v.BindPFlag("metrics.file", applyCmd.Flags().Lookup("metrics-file"))
	_ = v.BindPFlag("orchestrator.platform", applyCmd.Flags().Lookup("platform"))

	qaCmd := &cobra.Command{
		Use:   "qa",
		Short: "Show which profile answer a form label would get",
		Example: `  applypilot qa --label "Legal First Name *"
  applypilot qa            # list every question the profile can answer`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQA(v)
		},
	}
	qaCmd.Flags().StringVarP(&qaLabel, "label", "l", "", "Form label to match")

	rootCmd.AddCommand(applyCmd, qaCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logger.Level = "debug"
	}
	observability.InitializeLogger(cfg.Logger)
	return cfg, nil
}

func runApply(cmd *cobra.Command, v *viper.Viper, jobURL string) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	defer observability.Sync()

	runID := strings.SplitN(uuid.NewString(), "-", 2)[0]
	logger := observability.GetLogger().With(zap.String("run", runID))

	prof, err := profile.Load(profileFile)
	if err != nil {
		return err
	}
	qa := profile.BuildQAMap(prof)

	id := cfg.Orchestrator.Platform
	if id == "" {
		id = platform.Detect(jobURL)
	}
	plat, err := platform.Resolve(id)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	// Step 1: Resolve documents
	fmt.Print("→ Resolving resume... ")
	resolver := profile.NewResumeResolver(cfg.Resume.Region, cfg.Resume.CacheDir, logger)
	resumePath, err := resolver.Resolve(ctx, prof.Resume)
	if err != nil {
		fmt.Println("failed")
		return fmt.Errorf("resume: %w", err)
	}
	coverPath, err := resolver.Resolve(ctx, prof.CoverLetter)
	if err != nil {
		fmt.Println("failed")
		return fmt.Errorf("cover letter: %w", err)
	}
	if resumePath == "" {
		fmt.Println("none (upload fields will be left for you)")
	} else {
		fmt.Println("done")
	}

	// Step 2: Launch the browser
	fmt.Print("→ Launching browser... ")
	b, err := browser.Launch(ctx, browser.Options{
		Width:             cfg.Browser.Width,
		Height:            cfg.Browser.Height,
		Headless:          cfg.Browser.Headless,
		ProfileDir:        cfg.Browser.ProfileDir,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		IdleTimeout:       cfg.Browser.IdleTimeout,
		KeepOpen:          cfg.Browser.KeepOpen,
	}, logger)
	if err != nil {
		fmt.Println("failed")
		return err
	}
	defer b.Close()
	fmt.Println("done")

	// Step 3: Agents
	tracker := cost.NewTracker(cfg.Budget.TaskBudget, pricing(cfg.Budget.Pricing), logger)
	collector := metrics.NewCollector(runID, tracker, logger)
	agentDeps := agent.Deps{
		Surface:  b,
		Spender:  tracker,
		Limiter:  agent.NewLimiter(cfg.Agent.MinCallGap),
		Actions:  agent.NewActionCounter(cfg.Agent.MaxActions),
		Observer: collector,
		Logger:   logger,
	}
	applicant := plat.FormatApplicantData(prof)

	primary, err := newAgent("primary", cfg.Agent.Primary, cfg.Agent.MaxActionsPerAct, cfg, applicant, agentDeps)
	if err != nil {
		return fmt.Errorf("primary agent: %w", err)
	}
	agents := fill.Agents{Primary: primary}
	if cfg.Agent.Cheap.Provider != "" {
		cheap, err := newAgent("cheap", cfg.Agent.Cheap, 2, cfg, applicant, agentDeps)
		if err != nil {
			logger.Warn("cheap agent unavailable, using batch fill", zap.Error(err))
		} else {
			agents.Cheap = cheap
		}
	}
	if cfg.Agent.Escalation.Provider != "" {
		esc, err := newAgent("escalation", cfg.Agent.Escalation, cfg.Agent.MaxActionsPerAct, cfg, applicant, agentDeps)
		if err != nil {
			agents.Escalation = escalationFallback(primary, err, logger)
		} else {
			agents.Escalation = esc
		}
	}

	// Step 4: Pipeline
	steps := progress.NewTracker(logger, func(step string) {
		if verbose {
			fmt.Printf("  · %s\n", step)
		}
	})
	doc := dom.New(b, plat.DropdownPlaceholders(), cfg.Fill.SettleDelay)

	recorders := fill.Recorders{collector}
	var review *trail.Recorder
	if cfg.Trail.Enabled && !noTrail {
		review = trail.NewRecorder(b, doc, runID, trail.Options{
			Dir:        cfg.Trail.Dir,
			MaxWidth:   cfg.Trail.MaxWidth,
			FrameDelay: time.Duration(cfg.Trail.FrameMs) * time.Millisecond,
		}, logger)
		recorders = append(recorders, review)
	}

	pipeline, err := fill.New(fill.Options{
		MaxCycles:           cfg.Fill.MaxCycles,
		MaxConsecutiveNoops: cfg.Fill.MaxConsecutiveNoops,
		CleanupAgentCalls:   cfg.Fill.CleanupAgentCalls,
		EscalationSoftCap:   cfg.Fill.EscalationSoftCap,
		MinRemainingBudget:  cfg.Fill.MinRemainingBudget,
		BatchStepFraction:   cfg.Fill.BatchStepFraction,
		NavigationGrace:     cfg.Fill.NavigationGrace,
		MaxRefillDepth:      cfg.Fill.MaxRefillDepth,
		ResumePath:          resumePath,
		CoverLetterPath:     coverPath,
		ProceedLabels:       plat.ProceedLabels(),
		FinalSubmitLabels:   plat.FinalSubmitLabels(),
		ValidationSelectors: plat.ValidationErrorSelectors(),
	}, fill.Deps{
		Document: doc,
		Scanner:  scanner.New(doc, cfg.Fill.ScanStepFraction, logger),
		Matcher: &matcher.Matcher{
			MinWordOverlap:   cfg.Matcher.MinWordOverlap,
			MinStemOverlap:   cfg.Matcher.MinStemOverlap,
			ShortKeyMaxWords: cfg.Matcher.ShortKeyMaxWords,
		},
		Agents:   agents,
		Budget:   tracker,
		Progress: steps,
		Recorder: recorders,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	var uploads []string
	if resumePath != "" {
		uploads = []string{resumePath}
	}
	orch, err := orchestrator.New(orchestrator.Options{
		MaxPages:         cfg.Orchestrator.MaxPages,
		StuckThreshold:   cfg.Orchestrator.StuckThreshold,
		ChallengeTimeout: cfg.Orchestrator.ChallengeTimeout,
		ChallengePoll:    cfg.Orchestrator.ChallengePoll,
	}, orchestrator.Deps{
		Document:   doc,
		Classifier: classifier.New(doc, primary, plat, logger),
		Filler:     pipeline,
		Agent:      primary,
		Profile:    prof,
		QA:         qa,
		Progress:   steps,
		Observers:  []orchestrator.PageObserver{collector},
		FileChooser: func(ctx context.Context) error {
			return b.ListenFileChooser(ctx, uploads)
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	// Step 5: Run
	fmt.Printf("→ Applying via %s (%d answers, budget $%.2f)...\n", plat.Name(), len(qa), tracker.TaskBudget())
	start := time.Now()
	res, runErr := orch.Run(ctx, jobURL)

	if review != nil {
		fmt.Print("→ Writing review trail... ")
		path, size, err := review.Write()
		switch {
		case err != nil:
			fmt.Println("failed")
			logger.Warn("review trail not written", zap.Error(err))
		case path == "":
			fmt.Println("nothing captured")
		default:
			fmt.Printf("done (%s, %.1f KB)\n", path, float64(size)/1024)
		}
	}
	if cfg.Metrics.File != "" {
		if err := collector.WriteToTextfile(cfg.Metrics.File); err != nil {
			logger.Warn("metrics not written", zap.Error(err))
		}
	}

	printSummary(res, runErr, tracker, time.Since(start))
	if runErr != nil {
		return runErr
	}
	if !res.Success {
		return errors.New("application not completed")
	}
	return nil
}

func newAgent(name string, mc config.ModelConfig, maxActions int, cfg *config.Config, applicant string, deps agent.Deps) (*agent.Agent, error) {
	provider, err := agent.NewProvider(mc.Provider, mc.Model)
	if err != nil {
		return nil, err
	}
	return agent.New(agent.Config{
		Name:             name,
		MaxActionsPerAct: maxActions,
		ActionTimeout:    cfg.Agent.ActionTimeout,
		RateLimitBackoff: cfg.Agent.RateLimitBackoff,
		MaxPageTokens:    cfg.Agent.MaxPageTokens,
		MaxElements:      cfg.Agent.MaxElements,
		ScreenshotWidth:  cfg.Agent.ScreenshotWidth,
		ApplicantData:    applicant,
	}, provider, deps), nil
}

func pricing(in map[string]config.ModelPricing) map[string]cost.Pricing {
	out := make(map[string]cost.Pricing, len(in))
	for model, p := range in {
		out[model] = cost.Pricing{Input: p.Input, Output: p.Output}
	}
	return out
}

// escalationFallback keeps the escalation tier alive on the primary agent when the
// configured escalation agent cannot be built. Escalation calls still ask for vision.
func escalationFallback(primary automation.Agent, err error, logger *zap.Logger) automation.Agent {
	logger.Warn("escalation agent unavailable, escalating with the primary agent", zap.Error(err))
	return primary
}

func printSummary(res *orchestrator.Result, runErr error, tracker *cost.Tracker, elapsed time.Duration) {
	fmt.Println()
	if res == nil {
		fmt.Printf("⚠ Run failed: %v\n", runErr)
		return
	}
	filled := res.DOMFilled + res.LLMFilled + res.AgentFilled
	switch {
	case res.AwaitingUserReview:
		fmt.Println("✓ Application is ready for your review. Check it in the browser and submit it yourself.")
	case res.Success:
		fmt.Printf("✓ Finished on a %s page\n", res.FinalPage)
	case res.Stuck:
		fmt.Printf("⚠ Stopped: %s\n", res.Error)
	default:
		fmt.Printf("⚠ Stopped on a %s page: %s\n", res.FinalPage, res.Error)
	}
	if runErr != nil && automation.IsManualIntervention(runErr) {
		fmt.Println("⚠ The browser is left open: finish this step by hand.")
	}
	fmt.Printf("  Pages: %d  Fields: %d/%d (dom %d, llm %d, agent %d)\n",
		res.PagesProcessed, filled, res.TotalFields, res.DOMFilled, res.LLMFilled, res.AgentFilled)
	fmt.Printf("  Spent: $%.3f of $%.2f in %s\n", tracker.Spent(), tracker.TaskBudget(), elapsed.Round(time.Second))
}

func runQA(v *viper.Viper) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	prof, err := profile.Load(profileFile)
	if err != nil {
		return err
	}
	qa := profile.BuildQAMap(prof)

	if qaLabel == "" {
		for _, k := range qa.Keys() {
			fmt.Printf("%s: %s\n", k, qa[k])
		}
		return nil
	}

	m := &matcher.Matcher{
		MinWordOverlap:   cfg.Matcher.MinWordOverlap,
		MinStemOverlap:   cfg.Matcher.MinStemOverlap,
		ShortKeyMaxWords: cfg.Matcher.ShortKeyMaxWords,
	}
	answer, ok := m.FindBestAnswer(qaLabel, qa)
	if !ok {
		fmt.Printf("⚠ No answer for %q\n", qaLabel)
		return nil
	}
	fmt.Printf("✓ %q → %s\n", qaLabel, answer)
	return nil
}
