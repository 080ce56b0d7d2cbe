// polistep verifies government benefit-program pages with an autonomous
// browsing agent and produces application guidance from what it finds.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"polistep/internal/config"
	"polistep/internal/llm"
	"polistep/internal/logging"
	"polistep/internal/progress"
	"polistep/internal/store"
	"polistep/internal/types"
	"polistep/internal/verify"
)

var (
	verbose   bool
	workspace string

	verifyTitle string
	verifyURL   string
	verifyForce bool
	verifyWatch bool
	recordLimit int

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "polistep",
	Short: "polistep - benefit-program eligibility verification pipeline",
	Long: `polistep runs an autonomous browsing agent against a benefit program's
announcement page, verifies the page, extracts eligibility criteria and
attachments, and generates a step-by-step application guide.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve workspace: %w", err)
			}
		}
		if err := logging.Initialize(workspace, verbose); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify one program's announcement page",
	Long: `Runs the full pipeline for one program: agent run, result repair,
artifact extraction, evidence bundling, guidance generation, and record
persistence.

Example:
  polistep verify --title "청년 월세 지원" --url https://www.gov.kr/...`,
	RunE: runVerify,
}

var recordCmd = &cobra.Command{
	Use:   "record [program-title]",
	Short: "Show the latest verification record for a program",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRecord,
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List recent verification records",
	RunE:  runRecords,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: cwd)")

	verifyCmd.Flags().StringVar(&verifyTitle, "title", "", "program title (required)")
	verifyCmd.Flags().StringVar(&verifyURL, "url", "", "entry URL (required)")
	verifyCmd.Flags().BoolVar(&verifyForce, "force", false, "run even when a verification is already pending")
	verifyCmd.Flags().BoolVar(&verifyWatch, "watch", false, "stream agent progress to stderr")
	_ = verifyCmd.MarkFlagRequired("title")
	_ = verifyCmd.MarkFlagRequired("url")

	recordsCmd.Flags().IntVar(&recordLimit, "limit", 20, "maximum records to list")

	rootCmd.AddCommand(verifyCmd, recordCmd, recordsCmd, configCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("no API key: set POLISTEP_API_KEY or GEMINI_API_KEY")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := llm.NewGeminiClient(ctx, cfg.LLM)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	orch := verify.New(cfg, client, st)
	sink := progress.NewChannel(cfg.Progress.QueueSize)

	observer := make(chan struct{})
	go func() {
		defer close(observer)
		for m := range sink.Messages() {
			if verifyWatch && m.Type == "log" {
				fmt.Fprintln(os.Stderr, m.Message)
			}
		}
	}()

	logger.Info("verification starting",
		zap.String("title", verifyTitle),
		zap.String("url", verifyURL),
		zap.Bool("force", verifyForce))

	rec := orch.Verify(ctx, types.VerificationTask{
		ProgramTitle: verifyTitle,
		TargetURL:    verifyURL,
		Force:        verifyForce,
	}, sink)
	<-observer

	logger.Info("verification finished",
		zap.String("id", rec.ID),
		zap.String("status", string(rec.Status)))

	return printJSON(rec)
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.LatestRecord(args[0])
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no record for %q", args[0])
	}
	return printJSON(rec)
}

func runRecords(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.ListRecords(recordLimit)
	if err != nil {
		return err
	}
	for _, r := range recs {
		fmt.Printf("%-36s  %-7s  %s  %s\n", r.ID, r.Status, r.LastVerifiedAt.Format("2006-01-02 15:04"), r.ProgramTitle)
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	cfg.LLM.APIKey = "" // never print secrets
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
