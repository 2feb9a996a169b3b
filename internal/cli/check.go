package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/pipeline"
)

var (
	outJSON      string
	checkTimeout time.Duration
	llmProvider  string
	llmModel     string
	noHistory    bool
	fetchPages   bool
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check <claim>",
	Short: "Check a single claim against web evidence",
	Long: `Check runs one claim through the full pipeline:
- Decompose the claim into verifiable sub-claims
- Search the web for evidence on each sub-claim
- Rate every source for relevance, credibility, and stance
- Fold the weighted signal into a verdict with citations

Example:
  veracity check "The Eiffel Tower is 330 metres tall"
  veracity check "Germany phased out nuclear power in 2023" --json verdict.json
  veracity check "..." --llm-provider ollama --llm-model llama3`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&outJSON, "json", "", "write the full verdict as JSON to this path")
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 3*time.Minute, "overall check timeout")
	checkCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, anthropic, ollama)")
	checkCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
	checkCmd.Flags().BoolVar(&noHistory, "no-history", false, "skip the historical store (always run the pipeline)")
	checkCmd.Flags().BoolVar(&fetchPages, "fetch-pages", false, "enrich evidence with robots-aware page text")
}

func runCheck(cmd *cobra.Command, args []string) error {
	claim := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	cfg, err := overrideConfig()
	if err != nil {
		return err
	}
	cfg.Pipeline.RunTimeout = checkTimeout

	checker, err := pipeline.New(cfg, newLogger())
	if err != nil {
		return err
	}
	defer func() { _ = checker.Close() }()

	_, events, err := checker.Submit(ctx, claim, "local")
	if err != nil {
		return err
	}

	var verdict *model.Verdict
	for ev := range events {
		switch ev.Kind {
		case model.EventStageStarted:
			if verbose {
				fmt.Fprintf(os.Stderr, "⚙️  %s\n", ev.Stage)
			}
		case model.EventSubClaimReady:
			if verbose {
				fmt.Fprintf(os.Stderr, "  [%d] %s\n", ev.SubClaim.Index+1, ev.SubClaim.Text)
			}
		case model.EventSubVerdictReady:
			if verbose {
				fmt.Fprintf(os.Stderr, "  [%d] %s (%.2f, %d sources)\n",
					ev.SubVerdict.SubClaimIndex+1, ev.SubVerdict.Category,
					ev.SubVerdict.Confidence, ev.SubVerdict.EvidenceCount)
			}
		case model.EventDone:
			verdict = ev.Verdict
		case model.EventFailed:
			return fmt.Errorf("check failed at %s: %s", ev.FailureStage, ev.Error)
		}
	}
	if verdict == nil {
		return fmt.Errorf("check produced no verdict")
	}

	printVerdict(claim, verdict)

	if outJSON != "" {
		data, err := json.MarshalIndent(verdict, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal verdict: %w", err)
		}
		if err := os.WriteFile(outJSON, data, 0o644); err != nil {
			return fmt.Errorf("write verdict: %w", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote JSON: %s\n", outJSON)
		}
	}
	return nil
}

// overrideConfig loads config, applies check command flags, and
// resolves API keys.
func overrideConfig() (*model.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if llmProvider != "" {
		cfg.LLM.Provider = llmProvider
	}
	if llmModel != "" {
		cfg.LLM.Model = llmModel
	}
	if noHistory {
		cfg.History.Path = ""
	}
	if fetchPages {
		cfg.Retrieve.FetchPages = true
	}
	if err := resolveKeys(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printVerdict(claim string, v *model.Verdict) {
	fmt.Printf("\nClaim: %s\n", claim)
	fmt.Printf("Verdict: %s (confidence %.2f)", strings.ToUpper(string(v.Category)), v.Confidence)
	if v.FromHistory {
		fmt.Printf(" [from history]")
	}
	fmt.Printf("\n\n%s\n", v.Summary)

	if len(v.SubVerdicts) > 0 {
		fmt.Printf("\nSub-claims:\n")
		for _, sv := range v.SubVerdicts {
			marker := " "
			if sv.HumanAdjusted {
				marker = "*"
			}
			fmt.Printf("  %s[%d] %-15s %.2f  %s\n", marker, sv.SubClaimIndex+1, sv.Category, sv.Confidence, sv.Claim)
		}
	}
	if len(v.Citations) > 0 {
		fmt.Printf("\nSources:\n")
		for _, cit := range v.Citations {
			fmt.Printf("  - %s\n    %s\n", cit.Title, cit.URL)
		}
	}
	fmt.Println()
}
