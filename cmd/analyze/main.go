package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/9gptlog/dossier-analyzer/internal/analysis"
	"github.com/9gptlog/dossier-analyzer/internal/extractor"
	"github.com/9gptlog/dossier-analyzer/internal/models"
	"github.com/9gptlog/dossier-analyzer/internal/refdata"
	"github.com/9gptlog/dossier-analyzer/internal/segmenter"
	"github.com/9gptlog/dossier-analyzer/pkg/checksum"
)

var (
	flagNUP         string
	flagMode        string
	flagCatalogPath string
	flagWorkers     int
	flagVerbose     bool
)

// rootCmd analyzes a dossier given as one text file per page, in
// dossier order.
var rootCmd = &cobra.Command{
	Use:   "analyze [page files...]",
	Short: "Analyze a procurement dossier from extracted page texts",
	Long: `Analyze a procurement dossier and print the findings, the suggested
outcome, the commitment masks and the draft dispatch text.

Each argument is a text file holding the extracted text of one page.
Pages are taken in argument order.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.Flags().StringVar(&flagNUP, "nup", "", "process number (NUP) of the dossier")
	rootCmd.Flags().StringVar(&flagMode, "mode", string(models.ModeFull), "analysis mode: full or credit_note_pending")
	rootCmd.Flags().StringVar(&flagCatalogPath, "catalog", "refdata/catalog.yaml", "path to the reference catalog YAML")
	rootCmd.Flags().IntVar(&flagWorkers, "workers", 4, "number of extraction workers")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "log pipeline progress and per-file checksums")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	log := logrus.New()
	if flagVerbose {
		log.SetLevel(logrus.InfoLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}

	pages := make([]models.Page, 0, len(args))
	for i, path := range args {
		text, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read page file %s: %w", path, err)
		}
		if flagVerbose {
			sum, err := checksum.GetFileChecksum(path)
			if err != nil {
				return fmt.Errorf("failed to fingerprint page file %s: %w", path, err)
			}
			log.WithFields(logrus.Fields{"file": path, "checksum": sum}).Info("Loaded page")
		}
		pages = append(pages, models.Page{Number: i + 1, Text: string(text)})
	}

	catalog, err := refdata.Load(flagCatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load reference catalog: %w", err)
	}

	service := analysis.NewService(
		segmenter.New(),
		extractor.New(),
		analysis.NewAsyncWorker(),
		catalog,
		analysis.ServiceConfig{NumExtractionWorkers: flagWorkers},
		log,
	)

	result, err := service.Analyze(context.Background(), analysis.Request{
		NUP:   flagNUP,
		Pages: pages,
		Mode:  models.Mode(flagMode),
	})
	if err != nil {
		return err
	}

	printResult(cmd, result)
	return nil
}

func printResult(cmd *cobra.Command, result *models.AnalysisResult) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "NUP:       %s\n", result.Dossier.NUP)
	fmt.Fprintf(out, "Run:       %s\n", result.RunID)
	fmt.Fprintf(out, "Mode:      %s\n", result.Mode)
	fmt.Fprintf(out, "Checksum:  %s\n", result.Checksum)
	fmt.Fprintf(out, "Suggested: %s\n", result.Suggested)

	findings := append([]models.Finding(nil), result.Findings...)
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Severity > findings[j].Severity
	})
	fmt.Fprintf(out, "\nFindings (%d):\n", len(findings))
	for _, f := range findings {
		fmt.Fprintf(out, "  [%s] %s: %s\n", strings.ToUpper(f.Severity.String()), f.Rule, f.Message)
	}

	if len(result.Masks) > 0 {
		fmt.Fprintf(out, "\nMasks:\n")
		for _, m := range result.Masks {
			fmt.Fprintf(out, "  %s\n", m)
		}
	}

	if result.DispatchText != "" {
		fmt.Fprintf(out, "\nDispatch draft:\n%s\n", result.DispatchText)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
