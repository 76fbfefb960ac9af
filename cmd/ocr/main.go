// Command subtrack-ocr runs the document scan pipeline over image files.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/common/version"
	"github.com/spf13/cobra"

	"github.com/subtrack/nativebridge/internal/logger"
	"github.com/subtrack/nativebridge/internal/ocr"
	"github.com/subtrack/nativebridge/internal/ocr/tesseract"
	"github.com/subtrack/nativebridge/internal/scan"
)

var (
	// Global flags
	languages []string
	logLevel  string

	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "subtrack-ocr",
	Short: "Recognize text on scanned document pages",
	Long: `subtrack-ocr runs the same pipeline the bridge serves on its OCR channel.

Pages are recognized concurrently and printed as a JSON array in page order.
Pages without recognizable text are left out.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := logger.FromConfig(logLevel, "text")
		cfg.Output = os.Stderr
		log = logger.New(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&languages, "lang", "l", []string{"en-US"}, "recognition languages as BCP-47 tags")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newLanguagesCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newScanCmd() *cobra.Command {
	var (
		inbox          string
		consume        bool
		maxConcurrency int
	)

	cmd := &cobra.Command{
		Use:   "scan [page files...]",
		Short: "Recognize the given pages, or every page in an inbox directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if inbox == "" && len(args) == 0 {
				return errors.New("pass page files or --inbox")
			}

			var scanner scan.Scanner
			if inbox != "" {
				scanner = scan.DirectoryScanner{Dir: inbox, Consume: consume}
			} else {
				pages, err := readPages(args)
				if err != nil {
					return err
				}
				scanner = scan.StaticScanner{Pages: pages}
			}

			pipeline := scan.NewPipeline(scanner, tesseract.New(ocr.TesseractLanguages(languages)), scan.Options{
				MaxConcurrency: maxConcurrency,
			}, log)

			texts, err := pipeline.ScanDocument(context.Background())
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			return printJSON(texts)
		},
	}

	cmd.Flags().StringVar(&inbox, "inbox", "", "directory of page images, read in file name order")
	cmd.Flags().BoolVar(&consume, "consume", false, "remove inbox pages after reading them")
	cmd.Flags().IntVar(&maxConcurrency, "max-concurrency", 0, "maximum pages recognized at once (0 = all)")
	return cmd
}

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "Print the tesseract languages selected by --lang",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(ocr.TesseractLanguages(languages))
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Print("subtrack-ocr"))
		},
	}
}

func readPages(paths []string) ([]scan.Page, error) {
	pages := make([]scan.Page, 0, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read page %s: %w", path, err)
		}
		pages = append(pages, scan.Page{Index: i, Name: filepath.Base(path), Image: data})
	}
	return pages, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
