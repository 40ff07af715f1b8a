package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/atotto/clipboard"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/RafaelBenildoMafra/Tia-Parser/internal/config"
	plferrors "github.com/RafaelBenildoMafra/Tia-Parser/internal/errors"
	"github.com/RafaelBenildoMafra/Tia-Parser/internal/export"
	"github.com/RafaelBenildoMafra/Tia-Parser/internal/logging"
	"github.com/RafaelBenildoMafra/Tia-Parser/internal/plf"
)

type extractFlags struct {
	inputPath  string
	configPath string
	logLevel   string
	logFile    string
	copyPath   bool
	noProgress bool
}

func newExtractCmd() *cobra.Command {
	flags := &extractFlags{}

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract PLC block reference addresses from a .plf container",
		Long: `extract walks a TIA Portal project container file through the six-pass
parser and writes export.txt in the input file's directory: one line per
reachable address, "<dotted_name>, 8A0E<hex address>".`,
		Example: `  # Extract from a specific file
  plfscan extract --input project.plf

  # Prompt for a file with the interactive picker
  plfscan extract

  # Use a non-default config and copy the export path to the clipboard
  plfscan extract --input project.plf --config plfscan.yaml --copy-path`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(flags)
		},
	}

	cmd.Flags().StringVar(&flags.inputPath, "input", "", "Path to the .plf container (prompted interactively if omitted)")
	cmd.Flags().StringVar(&flags.configPath, "config", "plfscan.yaml", "Path to the YAML config file (auto-created if missing)")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Override the configured log level (silent|error|warn|info|verbose|debug)")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "Override the configured log file path")
	cmd.Flags().BoolVar(&flags.copyPath, "copy-path", false, "Copy the export.txt path to the clipboard on success")
	cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "Disable the live progress display")

	return cmd
}

func runExtract(flags *extractFlags) error {
	cfg, err := config.LoadConfig(flags.configPath, true)
	if err != nil {
		return plferrors.WrapConfigError(err, flags.configPath)
	}

	logLevel := cfg.LogLevel
	if flags.logLevel != "" {
		logLevel = flags.logLevel
	}
	logFile := cfg.LogFile
	if flags.logFile != "" {
		logFile = flags.logFile
	}

	logger, err := logging.NewLogger(logging.ParseLevel(logLevel), logFile)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Close()

	inputPath := flags.inputPath
	if inputPath == "" {
		inputPath, err = pickInputPath()
		if err != nil {
			return err
		}
	}

	info, err := os.Stat(inputPath)
	if err != nil {
		return plferrors.WrapFileError(err, inputPath)
	}

	logger.LogStartup(inputPath, humanize.Bytes(uint64(info.Size())))

	opts := plf.PipelineOptions{
		InputPath:         inputPath,
		RegexTimeout:      cfg.RegexTimeout,
		ReferenceMaxDepth: cfg.ReferenceMaxDepth,
		DomainTag:         cfg.DomainTag,
		ShowProgress:      !flags.noProgress,
	}

	start := time.Now()
	run := func() (plf.Result, error) { return plf.Run(opts, logger) }

	var result plf.Result
	if flags.noProgress {
		result, err = run()
	} else {
		result, err = runWithProgress(run)
	}
	if err != nil {
		return plferrors.WrapFileError(err, inputPath)
	}
	elapsed := time.Since(start)

	outputPath := filepath.Join(filepath.Dir(inputPath), cfg.OutputFileName)
	if err := export.WriteFile(outputPath, result.Addresses); err != nil {
		return err
	}
	logger.LogPassSummary("export", len(result.Addresses), elapsed.String())

	fmt.Fprintln(os.Stdout, renderSummary(inputPath, outputPath, info.Size(), result, elapsed))

	if flags.copyPath {
		if err := clipboard.WriteAll(outputPath); err != nil {
			logger.Warn("could not copy export path to clipboard: %v", err)
		}
	}

	return nil
}

