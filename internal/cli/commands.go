package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rpattn/datastash/internal/config"
	"github.com/rpattn/datastash/internal/domain"
	"github.com/rpattn/datastash/internal/pipeline"
	"github.com/rpattn/datastash/internal/report"
	"github.com/rpattn/datastash/pkg/preview"
)

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return invalidInvocation(err)
		}
		return nil
	}
}

func (a *App) processCommand() *cobra.Command {
	var sources []string
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Read each source and write it into the workspace in the chosen format",
		Example: `  datastash process -s data.csv -s book.xlsx -w ./ws --format json
  datastash process -s survey.RData -w ./ws`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			session := domain.NewSession(a.fs)
			confirmFailures := 0
			for _, source := range sources {
				if err := session.ConfirmSource(source); err != nil {
					a.printf("%v\n", err)
					confirmFailures++
				}
			}
			if a.cfg.Workspace != "" {
				if err := session.ConfirmWorkspace(a.cfg.Workspace); err != nil {
					return err
				}
			}

			result, err := a.newPipeline().Process(cmd.Context(), session, a.cfg.Format)
			if err != nil {
				return err
			}
			if out := result.String(); out != "" {
				a.printf("%s\n", out)
			}

			failed := result.Failed() + confirmFailures
			if failed > 0 {
				return itemFailures(failed, len(sources), "sources")
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&sources, "source", "s", nil, "data source file (repeatable)")
	flags.StringP("format", "f", "", "artifact format: binary|json")
	flags.Bool("convert-tables", false, "convert tables to JSON records when the format is json")
	_ = a.v.BindPFlag(config.KeyFormat, flags.Lookup("format"))
	_ = a.v.BindPFlag(config.KeyConvertTables, flags.Lookup("convert-tables"))
	return cmd
}

func (a *App) deserializeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deserialize PATH",
		Short: "Load one artifact, print a preview and record it in the operation log",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			value, err := a.newPipeline().DeserializeOne(a.cfg.OperationLogPath(""), path)
			if value.IsZero() {
				return err
			}
			a.printf("Deserialized data:\n")
			fmt.Fprintln(cmd.OutOrStdout(), preview.Render(value, a.cfg.PreviewChars))
			return err
		},
	}
}

func (a *App) replayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Deserialize every distinct artifact named in the operation log",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			logPath, err := a.operationLog("")
			if err != nil {
				return err
			}
			result, err := a.newPipeline().Replay(cmd.Context(), logPath)
			if err != nil {
				return err
			}
			a.writeReplay(cmd, result)
			if failed := result.Failed(); failed > 0 {
				return itemFailures(failed, len(result.Results), "artifacts")
			}
			return nil
		},
	}
}

func (a *App) writeReplay(cmd *cobra.Command, result pipeline.ReplayReport) {
	for _, res := range result.Results {
		a.printf("%s\n", res.Message())
		if res.Value.IsZero() {
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deserialized data from %s: %s\n", res.Path, preview.Render(res.Value, a.cfg.PreviewChars))
	}
}

func (a *App) reportCommand() *cobra.Command {
	var (
		output   string
		xlsxPath string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize every artifact named in the operation log",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := report.ParseOutput(output)
			if err != nil {
				return invalidInvocation(err)
			}
			logPath, err := a.operationLog("")
			if err != nil {
				return err
			}

			summary, err := a.newReportService().Build(cmd.Context(), logPath)
			if err != nil {
				return err
			}
			if err := summary.Write(cmd.OutOrStdout(), out); err != nil {
				return err
			}

			if xlsxPath == "" {
				return nil
			}
			if info, err := a.fs.Stat(xlsxPath); err == nil && info.IsDir() {
				xlsxPath = filepath.Join(xlsxPath, report.DefaultXLSXName(logPath, time.Now()))
			}
			if err := summary.WriteXLSX(a.fs, xlsxPath); err != nil {
				return err
			}
			a.printf("report workbook written to: %s\n", xlsxPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", string(report.OutputTable), "output format: table|yaml")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also write the report to this workbook (or into this directory)")
	return cmd
}
