package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rpattn/datastash/internal/domain"
	"github.com/rpattn/datastash/pkg/preview"
)

const sessionHelp = `commands:
  source PATH       confirm a data source
  workspace PATH    confirm the workspace directory
  format FORMAT     choose binary or json
  process           serialize every confirmed source
  deserialize PATH  load one artifact and preview it
  replay            deserialize everything in the operation log
  report            summarize the operation log
  reset             forget confirmed paths
  status            show confirmed paths and format
  quit              leave the session`

// interactive holds the state of one session command: the confirmed paths and format.
type interactive struct {
	app     *App
	cmd     *cobra.Command
	session *domain.Session
	format  domain.Format
	out     io.Writer
}

func (a *App) sessionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Confirm paths and run actions interactively, one command per line",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := &interactive{
				app:     a,
				cmd:     cmd,
				session: domain.NewSession(a.fs),
				format:  a.cfg.Format,
				out:     cmd.OutOrStdout(),
			}
			if a.cfg.Workspace != "" {
				if err := s.session.ConfirmWorkspace(a.cfg.Workspace); err != nil {
					a.printf("%v\n", err)
				}
			}
			return s.run(cmd.Context(), cmd.InOrStdin())
		},
	}
}

func (s *interactive) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for {
		s.app.printf("> ")
		if !scanner.Scan() {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		verb, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		arg = strings.TrimSpace(arg)
		if verb == "" {
			continue
		}
		if !s.dispatch(ctx, strings.ToLower(verb), arg) {
			return nil
		}
	}
	s.app.printf("\n")
	return scanner.Err()
}

// dispatch runs one command and reports whether the session continues.
func (s *interactive) dispatch(ctx context.Context, verb, arg string) bool {
	switch verb {
	case "quit", "exit":
		return false
	case "help", "?":
		s.app.printf("%s\n", sessionHelp)
	case "source":
		if err := s.session.ConfirmSource(arg); err != nil {
			s.app.printf("%v\n", err)
			return true
		}
		s.app.printf("data source confirmed: %s\n", arg)
	case "workspace":
		if err := s.session.ConfirmWorkspace(arg); err != nil {
			s.app.printf("%v\n", err)
			return true
		}
		s.app.printf("workspace confirmed: %s\n", arg)
	case "format":
		format, err := domain.ParseFormat(arg)
		if err != nil {
			s.app.printf("%v\n", err)
			return true
		}
		s.format = format
		s.app.printf("format set to: %s\n", format)
	case "process":
		result, err := s.app.newPipeline().Process(ctx, s.session, s.format)
		if err != nil {
			s.app.printf("%v\n", err)
			return true
		}
		s.app.printf("%s\n", result.String())
	case "deserialize":
		if arg == "" {
			s.app.printf("%v\n", domain.ErrEmptyPath)
			return true
		}
		if abs, err := filepath.Abs(arg); err == nil {
			arg = abs
		}
		value, err := s.app.newPipeline().DeserializeOne(s.logPath(), arg)
		if err != nil {
			s.app.printf("%v\n", err)
		}
		if !value.IsZero() {
			s.app.printf("Deserialized data:\n")
			fmt.Fprintln(s.out, preview.Render(value, s.app.cfg.PreviewChars))
		}
	case "replay":
		logPath := s.logPath()
		if logPath == "" {
			s.app.printf("%v\n", domain.ErrNoPaths)
			return true
		}
		result, err := s.app.newPipeline().Replay(ctx, logPath)
		if err != nil {
			s.app.printf("%v\n", err)
			return true
		}
		s.app.writeReplay(s.cmd, result)
	case "report":
		logPath := s.logPath()
		if logPath == "" {
			s.app.printf("%v\n", domain.ErrNoPaths)
			return true
		}
		summary, err := s.app.newReportService().Build(ctx, logPath)
		if err == nil {
			err = summary.WriteTable(s.out)
		}
		if err != nil {
			s.app.printf("%v\n", err)
		}
	case "reset":
		s.session.Reset()
		s.app.printf("confirmed paths cleared\n")
	case "status":
		s.app.printf("sources: %s\nworkspace: %s\nformat: %s\nlog: %s\n",
			strings.Join(s.session.Sources(), ", "), s.session.Workspace(), s.format, s.logPath())
	default:
		s.app.printf("unknown command %q, type help for the list\n", verb)
	}
	return true
}

func (s *interactive) logPath() string {
	return s.app.cfg.OperationLogPath(s.session.Workspace())
}
