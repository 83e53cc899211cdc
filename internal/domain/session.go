package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"
)

// ErrEmptyPath is returned when a confirmation action receives no path.
var ErrEmptyPath = errors.New("you need to submit your path first")

// Session holds the source paths and workspace a user has confirmed for one run.
// Paths are checked when confirmed; the pipeline re-checks them when processing.
type Session struct {
	fs        afero.Fs
	sources   []string
	workspace string
}

// NewSession creates an empty session that validates paths against fs.
func NewSession(fs afero.Fs) *Session {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Session{fs: fs}
}

// ConfirmSource adds path to the source list if it is an existing regular file.
func (s *Session) ConfirmSource(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return ErrEmptyPath
	}
	info, err := s.fs.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return NewItemError(ErrorKindNotFound, path, fmt.Errorf("data source %w", ErrSourceNotFound))
	}
	s.sources = append(s.sources, path)
	return nil
}

// ConfirmWorkspace sets the workspace if path is an existing directory.
func (s *Session) ConfirmWorkspace(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return ErrEmptyPath
	}
	info, err := s.fs.Stat(path)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrWorkspaceNotFound, path)
	}
	s.workspace = path
	return nil
}

// Reset clears all confirmed paths.
func (s *Session) Reset() {
	s.sources = nil
	s.workspace = ""
}

// Sources returns a copy of the confirmed sources in confirmation order.
func (s *Session) Sources() []string {
	return append([]string(nil), s.sources...)
}

// Workspace returns the confirmed workspace, or "" if none.
func (s *Session) Workspace() string {
	return s.workspace
}

// Ready reports whether at least one source and a workspace are confirmed.
func (s *Session) Ready() bool {
	return len(s.sources) > 0 && s.workspace != ""
}
