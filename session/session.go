// Package session holds the state shared by the exporter, the dispatcher and
// the importer during a single lighting build.
package session

import (
	"sync/atomic"

	"github.com/achilleasa/lightmass/config"
	"github.com/achilleasa/lightmass/log"
	"github.com/achilleasa/lightmass/stats"
	"github.com/achilleasa/lightmass/types"
)

// Debug output requested for a build.
type Debug struct {
	// Mapping whose texels are traced with debug output by the workers.
	MappingGuid types.GUID
	PadMappings bool
	ErrorColors bool
}

// Progress is invoked with the current build phase and a completion ratio in
// [0, 1].
type Progress func(phase string, done float32)

// Session is created per lighting build.
type Session struct {
	Config *config.Config

	// Optional debug settings; nil unless debug output was requested.
	Debug *Debug

	Stats    stats.Statistics
	Messages *stats.MessageLog

	progress Progress
	canceled atomic.Bool
}

// Create a new session for the given configuration.
func New(cfg *config.Config) *Session {
	s := &Session{
		Config:   cfg,
		Messages: stats.NewMessageLog(log.New("lightmass")),
	}

	if cfg.Debug.MappingGuid != "" || cfg.Debug.PadMappings || cfg.Debug.ErrorColors {
		s.Debug = &Debug{
			PadMappings: cfg.Debug.PadMappings,
			ErrorColors: cfg.Debug.ErrorColors,
		}
		if cfg.Debug.MappingGuid != "" {
			guid, err := types.ParseGUID(cfg.Debug.MappingGuid)
			if err != nil {
				s.Messages.Addf(stats.Warning, "ignoring invalid debug mapping guid: %v", err)
			} else {
				s.Debug.MappingGuid = guid
			}
		}
	}
	return s
}

// Register a progress callback.
func (s *Session) OnProgress(fn Progress) {
	s.progress = fn
}

// Report progress for a build phase.
func (s *Session) ReportProgress(phase string, done float32) {
	if s.progress != nil {
		s.progress(phase, done)
	}
}

// Request the build to stop. Safe for concurrent use.
func (s *Session) Cancel() {
	s.canceled.Store(true)
}

// Returns true if the build was canceled.
func (s *Session) Canceled() bool {
	return s.canceled.Load()
}

// Get the debug mapping GUID or the zero GUID when not debugging.
func (s *Session) DebugMappingGuid() types.GUID {
	if s.Debug == nil {
		return types.GUID{}
	}
	return s.Debug.MappingGuid
}
