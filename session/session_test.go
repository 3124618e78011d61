package session

import (
	"testing"

	"github.com/achilleasa/lightmass/config"
	"github.com/achilleasa/lightmass/stats"
	"github.com/achilleasa/lightmass/types"
)

func TestDebugOptions(t *testing.T) {
	type spec struct {
		debug     config.Debug
		expDebug  bool
		expGuid   types.GUID
		expWarned bool
	}
	specs := []spec{
		{config.Debug{}, false, types.GUID{}, false},
		{config.Debug{PadMappings: true}, true, types.GUID{}, false},
		{config.Debug{MappingGuid: "0000000A0000000B0000000C0000000D"}, true, types.GUID{A: 10, B: 11, C: 12, D: 13}, false},
		{config.Debug{MappingGuid: "nope"}, true, types.GUID{}, true},
	}

	for index, s := range specs {
		cfg := config.Default()
		cfg.Debug = s.debug
		sess := New(cfg)

		if (sess.Debug != nil) != s.expDebug {
			t.Fatalf("[spec %d] expected debug options to be present: %t", index, s.expDebug)
		}
		if got := sess.DebugMappingGuid(); got != s.expGuid {
			t.Fatalf("[spec %d] expected debug guid %s; got %s", index, s.expGuid, got)
		}
		if warned := sess.Messages.Count(stats.Warning) > 0; warned != s.expWarned {
			t.Fatalf("[spec %d] expected warning: %t", index, s.expWarned)
		}
	}
}

func TestCancelAndProgress(t *testing.T) {
	sess := New(config.Default())
	var phases []string
	sess.OnProgress(func(phase string, _ float32) {
		phases = append(phases, phase)
	})
	sess.ReportProgress("export", 0.5)

	if len(phases) != 1 || phases[0] != "export" {
		t.Fatalf("unexpected progress reports %v", phases)
	}
	if sess.Canceled() {
		t.Fatal("expected a fresh session not to be canceled")
	}
	sess.Cancel()
	if !sess.Canceled() {
		t.Fatal("expected session to be canceled")
	}
}
