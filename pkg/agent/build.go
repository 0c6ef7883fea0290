package agent

import (
	"fmt"

	"github.com/dotsetgreg/dotpersona/pkg/adaptation"
	"github.com/dotsetgreg/dotpersona/pkg/bus"
	"github.com/dotsetgreg/dotpersona/pkg/config"
	"github.com/dotsetgreg/dotpersona/pkg/evallog"
	"github.com/dotsetgreg/dotpersona/pkg/evaluation"
	"github.com/dotsetgreg/dotpersona/pkg/memory"
	"github.com/dotsetgreg/dotpersona/pkg/personality"
)

// NewFromConfig wires the store, engine, evaluator and (when enabled) the
// evaluation journal from cfg. The returned close func releases the journal.
func NewFromConfig(cfg *config.Config, mb *bus.MessageBus) (*Agent, func() error, error) {
	engineSettings, err := adaptation.SettingsFromConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("adaptation settings: %w", err)
	}
	store, err := memory.NewStore(memory.Options{
		Dir:    cfg.DataDir(),
		Bounds: engineSettings.Bounds,
		Capacities: personality.Capacities{
			History:     cfg.Storage.HistoryCapacity,
			Progression: cfg.Persona.ProgressionCapacity,
		},
	})
	if err != nil {
		return nil, nil, err
	}

	closer := func() error { return nil }
	var journal *evallog.Journal
	var evalJournal evaluation.Journal
	if cfg.Evaluation.EnableJournal {
		journal, err = evallog.Open(cfg.JournalPath())
		if err != nil {
			return nil, nil, fmt.Errorf("open evaluation journal: %w", err)
		}
		evalJournal = journal
		closer = journal.Close
	}

	opts := Options{
		Store:     store,
		Engine:    adaptation.NewEngine(store, engineSettings),
		Evaluator: evaluation.NewEvaluator(store, evalJournal, evaluation.SettingsFromConfig(cfg)),
		Bus:       mb,
	}
	if journal != nil {
		opts.Journal = journal
	}
	a, err := New(opts)
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return a, closer, nil
}
