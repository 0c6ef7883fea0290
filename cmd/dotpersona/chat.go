package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/dotsetgreg/dotpersona/pkg/agent"
	"github.com/dotsetgreg/dotpersona/pkg/evaluation"
	"github.com/dotsetgreg/dotpersona/pkg/personality"
)

type chatOutput struct {
	Turn       agent.TurnResult  `json:"turn" yaml:"turn"`
	Evaluation evaluation.Result `json:"evaluation" yaml:"evaluation"`
}

type chatSession struct {
	agent  *agent.Agent
	userID string
}

// turn adapts, answers and evaluates one message, timing the reply.
func (s *chatSession) turn(ctx context.Context, message string) (agent.TurnResult, evaluation.Result, error) {
	started := time.Now()
	turn, err := s.agent.ProcessTurn(ctx, s.userID, message)
	if err != nil {
		return agent.TurnResult{}, evaluation.Result{}, err
	}
	ev := s.agent.EvaluateTurn(ctx, turn.UserID, message, turn.ResponseText, time.Since(started))
	return turn, ev, nil
}

func (s *chatSession) interactive(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "%s Interactive mode as %s (Ctrl+C to exit, /profile, /report and /reload)\n\n", appName, s.userID)
	if in != os.Stdin {
		return s.simple(ctx, in, out)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s You: ", appName),
		HistoryFile:     filepath.Join(os.TempDir(), ".dotpersona_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          out,
	})
	if err != nil {
		fmt.Fprintf(out, "Error initializing readline: %v\n", err)
		fmt.Fprintln(out, "Falling back to simple input mode...")
		return s.simple(ctx, in, out)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Fprintln(out, "\nGoodbye!")
				return nil
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}
		if done := s.handleLine(ctx, line, out); done {
			return nil
		}
	}
}

func (s *chatSession) simple(ctx context.Context, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s You: ", appName)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				fmt.Fprintln(out, "\nGoodbye!")
				return nil
			}
			return err
		}
		if done := s.handleLine(ctx, line, out); done {
			return nil
		}
	}
}

// handleLine reports whether the session should end.
func (s *chatSession) handleLine(ctx context.Context, line string, out io.Writer) bool {
	input := strings.TrimSpace(line)
	switch input {
	case "":
		return false
	case "exit", "quit":
		fmt.Fprintln(out, "Goodbye!")
		return true
	case "/profile":
		p := s.agent.Store().GetProfile(ctx, s.userID)
		for _, d := range personality.Dimensions {
			fmt.Fprintf(out, "  %-16s %.3f\n", d, p.PersonalityVector.Get(d))
		}
		return false
	case "/reload":
		s.agent.Store().ClearCache()
		fmt.Fprintln(out, "Profile cache cleared.")
		return false
	case "/report":
		report, err := s.agent.QualityReport(ctx, s.userID)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return false
		}
		_ = writeOutput(out, formatYAML, report)
		return false
	}

	turn, ev, err := s.turn(ctx, input)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return false
	}
	fmt.Fprintf(out, "\n%s %s\n", appName, turn.ResponseText)
	for _, d := range turn.Deltas.Sorted() {
		fmt.Fprintf(out, "  %s %+.3f\n", d, turn.Deltas[d])
	}
	fmt.Fprintf(out, "  [quality %.2f %s]\n\n", ev.OverallQualityScore, ev.QualityCategory)
	return false
}
