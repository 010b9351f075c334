// Package review is the interactive shell a reviewer uses to work through open
// conflicts and low-confidence concepts, recording each choice in the ledger.
package review

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/ledger"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/logging"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/orchestrator"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// errExit ends the loop without an error.
var errExit = errors.New("exit")

// Backend reads the replayed state and records decisions.
// *orchestrator.Orchestrator implements it.
type Backend interface {
	State(ctx context.Context) (*ledger.State, error)
	Decide(ctx context.Context, d *types.Decision) (*orchestrator.DecideResult, error)
}

// CommandHandler handles one command. args excludes the command name.
type CommandHandler func(ctx context.Context, args []string) error

// Config holds session configuration.
type Config struct {
	Backend Backend
	Actor   string
	// Stdin and Stdout default to the process streams.
	Stdin   io.ReadCloser
	Stdout  io.Writer
	History string
	Logger  *logging.Logger
}

// Session is one interactive review.
type Session struct {
	backend  Backend
	actor    string
	in       io.ReadCloser
	out      io.Writer
	history  string
	log      *logging.Logger
	commands map[string]CommandHandler

	// queue is the list last shown; numeric targets index into it.
	queue []Item
}

// New creates a Session.
func New(cfg *Config) (*Session, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	actor := cfg.Actor
	if actor == "" {
		actor = os.Getenv("USER")
	}
	if actor == "" {
		actor = "reviewer"
	}
	s := &Session{
		backend:  cfg.Backend,
		actor:    actor,
		in:       cfg.Stdin,
		out:      cfg.Stdout,
		history:  cfg.History,
		log:      cfg.Logger,
		commands: make(map[string]CommandHandler),
	}
	if s.out == nil {
		s.out = os.Stdout
	}
	if s.log == nil {
		s.log = logging.NewNop()
	}
	s.registerCommands()
	return s, nil
}

// Run starts the read-eval loop. It returns nil on exit or EOF.
func (s *Session) Run(ctx context.Context) error {
	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("review> "),
		HistoryFile:       s.history,
		AutoComplete:      s.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdin:             s.in,
		Stdout:            s.out,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	s.printWelcome()
	if err := s.cmdList(ctx, nil); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			} else if err == io.EOF {
				fmt.Fprintln(s.out)
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := s.Execute(ctx, line); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(s.out, "%s %v\n", red("Error:"), err)
		}
	}
}

// Execute runs a single command line.
func (s *Session) Execute(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	handler, ok := s.commands[strings.ToLower(parts[0])]
	if !ok {
		return fmt.Errorf("unknown command %q (type 'help')", parts[0])
	}
	return handler(ctx, parts[1:])
}

func (s *Session) registerCommands() {
	s.commands["help"] = s.cmdHelp
	s.commands["?"] = s.cmdHelp
	s.commands["list"] = s.cmdList
	s.commands["ls"] = s.cmdList
	s.commands["show"] = s.cmdShow
	s.commands["merge"] = s.decision(types.ActionMerge)
	s.commands["specify"] = s.decision(types.ActionSpecify)
	s.commands["clarify"] = s.decision(types.ActionClarify)
	s.commands["keep"] = s.decision(types.ActionKeep)
	s.commands["exit"] = s.cmdExit
	s.commands["quit"] = s.cmdExit
}

func (s *Session) completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(s.commands))
	for _, name := range []string{"help", "list", "show", "merge", "specify", "clarify", "keep", "exit"} {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

func (s *Session) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(s.out, "\n%s\n", cyan("Skill taxonomy review"))
	fmt.Fprintf(s.out, "Decisions are recorded as %s. Type 'help' for commands, 'exit' to quit.\n\n", s.actor)
}

func (s *Session) cmdHelp(ctx context.Context, args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(s.out, "\n%s\n\n", cyan("Commands:"))

	commands := []struct {
		name string
		desc string
	}{
		{"list, ls", "Show the open review queue"},
		{"show <n>", "Show one queue entry in full"},
		{"merge <n|id>... [-- why]", "Merge a conflict's nodes, or several concepts into the first"},
		{"specify <n|id>... [-- why]", "Mark targets as intentionally distinct"},
		{"clarify <n|id>... -- why", "Attach a rationale without closing"},
		{"keep <n|id>... [-- why]", "Accept targets as they are"},
		{"help, ?", "Show this help message"},
		{"exit, quit", "Leave the review"},
	}
	for _, c := range commands {
		fmt.Fprintf(s.out, "  %-28s %s\n", green(c.name), c.desc)
	}
	fmt.Fprintln(s.out)
	return nil
}

func (s *Session) cmdExit(ctx context.Context, args []string) error {
	fmt.Fprintln(s.out, "Goodbye!")
	return errExit
}
