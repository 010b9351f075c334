package review

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

func (s *Session) refresh(ctx context.Context) error {
	st, err := s.backend.State(ctx)
	if err != nil {
		return err
	}
	s.queue = Queue(st)
	return nil
}

func (s *Session) cmdList(ctx context.Context, args []string) error {
	if err := s.refresh(ctx); err != nil {
		return err
	}
	if len(s.queue) == 0 {
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(s.out, "%s nothing left to review\n", green("✓"))
		return nil
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Fprintf(s.out, "%d open:\n", len(s.queue))
	for i, it := range s.queue {
		fmt.Fprintf(s.out, "  %3d  %-9s %s  %s\n", i+1, it.Kind, yellow(it.Title), gray(it.Target))
	}
	return nil
}

func (s *Session) cmdShow(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: show <n>")
	}
	if s.queue == nil {
		if err := s.refresh(ctx); err != nil {
			return err
		}
	}
	it, err := s.item(args[0])
	if err != nil {
		return err
	}
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(s.out, "\n%s %s\n", cyan(it.Kind), it.Target)
	fmt.Fprintf(s.out, "  %s\n", it.Title)
	if it.Detail != "" {
		fmt.Fprintf(s.out, "  %s\n", it.Detail)
	}
	if len(it.Members) > 0 {
		fmt.Fprintf(s.out, "  members: %s\n", strings.Join(it.Members, ", "))
	}
	fmt.Fprintln(s.out)
	return nil
}

// item resolves a 1-based queue position.
func (s *Session) item(arg string) (Item, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(s.queue) {
		return Item{}, fmt.Errorf("no queue entry %q (1-%d)", arg, len(s.queue))
	}
	return s.queue[n-1], nil
}

// parseDecision splits "<targets...> [-- rationale]". Numeric targets are queue
// positions; anything else is used as an id.
func (s *Session) parseDecision(args []string) ([]string, string, error) {
	var targets []string
	rationale := ""
	for i, a := range args {
		if a == "--" {
			rationale = strings.Join(args[i+1:], " ")
			break
		}
		if _, err := strconv.Atoi(a); err == nil {
			it, err := s.item(a)
			if err != nil {
				return nil, "", err
			}
			targets = append(targets, it.Target)
			continue
		}
		targets = append(targets, a)
	}
	if len(targets) == 0 {
		return nil, "", fmt.Errorf("at least one target is required")
	}
	return targets, rationale, nil
}

func (s *Session) decision(action types.DecisionAction) CommandHandler {
	return func(ctx context.Context, args []string) error {
		if s.queue == nil {
			if err := s.refresh(ctx); err != nil {
				return err
			}
		}
		targets, rationale, err := s.parseDecision(args)
		if err != nil {
			return err
		}
		res, err := s.backend.Decide(ctx, &types.Decision{
			Action:    action,
			Targets:   targets,
			Rationale: rationale,
			Actor:     s.actor,
		})
		if err != nil {
			return err
		}
		s.log.Info("review decision recorded", "decision_id", res.Decision.ID, "action", string(action), "targets", targets)

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(s.out, "%s %s recorded (seq %d)", green("✓"), action, res.Decision.Seq)
		if res.Report != nil {
			fmt.Fprintf(s.out, "; %d open violations, mece score %.3f", res.Report.OpenViolations(), res.Report.MECEScore)
		}
		fmt.Fprintln(s.out)
		return s.cmdList(ctx, nil)
	}
}
