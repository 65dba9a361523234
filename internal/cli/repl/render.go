package repl

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"ucode/internal/judge/lifecycle"
	"ucode/internal/judge/poller"
	"ucode/internal/judge/result"

	"github.com/fatih/color"
)

type outcomeView struct {
	Index    int             `json:"index"`
	Status   int             `json:"status"`
	Label    string          `json:"label"`
	Severity result.Severity `json:"severity"`
}

type scoreView struct {
	Score    int    `json:"score"`
	MaxScore int    `json:"max_score"`
	Verdict  string `json:"verdict"`
}

type submissionView struct {
	ID              string           `json:"submission_id"`
	Kind            string           `json:"kind"`
	Status          lifecycle.Status `json:"status"`
	Terminal        bool             `json:"terminal"`
	TotalTestCases  int              `json:"total_test_cases"`
	PassedTestCases int              `json:"passed_test_cases"`
	TimeMs          int64            `json:"time_ms"`
	MemoryKB        int64            `json:"memory_kb"`
	ErrorMessage    *string          `json:"error_message,omitempty"`
	Outcomes        []outcomeView    `json:"outcomes"`
	Score           *scoreView       `json:"score,omitempty"`
}

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow)
	dangerColor  = color.New(color.FgRed)
	mutedColor   = color.New(color.FgHiBlack)
	pendingColor = color.New(color.FgCyan)
)

func severityColor(sev result.Severity) *color.Color {
	switch sev {
	case result.SeveritySuccess:
		return successColor
	case result.SeverityWarning:
		return warningColor
	case result.SeverityMuted:
		return mutedColor
	default:
		return dangerColor
	}
}

func statusColor(status lifecycle.Status) *color.Color {
	switch status {
	case lifecycle.Passed:
		return successColor
	case lifecycle.TimeLimitExceeded, lifecycle.MemoryLimitExceeded:
		return warningColor
	case lifecycle.Pending, lifecycle.Running:
		return pendingColor
	default:
		return dangerColor
	}
}

func (s *Session) renderSubmission(v submissionView) {
	line := fmt.Sprintf("%s  %s", v.ID, statusColor(v.Status).Sprint(v.Status))
	if v.Terminal && v.TotalTestCases > 0 {
		line += fmt.Sprintf("  %d/%d passed  %dms  %dKB", v.PassedTestCases, v.TotalTestCases, v.TimeMs, v.MemoryKB)
	}
	if v.Score != nil {
		line += fmt.Sprintf("  score %d/%d (%s)", v.Score.Score, v.Score.MaxScore, v.Score.Verdict)
	}
	s.printLine("%s", line)

	if len(v.Outcomes) > 0 {
		cells := make([]string, len(v.Outcomes))
		for i, o := range v.Outcomes {
			cells[i] = severityColor(o.Severity).Sprintf("#%d %s", o.Index, o.Label)
		}
		s.printLine("  %s", strings.Join(cells, "  "))
	}
	if v.ErrorMessage != nil && *v.ErrorMessage != "" {
		s.printLine("  %s", mutedColor.Sprint(*v.ErrorMessage))
	}
}

// watch polls every id until it is terminal or the poll budget is spent.
func (s *Session) watch(ctx context.Context, ids []string) {
	cfg := s.poll.Poller()
	outcomes := poller.WaitAll(ctx, ids, s.poll.Concurrency, func(id string) *poller.Poller[submissionView] {
		return poller.New[submissionView](
			func(ctx context.Context) (submissionView, error) {
				var v submissionView
				err := s.client.GetJSON(ctx, "/api/v1/submissions/"+url.PathEscape(id), &v)
				return v, err
			},
			func(v submissionView) bool { return v.Terminal },
			poller.WithConfig[submissionView](cfg),
			poller.WithSleep[submissionView](s.sleep),
		)
	})

	for i, out := range outcomes {
		switch out.Kind {
		case poller.Terminal:
			s.renderSubmission(out.Last)
		case poller.Timeout:
			if out.HasLast {
				s.renderSubmission(out.Last)
			} else if out.LastErr != nil {
				s.printError("%s: %v", ids[i], out.LastErr)
			}
			s.printLine("%s: still processing after %d attempts, check back later", ids[i], out.Attempts)
		default:
			s.printError("%s: %v", ids[i], out.Err())
		}
	}
}

func (s *Session) printError(format string, args ...any) {
	s.printLine("%s", dangerColor.Sprintf(format, args...))
}
