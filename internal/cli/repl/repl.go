package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"ucode/internal/cli/command"
	"ucode/internal/cli/config"
	httpclient "ucode/internal/cli/http"
	"ucode/internal/cli/state"
	"ucode/internal/judge/poller"
	pkgerrors "ucode/pkg/errors"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const prompt = "ucode> "

var errExit = errors.New("exit")

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	state      *state.State
	statePath  string
	prettyJSON bool
	poll       config.PollConfig
	sleep      poller.SleepFunc
	rl         *readline.Instance
	out        io.Writer
}

func New(client *httpclient.Client, commands map[string]command.Command, st *state.State, cfg config.Config) *Session {
	return &Session{
		client:     client,
		commands:   commands,
		state:      st,
		statePath:  cfg.StatePath,
		prettyJSON: cfg.PrettyJSON != nil && *cfg.PrettyJSON,
		poll:       cfg.Poll,
		sleep:      poller.Sleep,
		out:        os.Stdout,
	}
}

// Run reads commands until exit, EOF or an interrupt on an empty line.
func (s *Session) Run(ctx context.Context, historyPath string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyPath,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer func() { _ = rl.Close() }()
	s.rl = rl
	s.out = rl.Stdout()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		if err := s.Exec(ctx, line); err != nil {
			if errors.Is(err, errExit) {
				s.printLine("bye")
				return nil
			}
			s.printError("error: %v", err)
		}
	}
}

// Exec runs one input line.
func (s *Session) Exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if handled, err := s.handleSystemCommand(line); handled {
		return err
	}
	return s.handleCommand(ctx, line)
}

func (s *Session) handleSystemCommand(line string) (bool, error) {
	switch line {
	case "exit", "quit":
		return true, errExit
	case "help":
		s.printHelp()
		return true, nil
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return true, nil
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return true, nil
	}
	return false, nil
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|timeout|user")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:8086")
			return
		}
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout":
		if len(parts) < 2 {
			s.printLine("usage: set timeout 10s")
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "user":
		if len(parts) < 2 {
			s.printLine("usage: set user <id>")
			return
		}
		userID, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || userID <= 0 {
			s.printLine("invalid user id: %s", parts[1])
			return
		}
		s.state.UserID = userID
		if err := state.Save(s.statePath, *s.state); err != nil {
			s.printLine("save state failed: %v", err)
			return
		}
		s.printLine("acting as user %d", userID)
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "user":
		if s.state.UserID == 0 {
			s.printLine("user: <none>")
			return
		}
		s.printLine("user: %d", s.state.UserID)
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("statePath: %s", s.statePath)
		s.printLine("poll: %d attempts every %s", s.poll.Poller().MaxAttempts, s.poll.Poller().Interval)
		if s.state.LastSubmissionID != "" {
			s.printLine("last submission: %s", s.state.LastSubmissionID)
		}
	default:
		s.printLine("usage: show user|config")
	}
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	service := tokens[0]
	action := tokens[1]
	cmd, ok := s.commands[service+" "+action]
	if !ok {
		return fmt.Errorf("unknown command: %s %s", service, action)
	}
	params := command.Params{}
	for _, token := range tokens[2:] {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid param: %s", token)
		}
		params.Set(parts[0], parts[1])
	}
	params.Canonicalize(cmd.Fields)

	if cmd.RequiresUser && s.state.UserID == 0 {
		return fmt.Errorf("no acting user, run: set user <id>")
	}
	s.applyParamShortcuts(&cmd, params)
	if err := s.promptMissing(&cmd, params); err != nil {
		return err
	}

	if cmd.Local {
		return s.runLocal(ctx, cmd, params)
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	s.afterResponse(cmd, resp.Body)
	return nil
}

func (s *Session) applyParamShortcuts(cmd *command.Command, params command.Params) {
	if cmd.Service != "submission" {
		return
	}
	switch cmd.Action {
	case "run", "submit":
		if params.Get("source_file") != "" && params.Get("source_code") == "" {
			params.Set("source_code", "_file_")
		}
	case "get", "wait", "delete", "grading":
		if params.Get("id") == "" && s.state.LastSubmissionID != "" {
			params.Set("id", s.state.LastSubmissionID)
		}
	case "watch":
		if params.Get("ids") == "" && s.state.LastSubmissionID != "" {
			params.Set("ids", s.state.LastSubmissionID)
		}
	}
}

func (s *Session) promptMissing(cmd *command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required {
			continue
		}
		if params.Get(field.Name) != "" {
			continue
		}
		value, err := s.promptValue(field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) promptValue(label string) (string, error) {
	if s.rl == nil {
		return "", fmt.Errorf("missing %s", label)
	}
	s.rl.SetPrompt(label + ": ")
	defer s.rl.SetPrompt(prompt)
	line, err := s.rl.Readline()
	if err != nil {
		return "", fmt.Errorf("read input failed: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (s *Session) runLocal(ctx context.Context, cmd command.Command, params command.Params) error {
	switch cmd.Service + " " + cmd.Action {
	case "submission watch":
		ids := command.ParseStringList(params.Get("ids"))
		if len(ids) == 0 {
			return fmt.Errorf("ids is required")
		}
		s.watch(ctx, ids)
		return nil
	}
	return fmt.Errorf("unknown local command: %s %s", cmd.Service, cmd.Action)
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	if len(resp.Body) == 0 {
		return
	}
	if s.prettyJSON {
		var raw any
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

// afterResponse remembers created submissions and prints a verdict summary for
// submission reads.
func (s *Session) afterResponse(cmd command.Command, body []byte) {
	if cmd.Service != "submission" {
		return
	}
	var env httpclient.Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Code != int(pkgerrors.Success) {
		return
	}
	switch cmd.Action {
	case "run", "submit":
		var created struct {
			SubmissionID string `json:"submission_id"`
		}
		if err := json.Unmarshal(env.Data, &created); err != nil || created.SubmissionID == "" {
			return
		}
		s.state.LastSubmissionID = created.SubmissionID
		if err := state.Save(s.statePath, *s.state); err != nil {
			s.printLine("save state failed: %v", err)
		}
	case "get":
		var view submissionView
		if err := json.Unmarshal(env.Data, &view); err == nil {
			s.renderSubmission(view)
		}
	case "wait":
		var waited struct {
			Submission submissionView `json:"submission"`
			TimedOut   bool           `json:"timed_out"`
		}
		if err := json.Unmarshal(env.Data, &waited); err == nil {
			s.renderSubmission(waited.Submission)
			if waited.TimedOut {
				s.printLine("still processing, check back later")
			}
		}
	}
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("system: help | exit | set base|timeout|user | show user|config")
	s.printLine("commands:")
	s.printLine("  submission run|submit problem_id=<id> lang=<code> file=<path> [assignment_id=<id>]")
	s.printLine("  submission get|wait|delete|grading [id=<submission>]")
	s.printLine("  submission watch ids=<a,b,...>")
	s.printLine("  submission list [user_id=] [problem_id=] [kind=graded|run] [page=] [page_size=]")
	s.printLine("  language save code=py name=\"Python 3\" factor=3 memory=524288")
	s.printLine("  language override problem=42 code=py factor=2")
	s.printLine("  language limits problem=42 code=py")
}

func (s *Session) printLine(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
