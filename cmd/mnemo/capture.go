package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/entrhq/mnemo/pkg/types"
)

var captureOpts struct {
	session    string
	role       string
	text       string
	toolName   string
	toolTarget string
	jsonl      bool
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Append turns to working memory",
	Long: `Capture appends one turn to today's working file for the session.

The turn text comes from --text, or from stdin when --text is omitted.
With --jsonl, stdin holds one JSON turn per line:

  {"role":"user","text":"..."}
  {"role":"tool","tool_name":"Bash","tool_target":"go test ./..."}

Capture never fails on storage problems; they are logged instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var turns []types.Turn
		var err error
		if captureOpts.jsonl {
			turns, err = readTurns(cmd.InOrStdin())
		} else {
			var turn types.Turn
			turn, err = flagTurn(cmd.InOrStdin(), cmd.Flags().Changed("text"))
			turns = []types.Turn{turn}
		}
		if err != nil {
			return err
		}

		a, err := newApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		session := captureOpts.session
		if session == "" {
			session = uuid.New().String()
		}
		a.svc.StartSession(session)
		for _, t := range turns {
			a.svc.Append(t)
		}
		a.svc.CloseSession()

		fmt.Fprintf(cmd.ErrOrStderr(), "captured %d turn(s) for session %s\n", len(turns), session)
		return nil
	},
}

func init() {
	f := captureCmd.Flags()
	f.StringVar(&captureOpts.session, "session", "", "session id (default: a new random id)")
	f.StringVar(&captureOpts.role, "role", string(types.RoleUser), "turn role: user, assistant, tool")
	f.StringVar(&captureOpts.text, "text", "", "turn text (default: read stdin)")
	f.StringVar(&captureOpts.toolName, "tool-name", "", "tool name for tool turns")
	f.StringVar(&captureOpts.toolTarget, "tool-target", "", "tool target for tool turns")
	f.BoolVar(&captureOpts.jsonl, "jsonl", false, "read JSON turns, one per line, from stdin")
}

func flagTurn(stdin io.Reader, textGiven bool) (types.Turn, error) {
	turn := types.Turn{
		Role:       types.Role(captureOpts.role),
		Text:       captureOpts.text,
		ToolName:   captureOpts.toolName,
		ToolTarget: captureOpts.toolTarget,
		Timestamp:  time.Now(),
	}
	if !textGiven && turn.Role != types.RoleTool {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return types.Turn{}, fmt.Errorf("failed to read stdin: %w", err)
		}
		turn.Text = strings.TrimRight(string(b), "\n")
	}
	return turn, validateTurn(turn)
}

func readTurns(r io.Reader) ([]types.Turn, error) {
	var turns []types.Turn
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var t types.Turn
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if t.Timestamp.IsZero() {
			t.Timestamp = time.Now()
		}
		if err := validateTurn(t); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		turns = append(turns, t)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	return turns, nil
}

func validateTurn(t types.Turn) error {
	if !t.Role.Valid() {
		return fmt.Errorf("role must be one of user, assistant, tool (got %q)", t.Role)
	}
	if t.Role == types.RoleTool && t.ToolName == "" {
		return fmt.Errorf("tool turns need a tool name")
	}
	return nil
}
