package capture

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/mnemo/pkg/types"
)

var captureNow = time.Date(2025, 6, 20, 9, 5, 0, 0, time.Local)

func newTestWriter(t *testing.T, opts ...Option) (*Writer, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "working")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	opts = append([]Option{WithClock(func() time.Time { return captureNow })}, opts...)
	return NewWriter(dir, opts...), dir
}

func at(hh, mm int) time.Time {
	return time.Date(2025, 6, 20, hh, mm, 0, 0, time.Local)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestWriter_SessionFile(t *testing.T) {
	w, dir := newTestWriter(t)
	w.StartSession("abc123XYZ-long-session-id")

	w.Append(types.Turn{Role: types.RoleUser, Text: "How do I run the tests?", Timestamp: at(9, 6)})
	w.Append(types.Turn{Role: types.RoleAssistant, Text: "Use go test.", Timestamp: at(9, 7)})
	w.Append(types.Turn{Role: types.RoleTool, ToolName: "ReadFile", ToolTarget: "main.go", Timestamp: at(9, 7)})

	path := filepath.Join(dir, "2025-06-20-"+SessionPrefix("abc123XYZ-long-session-id")+".md")
	assert.True(t, strings.HasPrefix(filepath.Base(path), "2025-06-20-abc123XY-"))
	assert.Equal(t, path, w.Path())
	assert.Equal(t, "--- Session started 2025-06-20 09:05 ---\n"+
		"[09:06] User: How do I run the tests?\n"+
		"[09:07] Assistant: Use go test.\n"+
		"  -> ReadFile(main.go)\n", readFile(t, path))
}

func TestWriter_LazyFileCreation(t *testing.T) {
	w, dir := newTestWriter(t)
	w.StartSession("quiet")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no file until the first persisted turn")

	w.Append(types.Turn{Role: types.RoleUser, Text: "<system-reminder>x</system-reminder>"})
	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "dropped turns create no file")
}

func TestWriter_RepeatedStartSession(t *testing.T) {
	w, _ := newTestWriter(t)
	w.StartSession("same-id")
	w.Append(types.NewUserTurn("first"))
	w.StartSession("same-id")
	w.Append(types.NewUserTurn("second"))

	content := readFile(t, w.Path())
	assert.Equal(t, 1, strings.Count(content, "--- Session started"))
	assert.Contains(t, content, "first")
	assert.Contains(t, content, "second")
}

func TestWriter_Sanitation(t *testing.T) {
	w, _ := newTestWriter(t)
	w.StartSession("s1")
	w.Append(types.Turn{
		Role:      types.RoleUser,
		Text:      "keep this <system-reminder>\nsecret directive\n</system-reminder> and this",
		Timestamp: at(10, 0),
	})

	content := readFile(t, w.Path())
	assert.NotContains(t, content, "secret directive")
	assert.NotContains(t, content, "system-reminder")
	assert.Contains(t, content, "[10:00] User: keep this  and this")
}

func TestWriter_EmptyAfterStrippingIsDropped(t *testing.T) {
	var outcomes []Outcome
	w, _ := newTestWriter(t, WithObserver(func(o Outcome, _ int) { outcomes = append(outcomes, o) }))
	w.StartSession("s1")
	w.Append(types.NewUserTurn("hello"))
	before := readFile(t, w.Path())

	w.Append(types.NewUserTurn("<system-reminder attr=\"1\">only this</system-reminder>\n\n"))
	w.Append(types.NewAssistantTurn("   "))
	w.Append(types.NewToolTurn("", "target"))

	assert.Equal(t, before, readFile(t, w.Path()))
	assert.Equal(t, []Outcome{OutcomeWritten, OutcomeDropped, OutcomeDropped, OutcomeDropped}, outcomes)
}

func TestWriter_AssistantTruncation(t *testing.T) {
	w, _ := newTestWriter(t, WithAssistantBudget(10))
	w.StartSession("s1")
	w.Append(types.Turn{Role: types.RoleAssistant, Text: "ééééééééééééééé", Timestamp: at(11, 0)})
	w.Append(types.Turn{Role: types.RoleUser, Text: strings.Repeat("u", 50), Timestamp: at(11, 1)})

	content := readFile(t, w.Path())
	assert.Contains(t, content, "[11:00] Assistant: éééééééééé"+TruncationMarker+"\n")
	assert.Contains(t, content, strings.Repeat("u", 50), "user turns are not truncated")
}

func TestWriter_Disabled(t *testing.T) {
	w, dir := newTestWriter(t)
	w.SetEnabled(false)
	w.StartSession("s1")
	w.Append(types.NewUserTurn("hello"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.False(t, w.Enabled())
}

func TestWriter_AppendWithoutSession(t *testing.T) {
	w, dir := newTestWriter(t)
	w.Append(types.NewUserTurn("orphan"))

	assert.NotEmpty(t, w.SessionID())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "2025-06-20-"))
}

func TestWriter_CloseStartsNewFile(t *testing.T) {
	w, dir := newTestWriter(t)
	w.StartSession("first-session")
	w.Append(types.NewUserTurn("one"))
	w.Close()
	assert.Empty(t, w.SessionID())

	w.StartSession("second-session")
	w.Append(types.NewUserTurn("two"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestWriter_IOErrorsAreSwallowed(t *testing.T) {
	var outcomes []Outcome
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	// The working "directory" is below a regular file, so every open fails.
	w := NewWriter(filepath.Join(blocker, "working"), WithObserver(func(o Outcome, _ int) { outcomes = append(outcomes, o) }))
	w.StartSession("s1")
	assert.NotPanics(t, func() { w.Append(types.NewUserTurn("lost")) })
	assert.Equal(t, []Outcome{OutcomeError}, outcomes)
}

func TestWriter_RecreatesMissingDir(t *testing.T) {
	w, dir := newTestWriter(t)
	require.NoError(t, os.RemoveAll(dir))
	w.StartSession("s1")
	w.Append(types.NewUserTurn("still captured"))
	assert.Contains(t, readFile(t, w.Path()), "still captured")
}

func TestSessionPrefix(t *testing.T) {
	tests := map[string]string{
		"short":                                "short",
		"a_b-c":                                "a_b-c",
		"abc12345":                             "abc12345",
		"3f2a9c1e-0b7d-4e5f-9a8b-1c2d3e4f5a6b": "3f2a9c1e",
	}
	for in, want := range tests {
		assert.Equal(t, want, SessionPrefix(in), in)
	}
	assert.Len(t, SessionPrefix("///"), prefixLen)

	long := SessionPrefix("abcdefghijkl")
	assert.Regexp(t, `^abcdefgh-[0-9a-f]{6}$`, long)
	assert.Equal(t, long, SessionPrefix("abcdefghijkl"), "stable for one id")
	assert.Regexp(t, `^abcdefgh-[0-9a-f]{6}$`, SessionPrefix("ab/cd..ef:gh_ij-kl"))
}

func TestSessionPrefix_SharedPrefixGetsOwnFile(t *testing.T) {
	alpha, beta := SessionPrefix("project-alpha"), SessionPrefix("project-beta")
	assert.True(t, strings.HasPrefix(alpha, "project-"))
	assert.True(t, strings.HasPrefix(beta, "project-"))
	assert.NotEqual(t, alpha, beta)

	w, _ := newTestWriter(t)
	w.StartSession("project-alpha")
	w.Append(types.NewUserTurn("alpha work"))
	alphaPath := w.Path()
	w.StartSession("project-beta")
	w.Append(types.NewUserTurn("beta work"))

	assert.NotEqual(t, alphaPath, w.Path())
	assert.NotContains(t, readFile(t, alphaPath), "beta work")
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  hello  ", "hello"},
		{"block", "a<system-reminder>b</system-reminder>c", "ac"},
		{"multiline block", "a\n<system-reminder>\nb\nc\n</system-reminder>\nd", "a\n\nd"},
		{"two blocks", "<system-reminder>1</system-reminder>x<system-reminder>2</system-reminder>", "x"},
		{"blank runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"crlf", "a\r\n\r\n\r\nb", "a\n\nb"},
		{"lookalike tag kept", "<system-reminders>x</system-reminders>", "<system-reminders>x</system-reminders>"},
		{"only block", "<system-reminder>x</system-reminder>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitizer_ExtraTags(t *testing.T) {
	s := NewSanitizer("internal-note", "", "system-reminder")
	assert.Equal(t, "keep", s.Clean("<internal-note id=1>drop</internal-note>keep<system-reminder>x</system-reminder>"))
	assert.Len(t, s.patterns, 2)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab"+TruncationMarker, Truncate("abc", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}
