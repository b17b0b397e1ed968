package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/entrhq/mnemo/pkg/config"
	"github.com/entrhq/mnemo/pkg/memory/store"
)

var showOpts struct {
	part  string
	copy  bool
	color string
	style string
}

var showCmd = &cobra.Command{
	Use:       "show [episodic|semantic|working]",
	Short:     "Print a memory tier",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"episodic", "semantic", "working"},
	RunE: func(cmd *cobra.Command, args []string) error {
		tier := "semantic"
		if len(args) == 1 {
			tier = args[0]
		}

		st, err := store.New(rootDir())
		if err != nil {
			return err
		}

		text, err := tierText(st, tier, showOpts.part)
		if err != nil {
			return err
		}

		if showOpts.copy {
			if err := clipboard.WriteAll(text); err != nil {
				return fmt.Errorf("failed to copy to clipboard: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "copied %s (%d bytes)\n", tier, len(text))
			return nil
		}
		return render(cmd.OutOrStdout(), text, showOpts.color, showOpts.style)
	},
}

func init() {
	f := showCmd.Flags()
	f.StringVar(&showOpts.part, "part", "all", "semantic region: all, mutable, immutable")
	f.BoolVar(&showOpts.copy, "copy", false, "copy to the clipboard instead of printing")
	f.StringVar(&showOpts.color, "color", "auto", "highlight markdown: auto, always, never")
	f.StringVar(&showOpts.style, "style", "dracula", "chroma style used for highlighting")
}

// rootDir resolves the memory directory without building a Service, for
// commands that only read.
func rootDir() string {
	if flags.root != "" {
		return flags.root
	}
	return config.Memory().ResolvedRootDir()
}

func tierText(st *store.Store, tier, part string) (string, error) {
	switch tier {
	case "episodic":
		return st.ReadEpisodic()
	case "semantic":
		switch part {
		case "", "all":
			return st.ReadSemantic()
		case "mutable", "immutable":
			parts, err := st.ReadSemanticParts()
			if err != nil {
				return "", err
			}
			if part == "mutable" {
				return parts.Mutable, nil
			}
			return parts.Immutable, nil
		default:
			return "", fmt.Errorf("--part must be one of all, mutable, immutable")
		}
	case "working":
		files, err := st.ListWorking()
		if err != nil {
			return "", err
		}
		var b strings.Builder
		b.WriteString("# Working memory\n\n")
		for _, f := range files {
			fmt.Fprintf(&b, "- `%s` %s, %d bytes\n", f.Name, f.Date, f.Size)
		}
		if len(files) == 0 {
			b.WriteString("_empty_\n")
		}
		return b.String(), nil
	default:
		return "", fmt.Errorf("unknown tier %q (want episodic, semantic or working)", tier)
	}
}

func render(w io.Writer, text, color, style string) error {
	if !useColor(w, color) {
		_, err := io.WriteString(w, ensureNewline(text))
		return err
	}
	return quick.Highlight(w, ensureNewline(text), "markdown", "terminal256", style)
}

func useColor(w io.Writer, mode string) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func ensureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
