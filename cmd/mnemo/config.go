package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/mnemo/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every section as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := make(map[string]map[string]any)
		for _, s := range config.Global().GetSections() {
			out[s.ID()] = redact(s.Data())
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <section.key> <value>",
	Short: "Change one setting and save the file",
	Example: `  mnemo config set memory.distillation_frequency 6
  mnemo config set memory.capture_enabled false
  mnemo config set oracle.backend ollama`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setValue(config.Global(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
		return nil
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore every setting to its default and save",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		m := config.Global()
		m.ResetAll()
		return m.SaveAll()
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if fs, ok := config.Global().Store().(*config.FileStore); ok {
			fmt.Fprintln(cmd.OutOrStdout(), fs.Path())
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
	configCmd.AddCommand(configPathCmd)
}

// setValue applies key=value to the named section, validates and saves.
// Sections parse their own values, so value is passed through as a string.
func setValue(m *config.Manager, key, value string) error {
	sectionID, field, ok := strings.Cut(key, ".")
	if !ok || field == "" {
		return fmt.Errorf("key must look like section.field, got %q", key)
	}
	section, ok := m.GetSection(sectionID)
	if !ok {
		return fmt.Errorf("unknown section %q", sectionID)
	}
	current := section.Data()
	if _, ok := current[field]; !ok {
		keys := make([]string, 0, len(current))
		for k := range current {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown key %q in section %s (known: %s)", field, sectionID, strings.Join(keys, ", "))
	}

	if err := section.SetData(map[string]any{field: value}); err != nil {
		return err
	}
	if after := section.Data()[field]; !sameValue(after, value) && sameValue(after, fmt.Sprint(current[field])) {
		return fmt.Errorf("invalid value %q for %s", value, key)
	}
	if err := m.SaveAll(); err != nil {
		_ = section.SetData(current)
		return err
	}
	return nil
}

// sameValue reports whether the stored value v is what s means.
func sameValue(v any, s string) bool {
	s = strings.TrimSpace(s)
	if b, ok := v.(bool); ok {
		parsed, err := strconv.ParseBool(s)
		return err == nil && parsed == b
	}
	return strings.EqualFold(fmt.Sprint(v), s)
}

func redact(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok && k == "api_key" && s != "" {
			v = "****"
		}
		out[k] = v
	}
	return out
}
