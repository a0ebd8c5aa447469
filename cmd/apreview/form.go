package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/apreview/internal/questionnaire"
)

// loadDefinition reads the questionnaire at path, or the built-in form when
// path is empty, and applies ceiling when positive.
func loadDefinition(path string, ceiling int) (*questionnaire.Definition, error) {
	var (
		def *questionnaire.Definition
		err error
	)
	if path == "" {
		def, err = questionnaire.Default()
	} else {
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening questionnaire: %w", err)
		}
		defer f.Close()
		def, err = questionnaire.Load(f)
	}
	if err != nil {
		return nil, err
	}
	if ceiling > 0 {
		return def.WithCeiling(ceiling)
	}
	return def, nil
}

func newSchemaCmd() *cobra.Command {
	var (
		form    string
		ceiling int
		format  string
	)
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the spreadsheet columns every submission row follows",
		Long: `Print the full, static column header of the submission CSV: the
submission columns followed by every question the form can produce at the
growth ceiling.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			def, err := loadDefinition(form, ceiling)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "lines":
				_, err = fmt.Fprintln(out, strings.Join(def.Schema(), "\n"))
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				err = enc.Encode(def.Schema())
			default:
				return fmt.Errorf("unknown format %q (want lines or json)", format)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&form, "form", "", "questionnaire YAML (default: built-in form)")
	cmd.Flags().IntVar(&ceiling, "ceiling", 0, "override the block growth ceiling")
	cmd.Flags().StringVar(&format, "format", "lines", "output format: lines or json")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var (
		form       string
		configPath string
		withConfig bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a questionnaire definition and, optionally, the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ceiling := 0
			if withConfig {
				cfg, err := loadConfig(configPath)
				if err != nil {
					return err
				}
				ceiling = cfg.Form.Ceiling
				if form == "" {
					form = cfg.Form.Definition
				}
			}
			def, err := loadDefinition(form, ceiling)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d parts, %d block families, %d columns\n",
				def.Title, len(def.Parts), len(def.Families()), len(def.Schema()))
			return nil
		},
	}
	cmd.Flags().StringVar(&form, "form", "", "questionnaire YAML (default: built-in form)")
	cmd.Flags().StringVar(&configPath, "config", "", "config file (default: ~/.config/apreview/config.yaml)")
	cmd.Flags().BoolVar(&withConfig, "with-config", false, "also load and validate the service configuration")
	return cmd
}
