package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeeves-cluster-organization/interviewcore/coreengine/config"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/persistence"
)

func newPhasesCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phases",
		Short: "Show the phase script",
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := config.LoadPhaseScript(v.GetString("phase_script_path"))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if v.GetBool("yaml") {
				data, err := script.ToYAML()
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}
			if v.GetBool("json") {
				return printJSON(out, script)
			}
			renderPhases(out, script)
			return nil
		},
	}
	cmd.Flags().Bool("yaml", false, "print the script as YAML")
	return cmd
}

func renderPhases(out io.Writer, script *config.PhaseScript) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Phase", "Objective", "Required", "Depends On"})
	for _, def := range script.Phases {
		for _, o := range def.Objectives {
			required := ""
			if o.Required {
				required = "yes"
			}
			tw.AppendRow(table.Row{def.Phase, o.ID, required, strings.Join(o.DependsOn, ", ")})
		}
		tw.AppendSeparator()
	}
	tw.Render()

	tools := table.NewWriter()
	tools.SetOutputMirror(out)
	tools.SetStyle(table.StyleLight)
	tools.AppendHeader(table.Row{"Phase", "Tools", "Unlocks"})
	for _, def := range script.Phases {
		unlocks := make([]string, 0, len(def.Unlocks))
		for _, u := range def.Unlocks {
			unlocks = append(unlocks, fmt.Sprintf("%s when %s is %s", u.Tool, u.WhenObjective, u.RequiredStatus()))
		}
		tools.AppendRow(table.Row{def.Phase, strings.Join(def.Tools, "\n"), strings.Join(unlocks, "\n")})
	}
	tools.Render()
}

func newRecordsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List persisted interview records",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := persistence.OpenSQLite(ctx, v.GetString("db"))
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(ctx, v.GetString("type"))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if v.GetBool("json") {
				return printJSON(out, records)
			}
			renderRecords(out, records)
			return nil
		},
	}
	cmd.Flags().String("type", "", "record type filter (e.g. knowledge_card)")
	return cmd
}

func renderRecords(out io.Writer, records []persistence.Record) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"ID", "Type", "Created", "Bytes"})
	for _, r := range records {
		tw.AppendRow(table.Row{r.ID, r.RecordType, r.CreatedAt.Format("2006-01-02 15:04:05"), len(r.Payload)})
	}
	tw.AppendFooter(table.Row{"", "", "Total", len(records)})
	tw.Render()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
