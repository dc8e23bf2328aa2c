package commands

import (
	"kadai-backend/lib/timezone"
	"kadai-backend/lib/util/serviceutil"
	"kadai-backend/services/assignments"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

const listTimeLayout = "2006/01/02 15:04"

var listCmd = &cobra.Command{
	Use:   "list <owner>",
	Short: "Lists the stored assignments of an owner, soonest due first.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("read config", err)
		}
		database, err := openDatabase(ctx, cfg)
		if err != nil {
			serviceutil.Fatal("open database", err)
		}
		defer database.Close()

		records, err := assignments.NewStore(database).ListAssignments(ctx, args[0])
		if err != nil {
			serviceutil.Fatal("list assignments", err)
		}

		now := timezone.Now()
		t := newTable()
		t.AppendHeader(table.Row{"Course", "Title", "Due", "Done", "Platform", "Url"})
		for _, r := range records {
			due := "-"
			if r.Due != nil {
				due = r.Due.Format(listTimeLayout)
				if r.Due.Before(now) {
					due += " (past)"
				}
			}
			done := ""
			if r.Submitted {
				done = "✓"
			}
			t.AppendRow(table.Row{r.CourseTitle, r.Title, due, done, r.Platform, r.Url})
		}
		t.AppendFooter(table.Row{"", "", "", "", "Total", len(records)})
		t.Render()
	},
}
