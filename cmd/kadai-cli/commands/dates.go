package commands

import (
	"fmt"
	"io"
	"kadai-backend/lib/datetext"
	"kadai-backend/lib/timezone"
	"kadai-backend/lib/util/serviceutil"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	datesLang     string
	datesMonthDay bool
)

func init() {
	datesCmd.Flags().StringVar(&datesLang, "lang", "", "Locale code of the text, detected from a trailing (code) when empty.")
	datesCmd.Flags().BoolVar(&datesMonthDay, "month-day", false, "Parse a WebClass MM/DD HH:MM due cell instead.")
	rootCmd.AddCommand(datesCmd)
}

func formatInstant(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

var datesCmd = &cobra.Command{
	Use:   "dates [text]",
	Short: "Parses a portal date block and prints the instants found, reads stdin without an argument.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var text string
		if len(args) == 1 {
			text = args[0]
		} else {
			contents, err := io.ReadAll(os.Stdin)
			if err != nil {
				serviceutil.Fatal("read stdin", err)
			}
			text = string(contents)
		}

		if datesMonthDay {
			due, err := datetext.ParseMonthDayDue(strings.TrimSpace(text), timezone.Now())
			if err != nil {
				serviceutil.Fatal("parse due", err)
			}
			fmt.Println("due:", formatInstant(&due))
			return
		}

		if r, err := datetext.ParseSlashRange(text); err == nil {
			fmt.Println("start:", formatInstant(r.Start))
			fmt.Println("due:  ", formatInstant(r.End))
			return
		}

		lang := datesLang
		if lang == "" {
			lang = datetext.DetectLang(text)
		}
		r := datetext.ParseRange(cmd.Context(), text, lang)
		fmt.Println("lang: ", lang)
		fmt.Println("start:", formatInstant(r.Start))
		fmt.Println("due:  ", formatInstant(r.End))
	},
}
