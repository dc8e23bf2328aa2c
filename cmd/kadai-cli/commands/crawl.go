package commands

import (
	"fmt"
	"kadai-backend/lib/notify"
	"kadai-backend/lib/portal"
	"kadai-backend/lib/util/serviceutil"
	"kadai-backend/services/assignments"
	"kadai-backend/services/crawler"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const (
	moodleSecretEnv   = "KADAI_MOODLE_SECRET"
	webclassSecretEnv = "KADAI_WEBCLASS_SECRET"
)

var (
	crawlOwner        string
	crawlMoodleUser   string
	crawlWebClassUser string
)

func init() {
	crawlCmd.Flags().StringVar(&crawlOwner, "owner", "", "Who the results are stored under, defaults to the first given username.")
	crawlCmd.Flags().StringVar(&crawlMoodleUser, "moodle-user", "", "Moodle username, the password is read from $"+moodleSecretEnv+".")
	crawlCmd.Flags().StringVar(&crawlWebClassUser, "webclass-user", "", "WebClass username, the password is read from $"+webclassSecretEnv+".")
	rootCmd.AddCommand(crawlCmd)
}

func credentialFromFlag(user, secretEnv string) (*portal.Credential, error) {
	if user == "" {
		return nil, nil
	}
	secret, ok := os.LookupEnv(secretEnv)
	if !ok {
		return nil, fmt.Errorf("$%s must be set when crawling as %s", secretEnv, user)
	}
	return &portal.Credential{Identifier: user, Secret: secret}, nil
}

var crawlCmd = &cobra.Command{
	Use:   "crawl [--moodle-user <user>] [--webclass-user <user>] [--owner <id>]",
	Short: "Crawls the given portals and stores the assignments found.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		moodleCred, err := credentialFromFlag(crawlMoodleUser, moodleSecretEnv)
		if err != nil {
			serviceutil.Fatal("moodle credential", err)
		}
		webclassCred, err := credentialFromFlag(crawlWebClassUser, webclassSecretEnv)
		if err != nil {
			serviceutil.Fatal("webclass credential", err)
		}
		if moodleCred == nil && webclassCred == nil {
			serviceutil.Fatal("nothing to crawl", fmt.Errorf("give --moodle-user and/or --webclass-user"))
		}
		owner := crawlOwner
		if owner == "" {
			owner = crawlWebClassUser
		}
		if owner == "" {
			owner = crawlMoodleUser
		}

		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("read config", err)
		}
		database, err := openDatabase(ctx, cfg)
		if err != nil {
			serviceutil.Fatal("open database", err)
		}
		defer database.Close()

		notifier := notify.FromConfig(cfg.Smtp, 16)
		defer notifier.Close()

		service := crawler.NewService(cfg.Crawler, assignments.NewStore(database), notifier)
		outcomes := service.CrawlAll(ctx, owner, crawler.Credentials{
			Moodle:   moodleCred,
			WebClass: webclassCred,
		})

		t := newTable()
		t.AppendHeader(table.Row{"Platform", "Status", "Items", "Reason"})
		failed := false
		for _, o := range outcomes {
			t.AppendRow(table.Row{o.Platform, o.Status, o.Items, o.Reason})
			if o.Status == crawler.StatusFailure {
				failed = true
				fmt.Fprintf(os.Stderr, "%s: %v\n", o.Platform, o.Err)
			}
		}
		t.Render()

		if failed {
			notifier.Close()
			database.Close()
			os.Exit(1)
		}
	},
}
