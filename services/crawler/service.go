package crawler

import (
	"context"
	"errors"
	"fmt"
	"kadai-backend/lib/portal"
	"kadai-backend/lib/restyutil"
	"kadai-backend/lib/scrapers/moodle/core"
	"kadai-backend/lib/scrapers/moodle/view"
	"kadai-backend/lib/scrapers/webclass"
	"kadai-backend/lib/telemetry"
	"kadai-backend/services/assignments"
	"log/slog"
	"sync"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = telemetry.Tracer("kadai.services.crawler")

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Outcome is the terminal result of crawling one portal for one owner.
type Outcome struct {
	Platform portal.Platform
	Status   Status
	// the error category of Err, empty on success
	Reason string
	// number of items written to the store
	Items int
	Err   error
}

// Reconciler is the persistence the crawl results are written to.
type Reconciler interface {
	Reconcile(ctx context.Context, owner string, items []portal.Item) (assignments.Summary, error)
}

// Credentials holds the logins for a crawl, a nil entry skips that portal.
type Credentials struct {
	Moodle   *portal.Credential
	WebClass *portal.Credential
}

// job logs into a portal and emits every item it finds. emit is never
// called concurrently.
type job func(ctx context.Context, owner string, cred portal.Credential, emit func(portal.Item)) error

type Service struct {
	cfg      Config
	store    Reconciler
	notifier portal.Notifier
	outcomes *expirable.LRU[string, []Outcome]

	// guards the read-merge-write in remember
	outcomesMutex sync.Mutex

	moodle   job
	webclass job
}

func NewService(cfg Config, store Reconciler, notifier portal.Notifier) *Service {
	if notifier == nil {
		notifier = portal.NoopNotifier{}
	}
	s := &Service{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		outcomes: expirable.NewLRU[string, []Outcome](1024, nil, cfg.outcomeTtl()),
	}
	s.moodle = s.crawlMoodle
	s.webclass = s.crawlWebClass
	return s
}

func withBaseUrl(cred portal.Credential, fallback string) portal.Credential {
	if cred.BaseUrl == "" {
		cred.BaseUrl = fallback
	}
	return cred
}

func (s *Service) crawlMoodle(ctx context.Context, owner string, cred portal.Credential, emit func(portal.Item)) error {
	opts := core.ClientOptions{
		BaseUrl:   cred.BaseUrl,
		RateLimit: s.cfg.Moodle.RateLimit,
		Burst:     s.cfg.Moodle.Burst,
	}
	if s.cfg.Moodle.DebugDir != "" {
		output, err := restyutil.NewFilesystemOutput(s.cfg.Moodle.DebugDir)
		if err != nil {
			return err
		}
		opts.DebugOutput = output
	}

	client, err := core.NewClient(ctx, opts)
	if err != nil {
		return err
	}
	defer client.Close()

	err = client.Login(ctx, cred.Identifier, cred.Secret)
	if err != nil {
		return err
	}
	defer func() {
		err := client.Logout(context.WithoutCancel(ctx))
		if err != nil {
			slog.WarnContext(ctx, "moodle logout failed", "owner", owner, "err", err)
		}
	}()
	crawler := view.NewCrawler(client, view.Options{
		MaxConcurrency: s.cfg.Moodle.MaxConcurrency,
	})
	return crawler.CrawlEach(ctx, owner, emit)
}

func (s *Service) crawlWebClass(ctx context.Context, owner string, cred portal.Credential, emit func(portal.Item)) error {
	session, err := webclass.NewSession(ctx, webclass.Options{
		BaseUrl:        cred.BaseUrl,
		ExecPath:       s.cfg.WebClass.ChromeExecPath,
		Headful:        s.cfg.WebClass.Headful,
		ElementTimeout: s.cfg.WebClass.elementTimeout(),
	})
	if err != nil {
		return err
	}
	defer session.Close()

	err = session.Login(ctx, cred)
	if err != nil {
		return err
	}
	crawler := webclass.NewCrawler(session, webclass.CrawlerOptions{
		BaseUrl: session.BaseUrl,
	})
	return crawler.CrawlEach(ctx, owner, emit)
}

func (s *Service) notify(ctx context.Context, owner, message string) {
	err := s.notifier.Notify(ctx, owner, message)
	if err != nil {
		slog.DebugContext(ctx, "notification not delivered", "owner", owner, "err", err)
	}
}

// attempt runs fn, restarting it from login when the portal drops the
// session. Only the items of the last attempt are returned.
func (s *Service) attempt(ctx context.Context, platform portal.Platform, owner string, cred portal.Credential, fn job) ([]portal.Item, error) {
	retries := s.cfg.sessionRetries()
	for i := 0; ; i++ {
		var items []portal.Item
		err := fn(ctx, owner, cred, func(item portal.Item) {
			items = append(items, item)
		})
		if err == nil || !errors.Is(err, portal.ErrSessionExpired) || i >= retries {
			return items, err
		}
		slog.WarnContext(ctx, "session expired mid-crawl, starting over", "platform", platform, "owner", owner, "attempt", i+1)
	}
}

func (s *Service) run(ctx context.Context, platform portal.Platform, owner string, cred portal.Credential, fn job) Outcome {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("Crawl:%s", platform))
	defer span.End()
	span.SetAttributes(
		attribute.String("owner", owner),
		attribute.String("platform", string(platform)),
	)

	s.notify(ctx, owner, fmt.Sprintf("%s: crawl started", platform))
	slog.InfoContext(ctx, "crawl started", "platform", platform, "credential", cred)

	items, err := s.attempt(ctx, platform, owner, cred, fn)

	// whatever the last attempt got before failing is still worth keeping
	summary := assignments.Summary{}
	if len(items) > 0 {
		var storeErr error
		summary, storeErr = s.store.Reconcile(ctx, owner, items)
		if storeErr != nil {
			err = errors.Join(err, storeErr)
		}
	}

	outcome := Outcome{
		Platform: platform,
		Status:   StatusSuccess,
		Items:    summary.Upserted,
		Err:      err,
	}
	if err != nil {
		outcome.Status = StatusFailure
		outcome.Reason = portal.Category(err)

		span.RecordError(err)
		span.SetStatus(codes.Error, "crawl failed")
		slog.WarnContext(ctx, "crawl failed", "platform", platform, "owner", owner, "reason", outcome.Reason, "items", outcome.Items, "err", err)
		s.notify(ctx, owner, fmt.Sprintf("%s: crawl failed (%s)", platform, outcome.Reason))
	} else {
		slog.InfoContext(ctx, "crawl finished", "platform", platform, "owner", owner, "items", outcome.Items, "skipped", summary.Skipped)
		s.notify(ctx, owner, fmt.Sprintf("%s: crawl finished, %d items", platform, outcome.Items))
	}
	telemetry.RecordOutcome(ctx, string(platform), string(outcome.Status), outcome.Reason)
	return outcome
}

func (s *Service) CrawlMoodle(ctx context.Context, owner string, cred portal.Credential) Outcome {
	outcome := s.run(ctx, portal.PlatformMoodle, owner, withBaseUrl(cred, s.cfg.Moodle.BaseUrl), s.moodle)
	s.remember(owner, []Outcome{outcome})
	return outcome
}

func (s *Service) CrawlWebClass(ctx context.Context, owner string, cred portal.Credential) Outcome {
	outcome := s.run(ctx, portal.PlatformWebClass, owner, withBaseUrl(cred, s.cfg.WebClass.BaseUrl), s.webclass)
	s.remember(owner, []Outcome{outcome})
	return outcome
}

// CrawlAll crawls every portal a credential is given for, each in its own
// goroutine. A failing portal never affects the other one. Outcomes are
// ordered webclass first, then moodle.
func (s *Service) CrawlAll(ctx context.Context, owner string, creds Credentials) []Outcome {
	ctx, span := tracer.Start(ctx, "CrawlAll")
	defer span.End()

	var webclassOutcome, moodleOutcome *Outcome
	group := errgroup.Group{}
	if creds.WebClass != nil {
		group.Go(func() error {
			o := s.run(ctx, portal.PlatformWebClass, owner, withBaseUrl(*creds.WebClass, s.cfg.WebClass.BaseUrl), s.webclass)
			webclassOutcome = &o
			return nil
		})
	}
	if creds.Moodle != nil {
		group.Go(func() error {
			o := s.run(ctx, portal.PlatformMoodle, owner, withBaseUrl(*creds.Moodle, s.cfg.Moodle.BaseUrl), s.moodle)
			moodleOutcome = &o
			return nil
		})
	}
	group.Wait()

	var outcomes []Outcome
	for _, o := range []*Outcome{webclassOutcome, moodleOutcome} {
		if o != nil {
			outcomes = append(outcomes, *o)
		}
	}
	s.remember(owner, outcomes)
	return outcomes
}

// remember merges outcomes into the owner's last known outcome per platform.
func (s *Service) remember(owner string, outcomes []Outcome) {
	if len(outcomes) == 0 {
		return
	}
	s.outcomesMutex.Lock()
	defer s.outcomesMutex.Unlock()

	previous, _ := s.outcomes.Get(owner)
	merged := append([]Outcome(nil), outcomes...)
	for _, p := range previous {
		replaced := false
		for _, o := range outcomes {
			if o.Platform == p.Platform {
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, p)
		}
	}
	s.outcomes.Add(owner, merged)
}

// LastOutcomes returns the most recent outcome per platform for owner.
func (s *Service) LastOutcomes(owner string) ([]Outcome, bool) {
	return s.outcomes.Get(owner)
}
