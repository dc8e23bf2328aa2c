package portal

import (
	"context"
	"log/slog"
	"time"
)

type Platform string

const (
	PlatformMoodle   Platform = "moodle"
	PlatformWebClass Platform = "webclass"
)

// Credential is supplied per crawl and never stored.
type Credential struct {
	Identifier string
	Secret     string
	BaseUrl    string
}

func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("identifier", c.Identifier),
		slog.String("base_url", c.BaseUrl),
	)
}

type Course struct {
	Owner string
	Title string
}

// Item is the normalized unit a crawler emits for one assignment.
type Item struct {
	Owner       string
	CourseTitle string
	Title       string
	Content     string
	Url         string
	Start       *time.Time
	Due         *time.Time
	Submitted   bool
	Platform    Platform
}

func (i Item) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("course", i.CourseTitle),
		slog.String("title", i.Title),
		slog.String("url", i.Url),
		slog.String("platform", string(i.Platform)),
	)
}

// Notifier receives best-effort progress messages for an owner.
type Notifier interface {
	Notify(ctx context.Context, owner, message string) error
}

type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, string, string) error {
	return nil
}
