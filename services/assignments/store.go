package assignments

import (
	"context"
	"database/sql"
	"fmt"
	"kadai-backend/lib/portal"
	"kadai-backend/lib/telemetry"
	"kadai-backend/lib/timezone"
	"kadai-backend/services/assignments/db"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("kadai.services.assignments")

// Key identifies a stored assignment. An empty Url keys the record on
// owner and title alone, so two url-less assignments with the same title
// collapse into one.
type Key struct {
	Owner string
	Title string
	Url   string
}

// Fields are the values a scrape may overwrite. Nil dates and empty
// content leave whatever is stored untouched.
type Fields struct {
	CourseId  *int64
	Content   string
	Start     *time.Time
	Due       *time.Time
	Submitted bool
	Platform  portal.Platform
}

type Record struct {
	Id       int64
	CourseId *int64
	portal.Item
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Summary struct {
	Upserted int
	Skipped  int
}

type Store struct {
	qry    *db.Queries
	makeTx db.MakeTx
	now    func() time.Time
}

// NewStore expects database to already carry db.Schema.
func NewStore(database *sql.DB) *Store {
	return &Store{
		qry:    db.New(database),
		makeTx: db.NewMakeTx(database),
		now:    timezone.Now,
	}
}

func toNullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func fromNullTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0).In(timezone.Location)
	return &t
}

func toRecord(row db.Assignment, courseTitle string) Record {
	var courseId *int64
	if row.CourseID.Valid {
		id := row.CourseID.Int64
		courseId = &id
	}
	return Record{
		Id:       row.ID,
		CourseId: courseId,
		Item: portal.Item{
			Owner:       row.Owner,
			CourseTitle: courseTitle,
			Title:       row.Title,
			Content:     row.Content,
			Url:         row.Url,
			Start:       fromNullTime(row.StartDate),
			Due:         fromNullTime(row.DueDate),
			Submitted:   row.Submitted,
			Platform:    portal.Platform(row.Platform),
		},
		CreatedAt: time.Unix(row.CreatedAt, 0).In(timezone.Location),
		UpdatedAt: time.Unix(row.UpdatedAt, 0).In(timezone.Location),
	}
}

// unique violations cannot happen with the upsert statements; one showing
// up means the schema and the queries disagree
func wrapConflict(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", portal.ErrPersistenceConflict, err)
	}
	return err
}

func findOrCreateCourse(ctx context.Context, qry *db.Queries, owner, title string, now time.Time) (int64, error) {
	id, err := qry.FindOrCreateCourse(ctx, db.FindOrCreateCourseParams{
		Owner:     owner,
		Title:     title,
		CreatedAt: now.Unix(),
	})
	return id, wrapConflict(err)
}

func upsertAssignment(ctx context.Context, qry *db.Queries, key Key, fields Fields, now time.Time) (db.Assignment, error) {
	var courseId sql.NullInt64
	if fields.CourseId != nil {
		courseId = sql.NullInt64{Int64: *fields.CourseId, Valid: true}
	}
	row, err := qry.UpsertAssignment(ctx, db.UpsertAssignmentParams{
		Owner:     key.Owner,
		CourseID:  courseId,
		Title:     key.Title,
		Url:       key.Url,
		Content:   fields.Content,
		StartDate: toNullTime(fields.Start),
		DueDate:   toNullTime(fields.Due),
		Submitted: fields.Submitted,
		Platform:  string(fields.Platform),
		CreatedAt: now.Unix(),
		UpdatedAt: now.Unix(),
	})
	return row, wrapConflict(err)
}

func (s *Store) FindOrCreateCourse(ctx context.Context, owner, title string) (int64, error) {
	ctx, span := tracer.Start(ctx, "FindOrCreateCourse")
	defer span.End()

	id, err := findOrCreateCourse(ctx, s.qry, owner, title, s.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to find or create course")
	}
	return id, err
}

// UpsertAssignment creates the record for key or updates the existing one in
// place, keeping its id and creation time.
func (s *Store) UpsertAssignment(ctx context.Context, key Key, fields Fields) (Record, error) {
	ctx, span := tracer.Start(ctx, "UpsertAssignment")
	defer span.End()

	if key.Owner == "" || key.Title == "" {
		return Record{}, fmt.Errorf("assignment key needs an owner and a title, got %+v", key)
	}
	row, err := upsertAssignment(ctx, s.qry, key, fields, s.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upsert assignment")
		return Record{}, err
	}
	return toRecord(row, ""), nil
}

// Reconcile writes a crawl result for owner in a single transaction. Items
// without a title are skipped; any database failure rolls the batch back.
func (s *Store) Reconcile(ctx context.Context, owner string, items []portal.Item) (Summary, error) {
	ctx, span := tracer.Start(ctx, "Reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("owner", owner),
		attribute.Int("items", len(items)),
	)

	txqry, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to begin transaction")
		return Summary{}, err
	}
	defer discard()

	now := s.now()
	courses := map[string]int64{}
	summary := Summary{}
	for _, item := range items {
		if item.Title == "" {
			summary.Skipped++
			slog.WarnContext(ctx, "skipping untitled item", "item", item)
			continue
		}

		fields := Fields{
			Content:   item.Content,
			Start:     item.Start,
			Due:       item.Due,
			Submitted: item.Submitted,
			Platform:  item.Platform,
		}
		if item.CourseTitle != "" {
			id, ok := courses[item.CourseTitle]
			if !ok {
				id, err = findOrCreateCourse(ctx, txqry, owner, item.CourseTitle, now)
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, "failed to resolve course")
					return Summary{}, err
				}
				courses[item.CourseTitle] = id
			}
			fields.CourseId = &id
		}

		_, err = upsertAssignment(ctx, txqry, Key{Owner: owner, Title: item.Title, Url: item.Url}, fields, now)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to upsert assignment")
			return Summary{}, err
		}
		summary.Upserted++
	}

	err = commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to commit")
		return Summary{}, err
	}
	slog.DebugContext(ctx, "reconciled crawl", "owner", owner, "upserted", summary.Upserted, "skipped", summary.Skipped)
	return summary, nil
}

// ListAssignments returns owner's records, soonest due first and undated
// ones last.
func (s *Store) ListAssignments(ctx context.Context, owner string) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "ListAssignments")
	defer span.End()

	rows, err := s.qry.ListAssignments(ctx, owner)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list assignments")
		return nil, err
	}
	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = toRecord(row.Assignment, row.CourseTitle)
	}
	return records, nil
}

func (s *Store) CountAssignments(ctx context.Context, owner string) (int64, error) {
	return s.qry.CountAssignments(ctx, owner)
}
