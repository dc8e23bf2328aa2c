package db

import (
	"context"
	"database/sql"
)

const findOrCreateCourse = `-- name: FindOrCreateCourse :one
insert into Course(owner, title, created_at) values (?, ?, ?)
on conflict (owner, title) do update set owner = excluded.owner
returning id
`

type FindOrCreateCourseParams struct {
	Owner     string
	Title     string
	CreatedAt int64
}

func (q *Queries) FindOrCreateCourse(ctx context.Context, arg FindOrCreateCourseParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, findOrCreateCourse, arg.Owner, arg.Title, arg.CreatedAt)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const upsertAssignment = `-- name: UpsertAssignment :one
insert into Assignment(
    owner, course_id, title, url, content,
    start_date, due_date, submitted, platform,
    created_at, updated_at
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
on conflict (owner, title, url) do update set
    course_id = coalesce(excluded.course_id, Assignment.course_id),
    content = case when excluded.content = '' then Assignment.content else excluded.content end,
    start_date = coalesce(excluded.start_date, Assignment.start_date),
    due_date = coalesce(excluded.due_date, Assignment.due_date),
    submitted = excluded.submitted,
    platform = excluded.platform,
    updated_at = excluded.updated_at
returning id, owner, course_id, title, url, content, start_date, due_date, submitted, platform, created_at, updated_at
`

type UpsertAssignmentParams struct {
	Owner     string
	CourseID  sql.NullInt64
	Title     string
	Url       string
	Content   string
	StartDate sql.NullInt64
	DueDate   sql.NullInt64
	Submitted bool
	Platform  string
	CreatedAt int64
	UpdatedAt int64
}

func (q *Queries) UpsertAssignment(ctx context.Context, arg UpsertAssignmentParams) (Assignment, error) {
	row := q.db.QueryRowContext(ctx, upsertAssignment,
		arg.Owner,
		arg.CourseID,
		arg.Title,
		arg.Url,
		arg.Content,
		arg.StartDate,
		arg.DueDate,
		arg.Submitted,
		arg.Platform,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	var i Assignment
	err := row.Scan(
		&i.ID,
		&i.Owner,
		&i.CourseID,
		&i.Title,
		&i.Url,
		&i.Content,
		&i.StartDate,
		&i.DueDate,
		&i.Submitted,
		&i.Platform,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listAssignments = `-- name: ListAssignments :many
select
    Assignment.id, Assignment.owner, Assignment.course_id, Assignment.title, Assignment.url,
    Assignment.content, Assignment.start_date, Assignment.due_date, Assignment.submitted,
    Assignment.platform, Assignment.created_at, Assignment.updated_at,
    coalesce(Course.title, '') as course_title
from Assignment
left join Course on Course.id = Assignment.course_id
where Assignment.owner = ?
order by Assignment.due_date is null, Assignment.due_date, Assignment.title
`

type ListAssignmentsRow struct {
	Assignment  Assignment
	CourseTitle string
}

func (q *Queries) ListAssignments(ctx context.Context, owner string) ([]ListAssignmentsRow, error) {
	rows, err := q.db.QueryContext(ctx, listAssignments, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListAssignmentsRow
	for rows.Next() {
		var i ListAssignmentsRow
		if err := rows.Scan(
			&i.Assignment.ID,
			&i.Assignment.Owner,
			&i.Assignment.CourseID,
			&i.Assignment.Title,
			&i.Assignment.Url,
			&i.Assignment.Content,
			&i.Assignment.StartDate,
			&i.Assignment.DueDate,
			&i.Assignment.Submitted,
			&i.Assignment.Platform,
			&i.Assignment.CreatedAt,
			&i.Assignment.UpdatedAt,
			&i.CourseTitle,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countAssignments = `-- name: CountAssignments :one
select count(*) from Assignment where owner = ?
`

func (q *Queries) CountAssignments(ctx context.Context, owner string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countAssignments, owner)
	var count int64
	err := row.Scan(&count)
	return count, err
}
