package db

import (
	"database/sql"
)

type Course struct {
	ID        int64
	Owner     string
	Title     string
	CreatedAt int64
}

type Assignment struct {
	ID        int64
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
