package assignments

import (
	"context"
	"io"
	configlibsql "kadai-backend/lib/configutil/libsql"
	"kadai-backend/lib/portal"
	"kadai-backend/lib/testutil"
	"kadai-backend/lib/timezone"
	"kadai-backend/services/assignments/db"
	"log"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/mazen160/go-random"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setup(t testing.TB) (*Store, *fakeClock, func()) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/assignments",
		DbSchema: db.Schema,
	})
	clock := &fakeClock{now: timezone.Date(2025, time.May, 1, 9, 0)}
	store := NewStore(res.DB)
	store.now = clock.Now
	return store, clock, cleanup
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func randomOwner(t testing.TB) string {
	owner, err := random.String(12)
	require.NoError(t, err)
	return owner
}

func ptr(t time.Time) *time.Time {
	return &t
}

var ignoreBookkeeping = cmpopts.IgnoreFields(Record{}, "Id", "CourseId", "CreatedAt", "UpdatedAt")

func TestReconcileIsIdempotent(t *testing.T) {
	store, clock, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()
	owner := randomOwner(t)

	items := []portal.Item{
		{
			CourseTitle: "オペレーティングシステム",
			Title:       "課題1",
			Url:         "https://els.example.ac.jp/webclass/do_contents.php?set_contents_id=aaa111",
			Content:     "レポート",
			Due:         ptr(timezone.Date(2025, time.June, 20, 23, 59)),
			Platform:    portal.PlatformWebClass,
		},
		{
			CourseTitle: "プログラミング演習",
			Title:       "レポート1",
			Url:         "https://moodle.example.ac.jp/mod/assign/view.php?id=11",
			Start:       ptr(timezone.Date(2025, time.June, 1, 9, 0)),
			Due:         ptr(timezone.Date(2025, time.June, 8, 23, 59)),
			Platform:    portal.PlatformMoodle,
		},
		{
			CourseTitle: "プログラミング演習",
			Title:       "小テスト1",
			Url:         "https://moodle.example.ac.jp/mod/quiz/view.php?id=12",
			Platform:    portal.PlatformMoodle,
		},
	}

	summary, err := store.Reconcile(ctx, owner, items)
	require.NoError(t, err)
	require.Equal(t, Summary{Upserted: 3}, summary)
	first, err := store.ListAssignments(ctx, owner)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	items[2].Submitted = true
	summary, err = store.Reconcile(ctx, owner, items)
	require.NoError(t, err)
	require.Equal(t, Summary{Upserted: 3}, summary)

	count, err := store.CountAssignments(ctx, owner)
	require.NoError(t, err)
	require.EqualValues(t, 3, count)

	second, err := store.ListAssignments(ctx, owner)
	require.NoError(t, err)
	require.Len(t, second, 3)

	expect := make([]Record, len(items))
	for i, item := range items {
		item.Owner = owner
		expect[i] = Record{Item: item}
	}
	diff := cmp.Diff(expect, second, ignoreBookkeeping, cmpopts.SortSlices(func(a, b Record) bool {
		return a.Url < b.Url
	}))
	if diff != "" {
		t.Fatal(diff)
	}

	byUrl := map[string]Record{}
	for _, r := range first {
		byUrl[r.Url] = r
	}
	for _, r := range second {
		before := byUrl[r.Url]
		require.Equal(t, before.Id, r.Id, "identity is kept across crawls")
		require.True(t, before.CreatedAt.Equal(r.CreatedAt))
		require.True(t, r.UpdatedAt.After(before.UpdatedAt))
	}
}

func TestUpsertUpdatesDueDateOnly(t *testing.T) {
	store, clock, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()
	owner := randomOwner(t)

	courseId, err := store.FindOrCreateCourse(ctx, owner, "情報数学")
	require.NoError(t, err)
	again, err := store.FindOrCreateCourse(ctx, owner, "情報数学")
	require.NoError(t, err)
	require.Equal(t, courseId, again)

	key := Key{Owner: owner, Title: "課題A", Url: "https://moodle.example.ac.jp/mod/assign/view.php?id=21"}
	created, err := store.UpsertAssignment(ctx, key, Fields{
		CourseId: &courseId,
		Content:  "A4 一枚で",
		Start:    ptr(timezone.Date(2025, time.May, 25, 9, 0)),
		Due:      ptr(timezone.Date(2025, time.June, 1, 23, 59)),
		Platform: portal.PlatformMoodle,
	})
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	updated, err := store.UpsertAssignment(ctx, key, Fields{
		Due:      ptr(timezone.Date(2025, time.June, 8, 23, 59)),
		Platform: portal.PlatformMoodle,
	})
	require.NoError(t, err)

	require.Equal(t, created.Id, updated.Id)
	require.True(t, updated.Due.Equal(timezone.Date(2025, time.June, 8, 23, 59)))
	require.True(t, updated.Start.Equal(*created.Start), "start not present in the new scrape is kept")
	require.Equal(t, "A4 一枚で", updated.Content)
	require.Equal(t, courseId, *updated.CourseId)
	require.True(t, created.CreatedAt.Equal(updated.CreatedAt))

	count, err := store.CountAssignments(ctx, owner)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestUrlLessItemsKeyOnTitle(t *testing.T) {
	store, _, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()
	owner := randomOwner(t)

	_, err := store.Reconcile(ctx, owner, []portal.Item{
		{Title: "期末レポート", Platform: portal.PlatformWebClass},
		{Title: "期末レポート", Submitted: true, Platform: portal.PlatformWebClass},
		{Title: "期末レポート", Url: "https://els.example.ac.jp/x", Platform: portal.PlatformWebClass},
		{Title: "", Url: "https://els.example.ac.jp/y", Platform: portal.PlatformWebClass},
	})
	require.NoError(t, err)

	records, err := store.ListAssignments(ctx, owner)
	require.NoError(t, err)
	require.Len(t, records, 2)

	var urlLess Record
	for _, r := range records {
		if r.Url == "" {
			urlLess = r
		}
	}
	require.Equal(t, "期末レポート", urlLess.Title)
	require.True(t, urlLess.Submitted, "the later duplicate wins")
}

func TestOwnersAreIsolated(t *testing.T) {
	store, _, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()
	alice := randomOwner(t)
	bob := randomOwner(t)

	item := portal.Item{CourseTitle: "線形代数", Title: "課題1", Url: "https://els.example.ac.jp/a", Platform: portal.PlatformWebClass}
	_, err := store.Reconcile(ctx, alice, []portal.Item{item})
	require.NoError(t, err)
	_, err = store.Reconcile(ctx, bob, []portal.Item{item})
	require.NoError(t, err)

	for _, owner := range []string{alice, bob} {
		records, err := store.ListAssignments(ctx, owner)
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.Equal(t, owner, records[0].Owner)
		require.Equal(t, "線形代数", records[0].CourseTitle)
	}
}

func TestUpsertRejectsEmptyKey(t *testing.T) {
	store, _, cleanup := setup(t)
	defer cleanup()

	_, err := store.UpsertAssignment(context.Background(), Key{Owner: "s1"}, Fields{})
	require.Error(t, err)
}

func TestReconcileAgainstLibsqlServer(t *testing.T) {
	testcontainers.SkipIfProviderIsNotHealthy(t)
	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	ctx := context.Background()
	server, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "ghcr.io/tursodatabase/libsql-server:latest",
			ExposedPorts: []string{"8080/tcp"},
			WaitingFor:   wait.ForListeningPort("8080/tcp"),
		},
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, server.Terminate(ctx))
	}()

	endpoint, err := server.PortEndpoint(ctx, "8080/tcp", "http")
	require.NoError(t, err)
	database, err := configlibsql.Struct{Url: endpoint}.OpenDB()
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, db.Migrate(ctx, database))
	// applying it twice is harmless
	require.NoError(t, db.Migrate(ctx, database))

	store := NewStore(database)
	items := []portal.Item{
		{CourseTitle: "統計学", Title: "レポート1", Url: "https://moodle.example.ac.jp/mod/assign/view.php?id=1", Platform: portal.PlatformMoodle},
	}
	for range 2 {
		_, err := store.Reconcile(ctx, "s123", items)
		require.NoError(t, err)
	}
	count, err := store.CountAssignments(ctx, "s123")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}
