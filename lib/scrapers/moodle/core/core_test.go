package core

import (
	"context"
	"errors"
	"kadai-backend/lib/portal"
	"kadai-backend/lib/scrapers/moodle/moodletest"
	"kadai-backend/lib/telemetry"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, server *moodletest.Server) *Client {
	client, err := NewClient(context.Background(), ClientOptions{
		BaseUrl:   server.URL,
		RateLimit: 1000,
		Burst:     100,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestLogin(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/moodle/core")
	defer cleanup()

	server := moodletest.NewServer(t, moodletest.Site{
		Username: "alice",
		Password: "correct horse",
		Token:    "abc123",
		LangMenu: "English ‎(en)‎",
	})

	t.Run("correct credentials", func(t *testing.T) {
		client := newTestClient(t, server)
		err := client.Login(context.Background(), "alice", "correct horse")
		require.NoError(t, err)
		require.Equal(t, "s3ssk3y", client.Sesskey)
		require.Equal(t, "en", client.Lang)
		require.Equal(t, "/my/", client.HomeUrl.Path)
	})

	t.Run("wrong password", func(t *testing.T) {
		client := newTestClient(t, server)
		err := client.Login(context.Background(), "alice", "wrong")
		require.Error(t, err)
		require.True(t, errors.Is(err, portal.ErrAuthenticationFailed))
		require.Contains(t, err.Error(), "Invalid login")
	})
}

func TestLogout(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/moodle/core")
	defer cleanup()

	server := moodletest.NewServer(t, moodletest.Site{
		Username: "alice",
		Password: "pw",
		Pages:    map[string]string{"/course/view.php?id=1": "<h1>course</h1>"},
	})
	client := newTestClient(t, server)
	ctx := context.Background()

	// nothing to end before login
	require.NoError(t, client.Logout(ctx))
	require.Zero(t, server.Logouts())

	require.NoError(t, client.Login(ctx, "alice", "pw"))
	_, err := client.Fetch(ctx, "/course/view.php?id=1")
	require.NoError(t, err)

	require.NoError(t, client.Logout(ctx))
	require.Equal(t, 1, server.Logouts())
	require.Empty(t, client.Sesskey)

	_, err = client.Fetch(ctx, "/course/view.php?id=1")
	require.ErrorIs(t, err, portal.ErrSessionExpired)
}

func TestFetchDetectsSessionExpiry(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/moodle/core")
	defer cleanup()

	server := moodletest.NewServer(t, moodletest.Site{
		Username: "alice",
		Password: "pw",
		Pages: map[string]string{
			"/course/view.php?id=1": `<h2>Course 1</h2>`,
		},
	})
	client := newTestClient(t, server)
	ctx := context.Background()
	require.NoError(t, client.Login(ctx, "alice", "pw"))

	page, err := client.Fetch(ctx, "/course/view.php?id=1")
	require.NoError(t, err)
	require.Equal(t, "Course 1", page.Doc.Find("h2").Text())

	_, err = client.Fetch(ctx, "/unauthorized")
	require.True(t, errors.Is(err, portal.ErrSessionExpired))

	_, err = client.Fetch(ctx, "/course/view.php?id=404")
	require.Error(t, err)
	require.False(t, errors.Is(err, portal.ErrSessionExpired))

	server.Expire()
	_, err = client.Fetch(ctx, "/course/view.php?id=1")
	require.True(t, errors.Is(err, portal.ErrSessionExpired))
}
