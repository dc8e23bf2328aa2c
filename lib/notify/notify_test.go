package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"kadai-backend/lib/telemetry"
	"log"
	"sync"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type recorder struct {
	mutex    sync.Mutex
	messages []string
	err      error
}

func (r *recorder) Notify(ctx context.Context, owner, message string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.messages = append(r.messages, owner+": "+message)
	return r.err
}

func TestMulti(t *testing.T) {
	ok := &recorder{}
	failing := &recorder{err: errors.New("mailbox full")}

	err := Multi{ok, failing, Slog{}}.Notify(context.Background(), "s123", "crawl started")
	require.ErrorContains(t, err, "mailbox full")
	require.Equal(t, []string{"s123: crawl started"}, ok.messages)
	require.Equal(t, []string{"s123: crawl started"}, failing.messages)
}

func TestAsyncDelivers(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/notify")
	defer cleanup()

	rec := &recorder{}
	async := NewAsync(rec, 8)
	for i := range 3 {
		require.NoError(t, async.Notify(context.Background(), "s123", fmt.Sprint(i)))
	}
	async.Close()
	require.Equal(t, []string{"s123: 0", "s123: 1", "s123: 2"}, rec.messages)
}

type gate struct {
	recorder
	entered chan struct{}
	release chan struct{}
}

func (g *gate) Notify(ctx context.Context, owner, message string) error {
	g.entered <- struct{}{}
	<-g.release
	return g.recorder.Notify(ctx, owner, message)
}

func TestAsyncDropsWhenFull(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/notify")
	defer cleanup()

	g := &gate{entered: make(chan struct{}, 3), release: make(chan struct{})}
	async := NewAsync(g, 1)
	ctx := context.Background()

	require.NoError(t, async.Notify(ctx, "s123", "first"))
	<-g.entered
	require.NoError(t, async.Notify(ctx, "s123", "second"))
	require.NoError(t, async.Notify(ctx, "s123", "dropped"))

	close(g.release)
	async.Close()
	require.Equal(t, []string{"s123: first", "s123: second"}, g.messages)
}

func TestEmail(t *testing.T) {
	testcontainers.SkipIfProviderIsNotHealthy(t)
	cleanup := telemetry.SetupForTesting(t, "test:lib/notify")
	defer cleanup()

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	ctx := context.Background()
	smtpServer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "haravich/fake-smtp-server",
			ExposedPorts: []string{"1025/tcp", "1080/tcp"},
			WaitingFor:   wait.ForLog("smtp://0.0.0.0:1025"),
		},
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, smtpServer.Terminate(ctx))
	}()

	host, err := smtpServer.Host(ctx)
	require.NoError(t, err)
	smtpPort, err := smtpServer.MappedPort(ctx, "1025/tcp")
	require.NoError(t, err)
	webEndpoint, err := smtpServer.PortEndpoint(ctx, "1080/tcp", "http")
	require.NoError(t, err)

	notifier := NewEmail(SmtpConfig{
		Server:          host,
		Port:            smtpPort.Int(),
		EmailAddress:    "kadai@example.ac.jp",
		Password:        "default",
		RecipientFormat: "%s@ms.example.ac.jp",
	})
	err = notifier.Notify(ctx, "s123", "webclass: crawl finished, 4 items")
	require.NoError(t, err)

	res, err := resty.New().R().Get(webEndpoint + "/messages/1.plain")
	require.NoError(t, err)
	require.Contains(t, res.String(), "webclass: crawl finished, 4 items")

	require.Error(t, NewEmail(SmtpConfig{}).Notify(ctx, "s123", "x"))
}

func TestFromConfig(t *testing.T) {
	withoutSmtp := FromConfig(nil, 4)
	require.Len(t, withoutSmtp.next, 1)
	withoutSmtp.Close()

	withSmtp := FromConfig(&SmtpConfig{Server: "smtp.example.ac.jp", Port: 587}, 4)
	require.Len(t, withSmtp.next, 2)
	withSmtp.Close()
}
