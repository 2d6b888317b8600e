package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/TristanCP/kapua/errors"
)

// startNATSContainer starts a throwaway NATS server with JetStream enabled
func startNATSContainer(ctx context.Context, t *testing.T) string {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "nats:latest",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForListeningPort("4222/tcp"),
		Cmd:          []string{"-js"},
	}

	natsContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = natsContainer.Terminate(context.Background())
	})

	host, err := natsContainer.Host(ctx)
	require.NoError(t, err)
	port, err := natsContainer.MappedPort(ctx, "4222")
	require.NoError(t, err)

	// Wait for NATS to be fully ready
	time.Sleep(200 * time.Millisecond)

	return fmt.Sprintf("nats://%s:%s", host, port.Port())
}

func connectTestClient(ctx context.Context, t *testing.T, url string) *Client {
	t.Helper()

	client, err := NewClient(url, WithName("natsclient-test"))
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(closeCtx)
	})
	return client
}

// TestIntegration_ConnectToRealNATS verifies connection state against a real server
func TestIntegration_ConnectToRealNATS(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	url := startNATSContainer(ctx, t)
	client := connectTestClient(ctx, t, url)

	assert.True(t, client.IsHealthy())
	assert.Equal(t, StatusConnected, client.Status())

	js, err := client.JetStream()
	require.NoError(t, err)
	assert.NotNil(t, js)
}

// TestIntegration_PublishSubscribeRoundTrip passes a payload through the server
func TestIntegration_PublishSubscribeRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	url := startNATSContainer(ctx, t)
	client := connectTestClient(ctx, t, url)

	received := make(chan []byte, 1)
	sub, err := client.Subscribe(ctx, "telemetry.test", func(_ context.Context, data []byte) {
		received <- data
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	require.NoError(t, client.Publish("telemetry.test", []byte(`{"temp":21.5}`)))

	select {
	case data := <-received:
		assert.Equal(t, []byte(`{"temp":21.5}`), data)
	case <-time.After(5 * time.Second):
		t.Fatal("payload never arrived")
	}
}

// TestIntegration_KVStoreCAS verifies the server-arbitrated create and
// revision-checked update classifications
func TestIntegration_KVStoreCAS(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	url := startNATSContainer(ctx, t)
	client := connectTestClient(ctx, t, url)

	kv, err := client.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: "natsclient-test",
		TTL:    time.Minute,
	})
	require.NoError(t, err)
	store := client.NewKVStore(kv)

	rev, err := store.Create(ctx, "S1.doc", []byte("v1"))
	require.NoError(t, err)

	// A second creator is rejected by the server.
	_, err = store.Create(ctx, "S1.doc", []byte("v2"))
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))

	entry, err := store.Get(ctx, "S1.doc")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), entry.Value)
	assert.Equal(t, rev, entry.Revision)

	// Update lands against the current revision and fails a stale one.
	rev2, err := store.Update(ctx, "S1.doc", []byte("v2"), rev)
	require.NoError(t, err)
	assert.Greater(t, rev2, rev)

	_, err = store.Update(ctx, "S1.doc", []byte("v3"), rev)
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))

	_, err = store.Get(ctx, "S1.missing")
	assert.True(t, errors.IsNotFound(err))
}

// TestIntegration_KVStoreTimeout verifies per-call timeouts classify as
// transient store unavailability
func TestIntegration_KVStoreTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	url := startNATSContainer(ctx, t)
	client := connectTestClient(ctx, t, url)

	kv, err := client.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: "natsclient-timeout-test",
		TTL:    time.Minute,
	})
	require.NoError(t, err)
	store := client.NewKVStore(kv, func(o *KVOptions) {
		o.Timeout = time.Nanosecond
	})

	_, err = store.Get(ctx, "S1.doc")
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err), "timeout surfaces as transient")
}
