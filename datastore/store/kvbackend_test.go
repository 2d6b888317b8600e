package store

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
	"github.com/TristanCP/kapua/natsclient"
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

// newTestKVBackend provisions a backend over a fresh bucket on a
// container-local NATS server.
func newTestKVBackend(t *testing.T) *KVBackend {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	url := startNATSContainer(ctx, t)

	client, err := natsclient.NewClient(url, natsclient.WithName("kvbackend-test"))
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		_ = client.Close(closeCtx)
	})

	bucket := fmt.Sprintf("kvbackend-test-%d", time.Now().UnixNano())
	kv, err := client.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    time.Minute,
	})
	require.NoError(t, err)

	return NewKVBackend(client.NewKVStore(kv))
}

func TestIntegration_KVBackendRoundTrip(t *testing.T) {
	b := newTestKVBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Create(ctx, "S1.doc", []byte(`{"v":1}`)))
	err := b.Create(ctx, "S1.doc", []byte(`{"v":2}`))
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists), "server arbitrates a single creator")

	value, err := b.Get(ctx, "S1.doc")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":1}`), value)

	require.NoError(t, b.Put(ctx, "S1.doc", []byte(`{"v":3}`)))
	value, err = b.Get(ctx, "S1.doc")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":3}`), value)

	require.NoError(t, b.Delete(ctx, "S1.doc"))
	_, err = b.Get(ctx, "S1.doc")
	assert.True(t, errors.IsNotFound(err))
}

func TestIntegration_KVBackendUpdateChecksRevision(t *testing.T) {
	b := newTestKVBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Create(ctx, "S1.doc", []byte(`{"v":1}`)))

	entry, err := b.GetEntry(ctx, "S1.doc")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":1}`), entry.Value)

	require.NoError(t, b.Update(ctx, "S1.doc", []byte(`{"v":2}`), entry.Revision))

	// The same revision is stale now; the server rejects the swap.
	err = b.Update(ctx, "S1.doc", []byte(`{"v":3}`), entry.Revision)
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))

	value, err := b.Get(ctx, "S1.doc")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":2}`), value)
}

func TestIntegration_KVBackendKeysPrefix(t *testing.T) {
	b := newTestKVBackend(t)
	ctx := context.Background()

	for _, key := range []string{"S1.2026-35.a", "S1.2026-35.b", "S1.2026-36.c", "S2.2026-35.d"} {
		require.NoError(t, b.Create(ctx, key, []byte("{}")))
	}

	keys, err := b.Keys(ctx, "S1.")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"S1.2026-35.a", "S1.2026-35.b", "S1.2026-36.c"}, keys)

	keys, err = b.Keys(ctx, "S1.2026-35.")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"S1.2026-35.a", "S1.2026-35.b"}, keys)
}
