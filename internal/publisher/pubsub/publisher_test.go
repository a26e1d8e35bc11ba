package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	client, err := pubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	return client, srv
}

func TestPublishSendsJSON(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, srv := newTestClient(t)
	_, err := client.CreateTopic(ctx, "scrape-runs")
	require.NoError(t, err)

	pub, err := New(client, map[string]string{"source": "scraper"})
	require.NoError(t, err)

	id, err := pub.Publish(ctx, "scrape-runs", map[string]int{"inserted": 3})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, pub.Close())

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "scraper", msgs[0].Attributes["source"])

	var got map[string]int
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, 3, got["inserted"])
}

func TestPublishValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil)
	require.Error(t, err)

	client, _ := newTestClient(t)
	pub, err := New(client, nil)
	require.NoError(t, err)
	defer func() { _ = pub.Close() }()

	_, err = pub.Publish(context.Background(), "", "x")
	require.ErrorContains(t, err, "topic is required")

	_, err = pub.Publish(context.Background(), "t", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
}
