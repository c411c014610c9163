//go:build integration

package mongo

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/sflow/user-access/internal/core/ports"
	"github.com/sflow/user-access/internal/infrastructure/db/repotest"
)

func TestMongoUserRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	store, err := Open(ctx, Config{URI: fmt.Sprintf("mongodb://%s", endpoint), Database: "users_test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(ctx) })

	repo := store.Users

	suite.Run(t, &repotest.UserRepositorySuite{
		NewRepo: func() ports.UserRepository {
			_, err := repo.coll.DeleteMany(ctx, bson.M{})
			require.NoError(t, err)
			return repo
		},
	})
}
