package tweets

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestRepository starts a throwaway PostgreSQL container, runs the
// migrations against it, and returns a connected repository.
func setupTestRepository(t *testing.T) *Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-based test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("tweetvault_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	repo, err := NewRepository(ctx, &RepositoryConfig{
		ConnectionString: connStr,
		MigrationsPath:   "file://../../migrations",
	})
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	require.NoError(t, repo.MigrateToLatest())
	return repo
}

func storedTweet(id int64, createdAt time.Time) *Tweet {
	return &Tweet{
		ID:        id,
		UserID:    47,
		CreatedAt: createdAt,
		Content:   "hello world",
		Source:    "web",
		RawData:   fmt.Sprintf(`{"id":%d}`, id),
		Lang:      "en",
	}
}

func TestRepositoryRoundTrip(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	createdAt := time.Date(2016, time.September, 5, 22, 58, 53, 0, time.UTC)

	quoted := int64(9000)
	tweet := &Tweet{
		ID:             1,
		UserID:         47,
		CreatedAt:      createdAt,
		Content:        "hello world",
		Source:         "web",
		RawData:        `{"id":1}`,
		Lang:           "de",
		CountryCode:    "DE",
		QuotedStatusID: &quoted,
		InReplyTo:      &InReplyTo{StatusID: 99, ScreenName: "alice", UserID: 3},
		Location:       &Location{Latitude: 50.7, Longitude: 7.1},
	}
	require.NoError(t, repo.Save(ctx, tweet))

	loaded, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, tweet.ID, loaded.ID)
	assert.Equal(t, tweet.UserID, loaded.UserID)
	assert.True(t, loaded.CreatedAt.Equal(createdAt))
	assert.Equal(t, tweet.Content, loaded.Content)
	assert.Equal(t, tweet.Lang, loaded.Lang)
	assert.Equal(t, tweet.CountryCode, loaded.CountryCode)
	require.NotNil(t, loaded.InReplyTo)
	assert.Equal(t, *tweet.InReplyTo, *loaded.InReplyTo)
	require.NotNil(t, loaded.QuotedStatusID)
	assert.Equal(t, quoted, *loaded.QuotedStatusID)
	require.NotNil(t, loaded.Location)
	assert.Equal(t, 50.7, loaded.Location.Latitude)
}

func TestRepositorySaveIsUpsert(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	createdAt := time.Date(2016, time.September, 5, 22, 58, 53, 0, time.UTC)

	tweet := storedTweet(1, createdAt)
	require.NoError(t, repo.Save(ctx, tweet))

	tweet.Content = "updated content"
	require.NoError(t, repo.Save(ctx, tweet))

	loaded, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "updated content", loaded.Content)
}

func TestRepositoryFindByIDUnknown(t *testing.T) {
	repo := setupTestRepository(t)

	loaded, err := repo.FindByID(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRepositoryFindByIDsPreservesOrder(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	createdAt := time.Date(2016, time.September, 5, 22, 58, 53, 0, time.UTC)

	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, repo.Save(ctx, storedTweet(id, createdAt)))
	}

	result, err := repo.FindByIDs(ctx, []int64{3, 404, 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, collectIDs(result))

	empty, err := repo.FindByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRepositoryFindReplies(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	createdAt := time.Date(2016, time.September, 5, 22, 58, 53, 0, time.UTC)

	root := storedTweet(1, createdAt)
	require.NoError(t, repo.Save(ctx, root))

	reply := storedTweet(2, createdAt.Add(time.Minute))
	reply.InReplyTo = &InReplyTo{StatusID: 1, ScreenName: "alice", UserID: 3}
	require.NoError(t, repo.Save(ctx, reply))

	other := storedTweet(3, createdAt.Add(2*time.Minute))
	require.NoError(t, repo.Save(ctx, other))

	replies, err := repo.FindReplies(ctx, []int64{1})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, collectIDs(replies))
}

func TestRepositoryDeleteByID(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	createdAt := time.Date(2016, time.September, 5, 22, 58, 53, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, storedTweet(1, createdAt)))

	count, err := repo.DeleteByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = repo.DeleteByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
