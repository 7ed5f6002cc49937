package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tweetvault/tweetvault/pkg/tweets"
)

type fakeSink struct {
	stored []*tweets.Tweet
}

func (f *fakeSink) Store(_ context.Context, status *tweets.Status, rawData string) (*tweets.Tweet, error) {
	tweet, err := tweets.NewTweetFromStatus(status, rawData)
	if err != nil {
		return nil, err
	}
	f.stored = append(f.stored, tweet)
	return tweet, nil
}

func buildZip(t *testing.T, entries map[string]string) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return bytes.NewReader(buf.Bytes())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const monthFile = `Grailbird.data.tweets_2016_09 =
[ {
  "id": 772661502,
  "user": {"id": 47, "screen_name": "bob"},
  "created_at": "2016-09-05 22:58:53 +0000",
  "text": "first tweet",
  "source": "web"
}, {
  "id": 772661503,
  "user": {"id": 47, "screen_name": "bob"},
  "created_at": "2016-09-06 08:00:00 +0000",
  "text": "second tweet",
  "source": "web"
} ]`

func TestImportZip(t *testing.T) {
	sink := &fakeSink{}
	importer := NewImporter(sink, discardLogger())

	r := buildZip(t, map[string]string{
		"data/js/tweets/2016_09.js": monthFile,
		"data/js/user_details.js":   "Grailbird.data.user = {}",
		"README.txt":                "not a tweet file",
	})

	count, err := importer.ImportZip(context.Background(), r, r.Size())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, sink.stored, 2)

	first := sink.stored[0]
	assert.Equal(t, int64(772661502), first.ID)
	assert.Equal(t, "first tweet", first.Content)
	// The archive layout is rewritten before decoding; timestamps come out
	// identical to live ingestion.
	assert.True(t, first.CreatedAt.Equal(time.Date(2016, time.September, 5, 22, 58, 53, 0, time.UTC)))
}

func TestImportZipOrdersMonthFiles(t *testing.T) {
	sink := &fakeSink{}
	importer := NewImporter(sink, discardLogger())

	older := `Grailbird.data.tweets_2016_08 =
[ {"id": 1, "user": {"id": 47}, "created_at": "2016-08-01 10:00:00 +0000", "text": "august", "source": "web"} ]`
	newer := `Grailbird.data.tweets_2016_09 =
[ {"id": 2, "user": {"id": 47}, "created_at": "2016-09-01 10:00:00 +0000", "text": "september", "source": "web"} ]`

	r := buildZip(t, map[string]string{
		"data/js/tweets/2016_09.js": newer,
		"data/js/tweets/2016_08.js": older,
	})

	count, err := importer.ImportZip(context.Background(), r, r.Size())
	require.NoError(t, err)
	require.Equal(t, 2, count)
	assert.Equal(t, int64(1), sink.stored[0].ID)
	assert.Equal(t, int64(2), sink.stored[1].ID)
}

func TestImportZipSkipsMalformedTweets(t *testing.T) {
	sink := &fakeSink{}
	importer := NewImporter(sink, discardLogger())

	mixed := `Grailbird.data.tweets_2016_09 =
[ "not an object",
  {"id": 3, "user": {"id": 47}, "created_at": "2016-09-01 10:00:00 +0000", "text": "survivor", "source": "web"} ]`

	r := buildZip(t, map[string]string{"data/js/tweets/2016_09.js": mixed})

	count, err := importer.ImportZip(context.Background(), r, r.Size())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestImportZipRejectsNonArchive(t *testing.T) {
	importer := NewImporter(&fakeSink{}, discardLogger())

	r := bytes.NewReader([]byte("definitely not a zip"))
	_, err := importer.ImportZip(context.Background(), r, r.Size())
	assert.Error(t, err)
}

func TestImportZipMissingHeader(t *testing.T) {
	importer := NewImporter(&fakeSink{}, discardLogger())

	r := buildZip(t, map[string]string{"data/js/tweets/2016_09.js": `[ ]`})
	_, err := importer.ImportZip(context.Background(), r, r.Size())
	assert.Error(t, err)
}
