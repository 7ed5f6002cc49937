package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tweetvault/tweetvault/pkg/tweets"
)

// Sink receives the statuses extracted from an archive.
// *tweets.StorageService satisfies it.
type Sink interface {
	Store(ctx context.Context, status *tweets.Status, rawData string) (*tweets.Tweet, error)
}

const tweetEntryPrefix = "data/js/tweets/"

// Archive exports prefix every month file with a Grailbird assignment and
// use a created_at layout the live API never emits. The importer strips the
// former and rewrites the latter before decoding.
var archiveCreatedAtPattern = regexp.MustCompile(
	`"created_at"\s*:\s*"(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} [+-]\d{4})"`)

// Importer feeds the monthly tweet files of a downloaded account archive
// into a sink.
type Importer struct {
	sink   Sink
	logger *slog.Logger
}

// NewImporter creates an archive importer.
func NewImporter(sink Sink, logger *slog.Logger) *Importer {
	return &Importer{sink: sink, logger: logger}
}

// ImportZip reads an account archive and stores every tweet it contains.
// Month files are processed in name order, oldest first. Returns the number
// of tweets stored.
func (i *Importer) ImportZip(ctx context.Context, r io.ReaderAt, size int64) (int, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return 0, fmt.Errorf("failed to open archive: %w", err)
	}

	var entries []*zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if strings.HasPrefix(f.Name, tweetEntryPrefix) && strings.HasSuffix(f.Name, ".js") {
			entries = append(entries, f)
		}
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].Name < entries[b].Name })

	total := 0
	for _, f := range entries {
		count, err := i.importEntry(ctx, f)
		if err != nil {
			return total, fmt.Errorf("failed to import %s: %w", f.Name, err)
		}
		i.logger.Info("imported archive entry", "entry", f.Name, "count", count)
		total += count
	}
	return total, nil
}

func (i *Importer) importEntry(ctx context.Context, f *zip.File) (int, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return 0, err
	}

	payload, err := extractJSON(content)
	if err != nil {
		return 0, err
	}
	payload = rewriteCreatedAt(payload)

	var raws []json.RawMessage
	if err := json.Unmarshal(payload, &raws); err != nil {
		return 0, fmt.Errorf("invalid tweet list: %w", err)
	}

	count := 0
	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		var status tweets.Status
		if err := json.Unmarshal(raw, &status); err != nil {
			i.logger.Error("skipping malformed archive tweet", "entry", f.Name, "error", err)
			continue
		}

		if _, err := i.sink.Store(ctx, &status, string(raw)); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// extractJSON strips the Grailbird variable assignment that precedes the
// JSON array in every month file.
func extractJSON(content []byte) ([]byte, error) {
	idx := bytes.IndexByte(content, '=')
	if idx < 0 {
		return nil, fmt.Errorf("missing Grailbird header")
	}
	return content[idx+1:], nil
}

// rewriteCreatedAt converts archive-layout timestamps into the layout the
// status decoder expects from the live API.
func rewriteCreatedAt(payload []byte) []byte {
	return archiveCreatedAtPattern.ReplaceAllFunc(payload, func(match []byte) []byte {
		sub := archiveCreatedAtPattern.FindSubmatch(match)
		parsed, err := time.Parse(tweets.CreatedAtLayoutArchive, string(sub[1]))
		if err != nil {
			return match
		}
		return []byte(fmt.Sprintf(`"created_at": "%s"`, parsed.Format(tweets.CreatedAtLayoutAPI)))
	})
}
