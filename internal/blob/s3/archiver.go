package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Archiver lays out bot artifacts under a key prefix:
//
//	<prefix>/trades/YYYY/MM/DD/<trade id>.json
//	<prefix>/logs/<timestamp>-<file name>
type Archiver struct {
	writer domain.BlobWriter
	prefix string
	now    func() time.Time
}

// NewArchiver creates an Archiver writing through w. prefix may be empty.
func NewArchiver(w domain.BlobWriter, prefix string) *Archiver {
	return &Archiver{
		writer: w,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
	}
}

// ArchiveTrade uploads t as a JSON document keyed by its close date and ID.
func (a *Archiver) ArchiveTrade(ctx context.Context, t domain.Trade) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal trade %s: %w", t.ID, err)
	}
	key := a.key("trades", t.ClosedAt.UTC().Format("2006/01/02"), t.ID+".json")
	return a.writer.Put(ctx, key, bytes.NewReader(data), "application/json")
}

// ArchiveLog uploads the file at localPath via multipart upload and returns
// the object key.
func (a *Archiver) ArchiveLog(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("s3blob: open %s: %w", localPath, err)
	}
	defer f.Close()

	stamp := a.now().UTC().Format("20060102T150405Z")
	key := a.key("logs", stamp+"-"+filepath.Base(localPath))
	if err := a.writer.PutMultipart(ctx, key, f, minPartSize); err != nil {
		return "", err
	}
	return key, nil
}

func (a *Archiver) key(parts ...string) string {
	if a.prefix != "" {
		parts = append([]string{a.prefix}, parts...)
	}
	return path.Join(parts...)
}
