package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

// EventArchivePrefix is the key prefix of archived event log segments.
const EventArchivePrefix = "archive/events/"

// archiveBatch bounds the number of events read per store view.
const archiveBatch = 1000

// multipartWriter is implemented by Writer; archives larger than one part
// go through the upload manager.
type multipartWriter interface {
	PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error
}

// EventArchiver copies the marketplace event log to object storage as JSONL
// segments named by their first and last sequence numbers:
//
//	archive/events/00000000000000000001-00000000000000000250.jsonl
//
// The primary store is never pruned; archives are an external copy.
type EventArchiver struct {
	store  domain.StateStore
	writer domain.BlobWriter
	reader domain.BlobReader
	logger *slog.Logger
}

// NewEventArchiver creates an EventArchiver.
func NewEventArchiver(store domain.StateStore, writer domain.BlobWriter, reader domain.BlobReader, logger *slog.Logger) *EventArchiver {
	return &EventArchiver{
		store:  store,
		writer: writer,
		reader: reader,
		logger: logger.With(slog.String("component", "event_archiver")),
	}
}

// LastArchived returns the highest sequence number already archived, or 0.
func (a *EventArchiver) LastArchived(ctx context.Context) (uint64, error) {
	infos, err := a.reader.List(ctx, EventArchivePrefix)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list event archives: %w", err)
	}
	var last uint64
	for _, info := range infos {
		_, to, ok := parseSegmentName(info.Path)
		if ok && to > last {
			last = to
		}
	}
	return last, nil
}

// Archive uploads every event after seq `after` as one segment and returns
// the last archived sequence number. It is a no-op when nothing is new.
func (a *EventArchiver) Archive(ctx context.Context, after uint64) (uint64, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	first, last := uint64(0), after

	for {
		var events []domain.Event
		err := a.store.View(ctx, func(v domain.StateView) error {
			var err error
			events, err = v.EventsAfter(ctx, last, archiveBatch)
			return err
		})
		if err != nil {
			return after, fmt.Errorf("s3blob: archive events query: %w", err)
		}
		for _, e := range events {
			if err := enc.Encode(e); err != nil {
				return after, fmt.Errorf("s3blob: archive events marshal: %w", err)
			}
			if first == 0 {
				first = e.Seq
			}
			last = e.Seq
		}
		if len(events) < archiveBatch {
			break
		}
	}
	if first == 0 {
		return after, nil
	}

	key := segmentName(first, last)
	const contentType = "application/x-ndjson"
	var err error
	if mw, ok := a.writer.(multipartWriter); ok && int64(buf.Len()) > minPartSize {
		err = mw.PutMultipart(ctx, key, &buf, contentType, minPartSize)
	} else {
		err = a.writer.Put(ctx, key, &buf, contentType)
	}
	if err != nil {
		return after, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	a.logger.InfoContext(ctx, "events archived",
		slog.String("path", key),
		slog.Uint64("from", first),
		slog.Uint64("to", last),
	)
	return last, nil
}

func segmentName(from, to uint64) string {
	return fmt.Sprintf("%s%020d-%020d.jsonl", EventArchivePrefix, from, to)
}

func parseSegmentName(p string) (from, to uint64, ok bool) {
	base := strings.TrimSuffix(path.Base(p), ".jsonl")
	lo, hi, found := strings.Cut(base, "-")
	if !found {
		return 0, 0, false
	}
	from, err1 := strconv.ParseUint(lo, 10, 64)
	to, err2 := strconv.ParseUint(hi, 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return from, to, true
}
