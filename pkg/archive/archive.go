// Package archive copies a document and its revision log to object storage.
package archive

import (
	"bytes"
	"context"
	"io"
	"path"

	gojson "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/shmookey/coconut/pkg/logger"
	"github.com/shmookey/coconut/pkg/odm"
	"github.com/shmookey/coconut/pkg/revision"
)

const (
	documentObject  = "document.json"
	revisionsObject = "revisions.json"
	contentType     = "application/json"
)

// ObjectStore is the subset of an S3-style bucket the archiver needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

type Archiver struct {
	objects   ObjectStore
	revisions *revision.Recorder
	log       zerolog.Logger
}

// New returns an archiver writing to objects. rec may be nil, in which case
// the revision log is written as an empty list.
func New(objects ObjectStore, rec *revision.Recorder) *Archiver {
	return &Archiver{objects: objects, revisions: rec, log: logger.Component("archive")}
}

// Manifest describes one archived document.
type Manifest struct {
	Type      string   `json:"type"`
	ID        string   `json:"id"`
	Revisions int      `json:"revisions"`
	Keys      []string `json:"keys"`
}

// Prefix is the key prefix all objects of one document share.
func Prefix(typeName, id string) string { return path.Join(typeName, id) }

// Archive writes the current record of doc and its revisions, newest
// first. Unsaved documents cannot be archived.
func (a *Archiver) Archive(ctx context.Context, doc *odm.Document) (*Manifest, error) {
	if _, err := doc.Ref(); err != nil {
		return nil, err
	}
	record, err := doc.Record()
	if err != nil {
		return nil, errors.Wrap(err, "export document")
	}
	revs := []interface{}{}
	if a.revisions != nil {
		docs, err := a.revisions.ForDocument(ctx, doc)
		if err != nil {
			return nil, errors.Wrap(err, "list revisions")
		}
		for _, r := range docs {
			rec, err := r.Record()
			if err != nil {
				return nil, errors.Wrap(err, "export revision")
			}
			revs = append(revs, rec)
		}
	}

	m := &Manifest{Type: doc.TypeName(), ID: string(doc.ID()), Revisions: len(revs)}
	prefix := Prefix(m.Type, m.ID)
	for _, obj := range []struct {
		name  string
		value interface{}
	}{
		{documentObject, record},
		{revisionsObject, revs},
	} {
		key := path.Join(prefix, obj.name)
		if err := a.put(ctx, key, obj.value); err != nil {
			return nil, err
		}
		m.Keys = append(m.Keys, key)
	}
	a.log.Info().Str("type", m.Type).Str("id", m.ID).Int("revisions", m.Revisions).Msg("archived")
	return m, nil
}

func (a *Archiver) put(ctx context.Context, key string, v interface{}) error {
	b, err := gojson.Marshal(odm.JSONValue(v))
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return a.objects.Put(ctx, key, bytes.NewReader(b), int64(len(b)), contentType)
}

// Restore reads back an archived record and its revisions as plain JSON
// values.
func (a *Archiver) Restore(ctx context.Context, typeName, id string) (map[string]interface{}, []map[string]interface{}, error) {
	prefix := Prefix(typeName, id)
	var record map[string]interface{}
	if err := a.get(ctx, path.Join(prefix, documentObject), &record); err != nil {
		return nil, nil, err
	}
	var revs []map[string]interface{}
	if err := a.get(ctx, path.Join(prefix, revisionsObject), &revs); err != nil {
		return nil, nil, err
	}
	return record, revs, nil
}

func (a *Archiver) get(ctx context.Context, key string, v interface{}) error {
	rc, err := a.objects.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()
	return errors.Wrapf(gojson.NewDecoder(rc).Decode(v), "decode %s", key)
}
