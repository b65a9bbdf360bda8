package odm

import (
	"context"

	"github.com/pkg/errors"

	"github.com/shmookey/coconut/pkg/errdefs"
	"github.com/shmookey/coconut/pkg/metrics"
	"github.com/shmookey/coconut/pkg/store"
)

// Document is the root map of a stored record.
//
// A document starts unsaved (no identifier), gets an identifier on its
// first Save, and is detached again by Remove, which soft-deletes the
// stored record.
type Document struct {
	*Map
	id      store.ID
	active  bool
	removed bool
	typ     *Type
}

var _ Container = (*Document)(nil)

func (d *Document) Document() *Document { return d }

func (d *Document) ID() store.ID { return d.id }

func (d *Document) Active() bool { return d.active }

func (d *Document) Type() *Type { return d.typ }

func (d *Document) TypeName() string {
	if d.typ == nil {
		return ""
	}
	return d.typ.name
}

func (d *Document) session() *Session {
	if d.typ == nil {
		return nil
	}
	return d.typ.sess
}

// Ref returns the structural reference to the stored record.
func (d *Document) Ref() (store.Ref, error) {
	if d.id == "" {
		return store.Ref{}, errdefs.ErrUnsavedTarget
	}
	return store.Ref{Collection: d.typ.collection, ID: d.id}, nil
}

// Record renders the document as a store record, including the reserved
// identifier and active fields.
func (d *Document) Record() (map[string]interface{}, error) {
	v, err := d.Export()
	if err != nil {
		return nil, err
	}
	rec := v.(map[string]interface{})
	if d.id != "" {
		rec[store.IDField] = d.id
	}
	rec[store.ActiveField] = d.active
	return rec, nil
}

// Save writes the pending changes. An unsaved document is inserted with
// the active flag set; a saved one receives a partial update, or nothing at
// all when there are no changes. After the write the auditor (if any)
// records the change set, and only then are buffers committed. A failed
// save leaves every buffer in place. When the store write succeeds and the
// auditor fails, an inserted document keeps its new identifier, so a retry
// updates the stored record instead of inserting it again.
func (d *Document) Save(ctx context.Context) error {
	if d.typ == nil || d.removed {
		return errors.Wrap(errdefs.ErrDetached, "save")
	}
	t := d.typ
	sess := t.sess
	sets, unsets, err := d.Changes()
	if err != nil {
		return errors.Wrapf(err, "save %s", t.name)
	}

	outcome := "update"
	if d.id == "" {
		outcome = "insert"
		fields := sets.Plain()
		fields[store.ActiveField] = true
		metrics.StoreOperations.WithLabelValues("insert").Inc()
		id, err := sess.store.Insert(ctx, t.collection, fields)
		if err != nil {
			metrics.DocumentSaves.WithLabelValues(t.name, "error").Inc()
			return d.storeError(err)
		}
		d.id = id
		d.active = true
	} else {
		if len(sets) == 0 && len(unsets) == 0 {
			d.Flush()
			metrics.DocumentSaves.WithLabelValues(t.name, "noop").Inc()
			return nil
		}
		u := Flatten(sets, unsets)
		metrics.DiffPaths.WithLabelValues(t.name).Observe(float64(len(u.Set) + len(u.Unset)))
		metrics.StoreOperations.WithLabelValues("update").Inc()
		if err := sess.store.Update(ctx, t.collection, d.id, u); err != nil {
			metrics.DocumentSaves.WithLabelValues(t.name, "error").Inc()
			return d.storeError(err)
		}
	}

	if a := sess.currentAuditor(); a != nil && !t.audit {
		if err := a.Record(ctx, d, sets, unsets); err != nil {
			metrics.DocumentSaves.WithLabelValues(t.name, "error").Inc()
			return errors.Wrapf(err, "record revision of %s %s", t.name, d.id)
		}
	}
	d.Flush()
	metrics.DocumentSaves.WithLabelValues(t.name, outcome).Inc()
	sess.log.Debug().
		Str("type", t.name).
		Str("id", string(d.id)).
		Str("op", outcome).
		Int("sets", sets.Paths()).
		Int("unsets", unsets.Paths()).
		Msg("saved")
	return nil
}

func (d *Document) storeError(err error) error {
	switch {
	case errors.Is(err, store.ErrDuplicateKey):
		return &errdefs.UniqueIndexViolation{Type: d.typ.name, Cause: err}
	case errors.Is(err, store.ErrNotFound):
		return &errdefs.DocumentNotFound{Type: d.typ.name, ID: string(d.id)}
	}
	return errors.Wrapf(err, "save %s", d.typ.name)
}

// Remove soft-deletes the stored record and detaches this handle from it.
// The in-memory contents stay readable.
func (d *Document) Remove(ctx context.Context) error {
	if d.typ == nil || d.id == "" {
		return errors.Wrap(errdefs.ErrDetached, "remove")
	}
	metrics.StoreOperations.WithLabelValues("update").Inc()
	err := d.typ.sess.store.Update(ctx, d.typ.collection, d.id, store.Update{
		Set: map[string]interface{}{store.ActiveField: false},
	})
	if err != nil {
		return d.storeError(err)
	}
	d.typ.sess.log.Debug().Str("type", d.typ.name).Str("id", string(d.id)).Msg("removed")
	d.active = false
	d.removed = true
	d.id = ""
	return nil
}
