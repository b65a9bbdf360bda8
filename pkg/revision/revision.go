// Package revision keeps an append-only log of document changes and walks
// it backwards to recover earlier field values.
package revision

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/shmookey/coconut/pkg/logger"
	"github.com/shmookey/coconut/pkg/odm"
	"github.com/shmookey/coconut/pkg/schema"
	"github.com/shmookey/coconut/pkg/store"
)

// TypeName is the document type revisions are registered under.
const TypeName = "Revision"

// Record fields.
const (
	FieldItem    = "item"
	FieldChanges = "changes"
	FieldDate    = "date"
)

// Schema describes a revision record: the affected document, the change
// set of one save and when it happened.
func Schema() *schema.Schema {
	return schema.Map(map[string]*schema.Schema{
		FieldItem:    schema.AnyRef(),
		FieldChanges: schema.AnyMap().Opaque(),
		FieldDate:    schema.Float().Indexed(),
	})
}

// Recorder writes a revision for every audited save.
type Recorder struct {
	sess *odm.Session
	typ  *odm.Type
	log  zerolog.Logger
}

var _ odm.Auditor = (*Recorder)(nil)

// Install registers the revision type on sess and makes the returned
// Recorder the session's auditor.
func Install(sess *odm.Session) (*Recorder, error) {
	typ, err := sess.Register(TypeName, Schema(), odm.AuditRecord())
	if err != nil {
		return nil, err
	}
	r := &Recorder{sess: sess, typ: typ, log: logger.Component("revision")}
	sess.SetAuditor(r)
	return r, nil
}

func (r *Recorder) Type() *odm.Type { return r.typ }

// Timestamp converts t to the float seconds stored in the date field.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func (r *Recorder) Record(ctx context.Context, doc *odm.Document, sets, unsets odm.Delta) error {
	rev, err := r.typ.New(nil,
		odm.F(FieldItem, doc),
		odm.F(FieldChanges, map[string]interface{}{"set": sets.Plain(), "unset": unsets.Plain()}),
		odm.F(FieldDate, Timestamp(r.sess.Now())),
	)
	if err != nil {
		return errors.Wrap(err, "build revision")
	}
	if err := rev.Save(ctx); err != nil {
		return err
	}
	r.log.Debug().Str("type", doc.TypeName()).Str("id", string(doc.ID())).Str("revision", string(rev.ID())).Msg("revision recorded")
	return nil
}

// ForDocument lists every revision of doc, newest first.
func (r *Recorder) ForDocument(ctx context.Context, doc *odm.Document) ([]*odm.Document, error) {
	ref, err := doc.Ref()
	if err != nil {
		return nil, err
	}
	return r.typ.Find(ctx, store.Criteria{FieldItem: ref}, store.FindOptions{
		Sort: []store.SortField{{Field: FieldDate, Desc: true}},
	})
}

// Changes unpacks the recorded change set of a revision.
func Changes(rev *odm.Document) (sets, unsets map[string]interface{}) {
	o, ok := rev.Get(FieldChanges).(*odm.Opaque)
	if !ok {
		return nil, nil
	}
	m, _ := o.Value.(map[string]interface{})
	sets, _ = m["set"].(map[string]interface{})
	unsets, _ = m["unset"].(map[string]interface{})
	return sets, unsets
}

// Date returns the timestamp of a revision.
func Date(rev *odm.Document) float64 {
	d, _ := rev.Map.Float(FieldDate)
	return d
}
