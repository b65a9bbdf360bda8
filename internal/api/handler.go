package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/shmookey/coconut/pkg/archive"
	"github.com/shmookey/coconut/pkg/errdefs"
	"github.com/shmookey/coconut/pkg/logger"
	"github.com/shmookey/coconut/pkg/odm"
	"github.com/shmookey/coconut/pkg/revision"
	"github.com/shmookey/coconut/pkg/schema"
	"github.com/shmookey/coconut/pkg/store"
)

const maxListLimit = 500

type handler struct {
	sess      *odm.Session
	revisions *revision.Recorder
	archiver  *archive.Archiver
}

// RegisterDocumentRoutes mounts the document API on r. revisions and
// archiver may be nil; their endpoints then answer 501.
func RegisterDocumentRoutes(r gin.IRouter, sess *odm.Session, revisions *revision.Recorder, archiver *archive.Archiver) {
	h := &handler{sess: sess, revisions: revisions, archiver: archiver}
	r.GET("/types", h.listTypes)
	r.GET("/:type", h.list)
	r.POST("/:type", h.create)
	r.GET("/:type/:id", h.get)
	r.PATCH("/:type/:id", h.patch)
	r.DELETE("/:type/:id", h.remove)
	r.GET("/:type/:id/history", h.history)
	r.POST("/:type/:id/archive", h.archive)
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errdefs.IsNotFound(err):
		status = http.StatusNotFound
	case errdefs.IsUniqueIndex(err):
		status = http.StatusConflict
	case errdefs.IsValidation(err), errdefs.IsSchema(err),
		errors.Is(err, errdefs.ErrUntypedReference),
		errors.Is(err, errdefs.ErrUnsavedTarget),
		errors.Is(err, errdefs.ErrMixedConstruction):
		status = http.StatusBadRequest
	case errors.Is(err, errdefs.ErrDetached):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (h *handler) docType(c *gin.Context, writable bool) (*odm.Type, bool) {
	name := c.Param("type")
	t, ok := h.sess.Type(name)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown document type " + name})
		return nil, false
	}
	if writable && t.IsAuditRecord() {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{"error": name + " records are read-only"})
		return nil, false
	}
	return t, true
}

func render(d *odm.Document) (interface{}, error) {
	rec, err := d.Record()
	if err != nil {
		return nil, err
	}
	return odm.JSONValue(rec), nil
}

func (h *handler) listTypes(c *gin.Context) {
	types := h.sess.Types()
	out := make([]gin.H, 0, len(types))
	for _, t := range types {
		out = append(out, gin.H{
			"name":       t.Name(),
			"collection": t.Collection(),
			"fields":     t.Schema().FieldNames(),
			"indexes":    schema.IndexedFields(t.Schema()),
			"readOnly":   t.IsAuditRecord(),
		})
	}
	c.JSON(http.StatusOK, out)
}

// parseSort reads "field" or "-field" items separated by commas.
func parseSort(q string) []store.SortField {
	var out []store.SortField
	for _, part := range strings.Split(q, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "-") {
			out = append(out, store.SortField{Field: part[1:], Desc: true})
			continue
		}
		out = append(out, store.SortField{Field: part})
	}
	return out
}

// queryLimit reads the limit query parameter, defaulting to 100 and capped
// at maxListLimit. It aborts with 400 on a malformed value.
func queryLimit(c *gin.Context) (int64, bool) {
	limit := int64(100)
	if q := c.Query("limit"); q != "" {
		n, err := strconv.ParseInt(q, 10, 64)
		if err != nil || n <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return 0, false
		}
		limit = n
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, true
}

func (h *handler) list(c *gin.Context) {
	t, ok := h.docType(c, false)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	docs, err := t.Find(c.Request.Context(), nil, store.FindOptions{Limit: limit, Sort: parseSort(c.Query("sort"))})
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]interface{}, 0, len(docs))
	for _, d := range docs {
		v, err := render(d)
		if err != nil {
			writeError(c, err)
			return
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) create(c *gin.Context) {
	t, ok := h.docType(c, true)
	if !ok {
		return
	}
	raw, err := decodeBody(c.Request.Body)
	if err != nil {
		writeError(c, err)
		return
	}
	body, err := bodyFor(raw, t.Schema())
	if err != nil {
		writeError(c, err)
		return
	}
	d, err := t.New(body)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := d.Save(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	v, err := render(d)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h *handler) load(c *gin.Context, writable bool) (*odm.Document, bool) {
	t, ok := h.docType(c, writable)
	if !ok {
		return nil, false
	}
	d, err := t.Get(c.Request.Context(), store.ID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return d, true
}

func (h *handler) get(c *gin.Context) {
	d, ok := h.load(c, false)
	if !ok {
		return
	}
	v, err := render(d)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// patch applies the body as a partial update and answers with the change
// set that was written.
func (h *handler) patch(c *gin.Context) {
	d, ok := h.load(c, true)
	if !ok {
		return
	}
	raw, err := decodeBody(c.Request.Body)
	if err != nil {
		writeError(c, err)
		return
	}
	body, err := bodyFor(raw, d.Type().Schema())
	if err != nil {
		writeError(c, err)
		return
	}
	if err := d.Update(body); err != nil {
		writeError(c, err)
		return
	}
	sets, unsets, err := d.Changes()
	if err != nil {
		writeError(c, err)
		return
	}
	if err := d.Save(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":    string(d.ID()),
		"set":   odm.JSONValue(sets.Plain()),
		"unset": unsets.Plain(),
	})
}

func (h *handler) remove(c *gin.Context) {
	d, ok := h.load(c, true)
	if !ok {
		return
	}
	if err := d.Remove(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) history(c *gin.Context) {
	if h.revisions == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "revisions are not recorded"})
		return
	}
	d, ok := h.load(c, false)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	field := c.Query("field")
	cur, err := h.revisions.History(d, field)
	if err != nil {
		writeError(c, err)
		return
	}
	ctx := c.Request.Context()
	entries := []gin.H{}
	for int64(len(entries)) < limit && cur.Next(ctx) {
		rev := cur.Revision()
		entries = append(entries, gin.H{
			"revision": string(rev.ID()),
			"date":     revision.Date(rev),
			"value":    odm.JSONValue(cur.Value()),
		})
	}
	if err := cur.Err(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": string(d.ID()), "field": field, "history": entries})
}

func (h *handler) archive(c *gin.Context) {
	if h.archiver == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "archive storage is not configured"})
		return
	}
	d, ok := h.load(c, false)
	if !ok {
		return
	}
	m, err := h.archiver.Archive(c.Request.Context(), d)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}
