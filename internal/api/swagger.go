package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shmookey/coconut/pkg/odm"
	"github.com/shmookey/coconut/pkg/schema"
)

// RegisterSwagger registers OpenAPI endpoints describing the document API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> OpenAPI JSON built from the registered types
func RegisterSwagger(r *gin.Engine, sess *odm.Session) {
	r.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	r.GET("/swagger/doc.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, OpenAPI(sess))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>coconut API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

var referenceSchema = gin.H{
	"oneOf": []gin.H{
		{"type": "string"},
		{"type": "object", "properties": gin.H{
			"collection": gin.H{"type": "string"},
			"id":         gin.H{"type": "string"},
		}},
	},
}

// jsonSchema renders s in the OpenAPI 3.0 schema dialect. Every value may
// be null.
func jsonSchema(s *schema.Schema) gin.H {
	var out gin.H
	switch schema.GetType(s) {
	case schema.KindAny:
		out = gin.H{}
	case schema.KindString:
		out = gin.H{"type": "string"}
	case schema.KindInt:
		out = gin.H{"type": "integer", "format": "int64"}
	case schema.KindFloat:
		out = gin.H{"type": "number"}
	case schema.KindBool:
		out = gin.H{"type": "boolean"}
	case schema.KindReference:
		out = gin.H{"oneOf": referenceSchema["oneOf"]}
		if s.Target != "" {
			out["description"] = "reference to " + s.Target
		}
	case schema.KindMap:
		out = gin.H{"type": "object"}
		if s.Fields == nil || !s.Traversed() {
			out["additionalProperties"] = true
			break
		}
		props := gin.H{}
		for _, name := range s.FieldNames() {
			props[name] = jsonSchema(s.Fields[name])
		}
		out["properties"] = props
		out["additionalProperties"] = false
	case schema.KindSequence:
		out = gin.H{"type": "array"}
		switch {
		case s.Items == nil || !s.Traversed():
			out["items"] = gin.H{}
		case s.Range == schema.All && len(s.Items) == 1:
			out["items"] = jsonSchema(s.Items[0])
		default:
			alts := make([]gin.H, 0, len(s.Items))
			for _, it := range s.Items {
				alts = append(alts, jsonSchema(it))
			}
			out["items"] = gin.H{"oneOf": alts}
			if s.Range == schema.Exact {
				out["maxItems"] = len(s.Items)
			}
		}
	}
	if s != nil && s.HasDefault {
		out["default"] = odm.JSONValue(s.Default)
	}
	if len(out) > 0 {
		out["nullable"] = true
	}
	return out
}

// OpenAPI describes the health endpoints and the document routes of every
// registered type.
func OpenAPI(sess *odm.Session) gin.H {
	ok := func(desc string) gin.H { return gin.H{"description": desc} }
	ref := func(name string) gin.H { return gin.H{"$ref": "#/components/schemas/" + name} }
	body := func(name string) gin.H {
		return gin.H{"content": gin.H{"application/json": gin.H{"schema": ref(name)}}}
	}
	idParam := []gin.H{{"name": "id", "in": "path", "required": true, "schema": gin.H{"type": "string"}}}

	paths := gin.H{
		"/health":    gin.H{"get": gin.H{"summary": "Liveness check", "responses": gin.H{"200": ok("healthy")}}},
		"/ready":     gin.H{"get": gin.H{"summary": "Readiness check", "responses": gin.H{"200": ok("ready")}}},
		"/metrics":   gin.H{"get": gin.H{"summary": "Prometheus metrics", "responses": gin.H{"200": ok("metrics")}}},
		"/api/types": gin.H{"get": gin.H{"summary": "List document types", "responses": gin.H{"200": ok("types")}}},
	}
	schemas := gin.H{}
	for _, t := range sess.Types() {
		name := t.Name()
		schemas[name] = jsonSchema(t.Schema())
		coll := gin.H{
			"get": gin.H{"summary": "List " + name, "responses": gin.H{"200": ok("documents")}},
		}
		item := gin.H{
			"parameters": idParam,
			"get":        gin.H{"summary": "Get " + name, "responses": gin.H{"200": ok("document"), "404": ok("not found")}},
		}
		if !t.IsAuditRecord() {
			coll["post"] = gin.H{"summary": "Create " + name, "requestBody": body(name),
				"responses": gin.H{"201": ok("created"), "400": ok("invalid"), "409": ok("unique index violation")}}
			item["patch"] = gin.H{"summary": "Update " + name, "requestBody": body(name),
				"responses": gin.H{"200": ok("written change set"), "400": ok("invalid"), "404": ok("not found"), "409": ok("unique index violation")}}
			item["delete"] = gin.H{"summary": "Remove " + name, "responses": gin.H{"204": ok("removed"), "404": ok("not found")}}
		}
		paths["/api/"+name] = coll
		paths["/api/"+name+"/{id}"] = item
		paths["/api/"+name+"/{id}/history"] = gin.H{
			"parameters": append([]gin.H{
				{"name": "field", "in": "query", "schema": gin.H{"type": "string"}},
				{"name": "limit", "in": "query", "schema": gin.H{"type": "integer", "default": 100, "maximum": maxListLimit}},
			}, idParam...),
			"get":        gin.H{"summary": "Recorded values of " + name, "responses": gin.H{"200": ok("history")}},
		}
	}
	return gin.H{
		"openapi":    "3.0.0",
		"info":       gin.H{"title": "coconut", "version": "v0.1.0"},
		"paths":      paths,
		"components": gin.H{"schemas": schemas},
	}
}
