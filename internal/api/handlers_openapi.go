package api

import (
	_ "embed"
	"net/http"
)

const (
	openAPIPath      = "/api/v1/openapi.yaml"
	docsCacheControl = "public, max-age=3600"
	yamlContentType  = "application/yaml"
	htmlContentType  = "text/html; charset=utf-8"
)

//go:embed openapi/openapi.yaml
var openAPISpec []byte

// ServeOpenAPISpec serves the relay's OpenAPI document.
// GET /api/v1/openapi.yaml
func (h *Handlers) ServeOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	writeDocument(w, yamlContentType, openAPISpec)
}

// relayDocsHTML renders the OpenAPI document. Try-it-out is limited to the
// read-only endpoints so the page never submits a form or starts a cooldown.
const relayDocsHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>formrelay API - Documentation</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <header style="padding: 1rem 2rem; font-family: sans-serif;">
    <h1>formrelay</h1>
    <p>Form submission relay: reputation screening, per-source cooldown and paced webhook delivery.</p>
  </header>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: '` + openAPIPath + `',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      supportedSubmitMethods: ['get'],
      deepLinking: true,
      displayRequestDuration: true
    });
  </script>
</body>
</html>`

// ServeSwaggerUI serves the relay's interactive API docs page.
// GET /api/v1/docs
func (h *Handlers) ServeSwaggerUI(w http.ResponseWriter, r *http.Request) {
	writeDocument(w, htmlContentType, []byte(relayDocsHTML))
}

func writeDocument(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", docsCacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
