package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the session service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>uikit-session Swagger</title>
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

// Minimal OpenAPI document describing the session endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "uikit-session", "version": "v0.1.0" },
  "paths": {
    "/api/session": {
      "get": { "summary": "Current session state", "responses": { "200": { "description": "user, isAuthenticated, isLoading, sessionDuration" } } }
    },
    "/api/session/login": {
      "post": {
        "summary": "Simulated login",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["email"],"properties":{"email":{"type":"string"},"password":{"type":"string"}}}}}},
        "responses": { "200": { "description": "logged-in user" }, "400": { "description": "email missing" }, "401": { "description": "rejected" }, "429": { "description": "rate limited" } }
      }
    },
    "/api/session/logout": {
      "post": { "summary": "Clear the session", "responses": { "200": { "description": "logged out" } } }
    },
    "/api/session/profile": {
      "patch": { "summary": "Update name and bio", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"name":{"type":"string"},"bio":{"type":"string"}}}}}}, "responses": { "200": { "description": "updated user" }, "401": { "description": "not logged in" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "restore pending" } } } }
  }
}`
