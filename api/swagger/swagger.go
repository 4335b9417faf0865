// Package swagger serves the static OpenAPI document for the engine.
package swagger

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const doc = `{
    "swagger": "2.0",
    "info": {
        "title": "Timetable Engine API",
        "description": "Automated school timetable generation service",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http"],
    "tags": [
        {"name": "Generation", "description": "Timetable generation runs"},
        {"name": "System", "description": "Health and metrics"}
    ],
    "paths": {
        "/generation/runs": {
            "post": {
                "tags": ["Generation"],
                "summary": "Generate a timetable from the posted teaching loads",
                "description": "Runs the full pipeline synchronously, or queues it when async is true.",
                "responses": {
                    "200": {"description": "Generation result"},
                    "202": {"description": "Async run accepted"},
                    "400": {"description": "Invalid payload"}
                }
            }
        },
        "/generation/runs/{id}": {
            "get": {
                "tags": ["Generation"],
                "summary": "Report the status of an async generation run",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Run state"},
                    "404": {"description": "Unknown run"}
                }
            }
        },
        "/generation/runs/{id}/export": {
            "get": {
                "tags": ["Generation"],
                "summary": "Export a completed run as CSV or PDF",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "produces": ["text/csv", "application/pdf"],
                "responses": {
                    "200": {"description": "Rendered export"},
                    "409": {"description": "Run has no exportable result yet"}
                }
            }
        },
        "/generation/runs/{id}/archive": {
            "post": {
                "tags": ["Generation"],
                "summary": "Store a completed run's export behind a signed download link",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "201": {"description": "Stored export artifact"},
                    "412": {"description": "Stored exports are not configured"}
                }
            }
        },
        "/generation/exports/{token}": {
            "get": {
                "tags": ["Generation"],
                "summary": "Download a stored export with a signed token",
                "parameters": [{"name": "token", "in": "path", "required": true, "type": "string"}],
                "produces": ["text/csv", "application/pdf"],
                "responses": {
                    "200": {"description": "Export file"},
                    "400": {"description": "Invalid or expired token"}
                }
            }
        },
        "/generation/workload/validate": {
            "post": {
                "tags": ["Generation"],
                "summary": "Validate teaching loads without generating a timetable",
                "responses": {
                    "200": {"description": "Workload report"},
                    "422": {"description": "No valid teaching loads"}
                }
            }
        },
        "/generation/analyze": {
            "post": {
                "tags": ["Generation"],
                "summary": "Predict outcome quality for a session set",
                "responses": {
                    "200": {"description": "Outcome prediction"}
                }
            }
        },
        "/institutions/{institutionId}/years/{yearId}/generation": {
            "post": {
                "tags": ["Generation"],
                "summary": "Generate a timetable from stored loads of an academic year",
                "parameters": [
                    {"name": "institutionId", "in": "path", "required": true, "type": "string"},
                    {"name": "yearId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Generation result"}
                }
            }
        }
    },
    "definitions": {
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

// Handler serves the raw document.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(doc))
	}
}
