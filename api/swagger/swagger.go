package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Scorecard API",
        "description": "Classroom performance analytics: dashboards, rankings, trends and SWOT reports.",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Performance", "description": "Derived performance views over raw test results"},
        {"name": "Operations", "description": "Health, readiness and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Operations"],
                "summary": "Liveness check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "tags": ["Operations"],
                "summary": "Readiness check against postgres and redis",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A dependency is unreachable"}
                }
            }
        },
        "/metrics": {
            "get": {
                "tags": ["Operations"],
                "summary": "Prometheus metrics",
                "produces": ["text/plain"],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/performance/dashboard": {
            "get": {
                "tags": ["Performance"],
                "summary": "Classroom performance dashboard",
                "parameters": [
                    {"name": "classroom_id", "in": "query", "required": true, "type": "string"},
                    {"name": "educator_id", "in": "query", "type": "string"},
                    {"name": "viewer_id", "in": "query", "type": "string"},
                    {"name": "test", "in": "query", "type": "integer", "description": "0 selects Overall; omitted selects the latest test"},
                    {"name": "subject", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "metric", "in": "query", "type": "string", "enum": ["average", "total"]},
                    {"name": "zero_absent", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid parameters", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Superseded by a newer request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Data source failure", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/performance/rankings": {
            "get": {
                "tags": ["Performance"],
                "summary": "Classroom leaderboard",
                "parameters": [
                    {"name": "classroom_id", "in": "query", "required": true, "type": "string"},
                    {"name": "educator_id", "in": "query", "type": "string"},
                    {"name": "viewer_id", "in": "query", "type": "string"},
                    {"name": "test", "in": "query", "type": "integer", "description": "0 selects Overall; omitted selects the latest test"},
                    {"name": "subject", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "metric", "in": "query", "type": "string", "enum": ["average", "total"]},
                    {"name": "zero_absent", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid parameters", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Superseded by a newer request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Data source failure", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/performance/rankings/export": {
            "get": {
                "tags": ["Performance"],
                "summary": "Download the leaderboard as CSV",
                "produces": ["text/csv"],
                "parameters": [
                    {"name": "classroom_id", "in": "query", "required": true, "type": "string"},
                    {"name": "educator_id", "in": "query", "type": "string"},
                    {"name": "viewer_id", "in": "query", "type": "string"},
                    {"name": "test", "in": "query", "type": "integer", "description": "0 selects Overall; omitted selects the latest test"},
                    {"name": "subject", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "metric", "in": "query", "type": "string", "enum": ["average", "total"]},
                    {"name": "zero_absent", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "CSV attachment", "schema": {"type": "file"}}
                }
            }
        },
        "/performance/students/{student_id}/trend": {
            "get": {
                "tags": ["Performance"],
                "summary": "Improvement of one student across their tests",
                "parameters": [
                    {"name": "student_id", "in": "path", "required": true, "type": "string"},
                    {"name": "classroom_id", "in": "query", "required": true, "type": "string"},
                    {"name": "subject", "in": "query", "type": "string"},
                    {"name": "zero_absent", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid parameters", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Superseded by a newer request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Data source failure", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/performance/swot": {
            "get": {
                "tags": ["Performance"],
                "summary": "Categorised SWOT report",
                "parameters": [
                    {"name": "classroom_id", "in": "query", "required": true, "type": "string"},
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "audience", "in": "query", "type": "string", "enum": ["institution", "educator", "student"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid parameters", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Superseded by a newer request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Data source failure", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/performance/refresh": {
            "post": {
                "tags": ["Performance"],
                "summary": "Drop cached snapshots of a classroom",
                "parameters": [
                    {"name": "classroom_id", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/performance/system": {
            "get": {
                "tags": ["Performance"],
                "summary": "Pipeline and cache instrumentation",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
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

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
