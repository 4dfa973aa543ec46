// Package dashboard holds the OpenAPI document for the dashboard's JSON
// endpoints, served under /swagger/.
package dashboard

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/dashboard/api/readings": {
            "get": {
                "description": "Fetches readings from the telemetry provider, records them, and returns both chart series with their KPI values.\nWith both start and end the provider is queried for whole days in that range; otherwise the most recent readings are returned (live mode).\nRequires an authenticated session cookie (password and MFA). Unauthenticated requests are redirected to /login.",
                "produces": ["application/json"],
                "tags": ["Dashboard"],
                "summary": "Chart data for the dashboard",
                "parameters": [
                    {
                        "type": "string",
                        "example": "2024-03-01",
                        "description": "First day, YYYY-MM-DD",
                        "name": "start",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "example": "2024-03-02",
                        "description": "Last day, YYYY-MM-DD",
                        "name": "end",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "chart series and KPIs",
                        "schema": {"$ref": "#/definitions/http.ReadingsResponse"}
                    },
                    "302": {
                        "description": "redirect to /login",
                        "schema": {"type": "string"}
                    },
                    "400": {
                        "description": "malformed date or start after end",
                        "schema": {"type": "object", "additionalProperties": {"type": "string"}}
                    }
                }
            }
        },
        "/dashboard/api/readings/{entry_id}": {
            "get": {
                "description": "Returns the reading as last persisted, including the raw provider payload. Useful to check what a chart point was built from.\nRequires an authenticated session cookie (password and MFA).",
                "produces": ["application/json"],
                "tags": ["Dashboard"],
                "summary": "Stored reading by entry id",
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Provider entry id",
                        "name": "entry_id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "the stored reading",
                        "schema": {"$ref": "#/definitions/http.StoredReading"}
                    },
                    "400": {
                        "description": "entry id is not a positive integer",
                        "schema": {"type": "object", "additionalProperties": {"type": "string"}}
                    },
                    "404": {
                        "description": "no reading with that entry id",
                        "schema": {"type": "object", "additionalProperties": {"type": "string"}}
                    }
                }
            }
        },
        "/livez": {
            "get": {
                "description": "Always 200 while the process is serving.",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {
                        "description": "status, uptime, version",
                        "schema": {"$ref": "#/definitions/http.HealthResponse"}
                    }
                }
            }
        },
        "/readyz": {
            "get": {
                "description": "Pings the database and reports the size of the sensor history.",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Readiness probe",
                "responses": {
                    "200": {
                        "description": "status, uptime, version, checks",
                        "schema": {"$ref": "#/definitions/http.HealthResponse"}
                    },
                    "503": {
                        "description": "database unreachable",
                        "schema": {"$ref": "#/definitions/http.HealthResponse"}
                    }
                }
            }
        }
    },
    "definitions": {
        "http.ChartPoint": {
            "type": "object",
            "properties": {
                "t": {"type": "string", "example": "2024-03-01T12:00:00-03:00"},
                "y": {"type": "number", "x-nullable": true}
            }
        },
        "http.ChartSeries": {
            "type": "object",
            "properties": {
                "kpi": {"type": "string", "example": "42.5"},
                "label": {"type": "string", "example": "Organic level"},
                "points": {"type": "array", "items": {"$ref": "#/definitions/http.ChartPoint"}}
            }
        },
        "http.ReadingsResponse": {
            "type": "object",
            "properties": {
                "end": {"type": "string", "example": "2024-03-02"},
                "generated_at": {"type": "string", "example": "2024-03-01T12:00:05-03:00"},
                "mode": {"type": "string", "enum": ["live", "range"], "example": "live"},
                "organic": {"$ref": "#/definitions/http.ChartSeries"},
                "recyclable": {"$ref": "#/definitions/http.ChartSeries"},
                "start": {"type": "string", "example": "2024-03-01"},
                "status": {"type": "string", "enum": ["ok", "empty"], "example": "ok"},
                "timezone": {"type": "string", "example": "America/Sao_Paulo"},
                "title": {"type": "string", "example": "Waiting for data..."}
            }
        },
        "http.StoredReading": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string", "example": "2024-03-01T12:00:00-03:00"},
                "entry_id": {"type": "integer", "example": 1042},
                "organic": {"type": "number", "example": 42.5, "x-nullable": true},
                "payload": {"type": "object"},
                "recyclable": {"type": "number", "example": 61, "x-nullable": true}
            }
        },
        "http.HealthChecks": {
            "type": "object",
            "properties": {
                "database": {"type": "string", "example": "ok"},
                "readings": {"type": "integer", "example": 1280}
            }
        },
        "http.HealthResponse": {
            "type": "object",
            "properties": {
                "checks": {"$ref": "#/definitions/http.HealthChecks"},
                "status": {"type": "string", "example": "ok"},
                "uptime": {"type": "string", "example": "1h2m3s"},
                "version": {"type": "string", "example": "0.1.0"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "EcoBalance Dashboard API",
	Description:      "JSON endpoints behind the EcoBalance waste monitoring dashboard.\nThe dashboard endpoints require a browser session that has passed both the password and the TOTP check.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
