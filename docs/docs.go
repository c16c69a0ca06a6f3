// Package docs registers the console's OpenAPI description with swag. Regenerate with `swag init -g cmd/main.go`.
package docs

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
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/auth/sign-in": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Sign in",
                "parameters": [
                    {"description": "Operator credentials", "name": "body", "in": "body", "required": true,
                     "schema": {"$ref": "#/definitions/handlers.authCredentials"}}
                ],
                "responses": {"200": {"description": "token"}, "400": {"description": "Bad Request"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/api/v1/devices": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["devices"],
                "summary": "List devices",
                "responses": {"200": {"description": "active, count, devices"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/api/v1/devices/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["devices"],
                "summary": "Get device",
                "parameters": [{"type": "string", "description": "Device id", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/devices/{id}/control": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["devices"],
                "summary": "Control a register",
                "parameters": [
                    {"type": "string", "description": "Device id", "name": "id", "in": "path", "required": true},
                    {"description": "Control payload", "name": "body", "in": "body", "required": true,
                     "schema": {"$ref": "#/definitions/handlers.ControlRequest"}}
                ],
                "responses": {"202": {"description": "Accepted"}, "400": {"description": "Bad Request"}, "401": {"description": "Unauthorized"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/devices/{id}/activate": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["devices"],
                "summary": "Activate device",
                "parameters": [{"type": "string", "description": "Device id", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/refresh": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["devices"],
                "summary": "Request fresh data",
                "parameters": [{"type": "string", "description": "Device id", "name": "device", "in": "query"}],
                "responses": {"202": {"description": "Accepted"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/api/v1/system": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Backend status",
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/api/v1/channels": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["channels"],
                "summary": "List channels",
                "responses": {"200": {"description": "channels"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/api/v1/channels/{kind}/reconnect": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["channels"],
                "summary": "Reconnect channel",
                "parameters": [{"enum": ["system", "device"], "type": "string", "description": "Channel", "name": "kind", "in": "path", "required": true}],
                "responses": {"202": {"description": "Accepted"}, "401": {"description": "Unauthorized"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/v1/logs": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["logs"],
                "summary": "List logs",
                "parameters": [
                    {"type": "string", "example": "2025-08-01", "description": "Start of range", "name": "from", "in": "query"},
                    {"type": "string", "example": "2025-08-31", "description": "End of range; date-only is end of day", "name": "to", "in": "query"},
                    {"enum": ["CONNECTED", "DISCONNECTED", "RECONNECTING", "GIVE_UP", "CIRCUIT_OPEN", "CONTROL", "CONTROL_MISMATCH"],
                     "type": "string", "description": "Event type", "name": "type", "in": "query"},
                    {"enum": ["system", "device"], "type": "string", "description": "Channel", "name": "channel", "in": "query"},
                    {"type": "string", "description": "Device id", "name": "device", "in": "query"},
                    {"type": "integer", "description": "Newest N events", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "count, events"}, "400": {"description": "Bad Request"}, "401": {"description": "Unauthorized"}, "500": {"description": "Internal Server Error"}}
            }
        },
        "/ws/view": {
            "get": {
                "tags": ["devices"],
                "summary": "Live view stream",
                "parameters": [
                    {"type": "string", "description": "Check interval, e.g. 500ms (max 10s)", "name": "interval", "in": "query"},
                    {"type": "string", "description": "Bearer token when headers cannot be set", "name": "access_token", "in": "query"}
                ],
                "responses": {}
            }
        }
    },
    "definitions": {
        "handlers.authCredentials": {
            "type": "object",
            "required": ["password", "username"],
            "properties": {"password": {"type": "string"}, "username": {"type": "string"}}
        },
        "handlers.ControlRequest": {
            "type": "object",
            "required": ["address", "register_type"],
            "properties": {
                "address": {"description": "Register address", "type": "integer", "example": 50},
                "register_type": {"description": "Register type: CO or HR", "type": "string", "example": "HR"},
                "value": {"description": "Raw value; coils also accept true/false", "type": "number", "example": 240}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Modbus Console API",
	Description:      "Operator API for the Modbus simulator console: live device view, register control, channel health and the audit log.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
