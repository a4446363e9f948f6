package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "YouthHub Targeting API",
        "description": "Audience targeting, feed and fanout engine",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "in": "header", "name": "Authorization"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Feed", "description": "Forward queries: items visible to a user"},
        {"name": "Content", "description": "Content items and their lifecycle"},
        {"name": "Admin", "description": "Targeting diagnostics and fanout audits"}
    ],
    "paths": {
        "/feed": {
            "get": {
                "tags": ["Feed"],
                "summary": "Feed of the authenticated user",
                "parameters": [
                    {"name": "kind", "in": "query", "type": "string", "enum": ["POST", "NEWS", "SYSTEM_MESSAGE", "EVENT", "QUESTIONNAIRE", "REWARD", "GROUP_ANNOUNCEMENT"]},
                    {"name": "cursor", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid cursor", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown user", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/users/{id}/feed": {
            "get": {
                "tags": ["Feed"],
                "summary": "Admin view of another user's feed",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "kind", "in": "query", "type": "string"},
                    {"name": "cursor", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "preview", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/items": {
            "post": {
                "tags": ["Content"],
                "summary": "Create a content item",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateContentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid predicate", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/items/{id}": {
            "get": {
                "tags": ["Content"],
                "summary": "Get a content item",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Content"],
                "summary": "Edit payload or targeting of a content item",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateContentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/items/{id}/status": {
            "post": {
                "tags": ["Content"],
                "summary": "Move a content item through its lifecycle",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "properties": {"status": {"type": "string", "enum": ["DRAFT", "SCHEDULED", "PUBLISHED", "ARCHIVED"]}}}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Transition not allowed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/explain": {
            "get": {
                "tags": ["Admin"],
                "summary": "Explain why an item is or is not visible to a user",
                "parameters": [
                    {"name": "user_id", "in": "query", "required": true, "type": "integer"},
                    {"name": "item_id", "in": "query", "required": true, "type": "integer"},
                    {"name": "preview", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/items/{id}/fanout/export": {
            "get": {
                "tags": ["Admin"],
                "summary": "Export the fanout ledger of an item",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "version", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}}
                }
            }
        }
    },
    "definitions": {
        "Predicate": {
            "type": "object",
            "properties": {
                "is_global": {"type": "boolean"},
                "target_clubs": {"type": "array", "items": {"type": "integer"}},
                "target_municipalities": {"type": "array", "items": {"type": "integer"}},
                "target_groups": {"type": "array", "items": {"type": "integer"}},
                "target_interests": {"type": "array", "items": {"type": "integer"}},
                "target_member_type": {"type": "string", "enum": ["YOUTH", "GUARDIAN", "BOTH"]},
                "target_genders": {"type": "array", "items": {"type": "string"}},
                "target_min_age": {"type": "integer"},
                "target_max_age": {"type": "integer"},
                "target_grades": {"type": "array", "items": {"type": "integer"}},
                "target_custom_fields": {"type": "object"},
                "include_admins": {"type": "boolean"},
                "status": {"type": "string"},
                "published_at": {"type": "string", "format": "date-time"},
                "visibility_start": {"type": "string", "format": "date-time"},
                "visibility_end": {"type": "string", "format": "date-time"},
                "is_pinned": {"type": "boolean"},
                "pinned_until": {"type": "string", "format": "date-time"}
            }
        },
        "CreateContentRequest": {
            "type": "object",
            "required": ["kind", "payload"],
            "properties": {
                "kind": {"type": "string"},
                "predicate": {"$ref": "#/definitions/Predicate"},
                "payload": {"type": "object"}
            }
        },
        "UpdateContentRequest": {
            "type": "object",
            "properties": {
                "predicate": {"$ref": "#/definitions/Predicate"},
                "payload": {"type": "object"},
                "force_version_bump": {"type": "boolean"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "limit": {"type": "integer"},
                "next_cursor": {"type": "string"},
                "has_more": {"type": "boolean"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "field": {"type": "string"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
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
