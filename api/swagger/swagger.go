package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "ChangeTrack API",
        "description": "Change-tracking persistence layer with a queryable audit trail",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Authentication"},
        {"name": "Items", "description": "Tracked inventory items"},
        {"name": "Users", "description": "Tracked account management"},
        {"name": "Audit", "description": "Audit trail queries and exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and obtain an access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Auth"],
                "summary": "Current authenticated user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/items": {
            "get": {
                "tags": ["Items"],
                "summary": "List inventory items",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "location", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Items"],
                "summary": "Create an inventory item",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateItemRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/items/{id}": {
            "get": {
                "tags": ["Items"],
                "summary": "Get one inventory item",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Items"],
                "summary": "Update an inventory item",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateItemRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Items"],
                "summary": "Delete an inventory item",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/users": {
            "get": {
                "tags": ["Users"],
                "summary": "List accounts",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Users"],
                "summary": "Provision an account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateUserRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/users/{id}": {
            "get": {
                "tags": ["Users"],
                "summary": "Get one account",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Users"],
                "summary": "Update an account",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateUserRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/users/{id}/deactivate": {
            "post": {
                "tags": ["Users"],
                "summary": "Deactivate an account",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit-logs": {
            "get": {
                "tags": ["Audit"],
                "summary": "List audit records",
                "parameters": [
                    {"name": "entity", "in": "query", "type": "string"},
                    {"name": "entityId", "in": "query", "type": "string"},
                    {"name": "action", "in": "query", "type": "string", "enum": ["CREATE", "UPDATE", "DELETE", "LOGIN"]},
                    {"name": "user", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit-logs/export": {
            "get": {
                "tags": ["Audit"],
                "summary": "Export audit records as CSV or PDF",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "entity", "in": "query", "type": "string"},
                    {"name": "action", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "produces": ["application/octet-stream"],
                "responses": {
                    "200": {"description": "File attachment"}
                }
            }
        },
        "/audit-logs/{entity}/{id}": {
            "get": {
                "tags": ["Audit"],
                "summary": "Change history for one entity row",
                "parameters": [
                    {"name": "entity", "in": "path", "required": true, "type": "string"},
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "CreateItemRequest": {
            "type": "object",
            "properties": {
                "sku": {"type": "string"},
                "name": {"type": "string"},
                "quantity": {"type": "integer"},
                "unitPrice": {"type": "number"},
                "location": {"type": "string"}
            },
            "required": ["sku", "name"]
        },
        "UpdateItemRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "quantity": {"type": "integer"},
                "unitPrice": {"type": "number"},
                "location": {"type": "string"},
                "active": {"type": "boolean"}
            }
        },
        "CreateUserRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "fullName": {"type": "string"},
                "role": {"type": "string", "enum": ["ADMIN", "AUDITOR", "OPERATOR"]}
            },
            "required": ["email", "password", "fullName", "role"]
        },
        "UpdateUserRequest": {
            "type": "object",
            "properties": {
                "fullName": {"type": "string"},
                "role": {"type": "string", "enum": ["ADMIN", "AUDITOR", "OPERATOR"]},
                "active": {"type": "boolean"}
            }
        },
        "AuditLogDetail": {
            "type": "object",
            "properties": {
                "field": {"type": "string"},
                "oldValue": {"type": "string"},
                "newValue": {"type": "string"}
            }
        },
        "AuditLog": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "action": {"type": "string", "enum": ["CREATE", "UPDATE", "DELETE", "LOGIN"]},
                "entity": {"type": "string"},
                "entityId": {"type": "string"},
                "userName": {"type": "string"},
                "requestId": {"type": "string"},
                "createdAt": {"type": "string"},
                "details": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/AuditLogDetail"}
                }
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
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
