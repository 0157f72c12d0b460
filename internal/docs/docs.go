// Package docs registers the OpenAPI document served by the Swagger UI.
// Regenerate with: swag init -g cmd/server/main.go -o internal/docs
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
        "/chat/message": {
            "post": {
                "description": "Reserves one message of the tenant's quota, answers from the knowledge base and returns the whole reply.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Chat"],
                "summary": "Answer a visitor message",
                "operationId": "postChatMessage",
                "parameters": [
                    {"type": "string", "description": "Key for safe retries", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Visitor message", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ChatMessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ChatMessageResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Message quota exhausted", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Chatbot not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Answer could not be generated", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/chat/stream": {
            "post": {
                "description": "Server-sent events: chunk events followed by exactly one done or error event.",
                "consumes": ["application/json"],
                "produces": ["text/event-stream"],
                "tags": ["Chat"],
                "summary": "Stream the answer to a visitor message",
                "operationId": "streamChatMessage",
                "parameters": [
                    {"description": "Visitor message", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ChatMessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "Event stream", "schema": {"$ref": "#/definitions/handlers.StreamEvent"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Message quota exhausted", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Chatbot not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/chat/feedback": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Chat"],
                "summary": "Rate an answer",
                "operationId": "leaveFeedback",
                "parameters": [
                    {"description": "Rating", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.FeedbackRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Not the visitor's answer", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Message not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Already rated", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/chatbots": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Chatbots"],
                "summary": "List the tenant's chatbots",
                "operationId": "listChatbots",
                "parameters": [
                    {"type": "string", "description": "Tenant", "name": "X-Tenant-ID", "in": "header", "required": true},
                    {"type": "integer", "description": "Page (1-based)", "name": "page", "in": "query"},
                    {"type": "integer", "description": "Page size (max 100)", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListChatbotsResponse"}},
                    "304": {"description": "Not Modified"}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Chatbots"],
                "summary": "Create a chatbot",
                "operationId": "createChatbot",
                "parameters": [
                    {"type": "string", "description": "Tenant", "name": "X-Tenant-ID", "in": "header", "required": true},
                    {"description": "Chatbot", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CreateChatbotRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Chatbot quota exhausted", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/chatbots/{id}": {
            "delete": {
                "tags": ["Chatbots"],
                "summary": "Delete a chatbot",
                "operationId": "deleteChatbot",
                "parameters": [
                    {"type": "string", "description": "Tenant", "name": "X-Tenant-ID", "in": "header", "required": true},
                    {"type": "string", "description": "Chatbot ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Chatbot not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/usage": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Usage"],
                "summary": "Current plan and meters",
                "operationId": "getUsage",
                "parameters": [
                    {"type": "string", "description": "Tenant", "name": "X-Tenant-ID", "in": "header", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.UsageResponse"}},
                    "404": {"description": "No subscription", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/knowledge/entries": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Knowledge"],
                "summary": "Create or update an exact-match entry",
                "operationId": "upsertEntry",
                "parameters": [
                    {"type": "string", "description": "Tenant", "name": "X-Tenant-ID", "in": "header", "required": true},
                    {"description": "Entry", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.EntryRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/knowledge/content": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Knowledge"],
                "summary": "Replace the chunks of one source page",
                "operationId": "ingestContent",
                "parameters": [
                    {"type": "string", "description": "Tenant", "name": "X-Tenant-ID", "in": "header", "required": true},
                    {"description": "Markdown page", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ContentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ContentResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/billing/webhooks/{provider}": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Billing"],
                "summary": "Receive a billing event",
                "operationId": "billingWebhook",
                "parameters": [
                    {"type": "string", "description": "stripe or generic", "name": "provider", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.WebhookResponse"}},
                    "400": {"description": "Bad signature or payload", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Plan change blocked", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "bad_request"},
                "message": {"type": "string"},
                "request_id": {"type": "string"}
            }
        },
        "handlers.ChatMessageRequest": {
            "type": "object",
            "required": ["chatbotId", "message", "sessionId"],
            "properties": {
                "chatbotId": {"type": "string"},
                "sessionId": {"type": "string", "example": "visitor-42"},
                "message": {"type": "string", "example": "What is your returns policy?"}
            }
        },
        "handlers.ChatMessageResponse": {
            "type": "object",
            "properties": {
                "reply": {"type": "string"},
                "sources": {"type": "array", "items": {"type": "string"}},
                "conversationId": {"type": "string"},
                "messageId": {"type": "string"}
            }
        },
        "handlers.StreamEvent": {
            "type": "object",
            "properties": {
                "type": {"type": "string", "example": "chunk"},
                "content": {"type": "string"},
                "conversationId": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "handlers.FeedbackRequest": {
            "type": "object",
            "required": ["chatbotId", "messageId", "sessionId", "value"],
            "properties": {
                "chatbotId": {"type": "string"},
                "sessionId": {"type": "string"},
                "messageId": {"type": "string"},
                "value": {"type": "integer", "enum": [-1, 1]}
            }
        },
        "handlers.CreateChatbotRequest": {
            "type": "object",
            "required": ["name"],
            "properties": {
                "name": {"type": "string", "example": "Acme support"},
                "provider": {"type": "string", "example": "openai"},
                "model": {"type": "string", "example": "gpt-4o-mini"},
                "instructions": {"type": "string"},
                "temperature": {"type": "number", "example": 0.3}
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"},
                "has_next": {"type": "boolean"}
            }
        },
        "handlers.ListChatbotsResponse": {
            "type": "object",
            "properties": {
                "chatbots": {"type": "array", "items": {"type": "object"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.Meter": {
            "type": "object",
            "properties": {
                "used": {"type": "integer", "example": 42},
                "limit": {"type": "integer", "example": 100}
            }
        },
        "handlers.UsageResponse": {
            "type": "object",
            "properties": {
                "plan": {"type": "string", "example": "free"},
                "messages": {"$ref": "#/definitions/handlers.Meter"},
                "chatbots": {"$ref": "#/definitions/handlers.Meter"},
                "periodStart": {"type": "string", "format": "date-time"},
                "periodEnd": {"type": "string", "format": "date-time"}
            }
        },
        "handlers.EntryRequest": {
            "type": "object",
            "required": ["answer", "question"],
            "properties": {
                "question": {"type": "string", "example": "Returns?"},
                "answer": {"type": "string", "example": "30 days"},
                "category": {"type": "string"},
                "priority": {"type": "integer"},
                "enabled": {"type": "boolean"}
            }
        },
        "handlers.ContentRequest": {
            "type": "object",
            "required": ["markdown", "sourceUrl"],
            "properties": {
                "sourceUrl": {"type": "string"},
                "markdown": {"type": "string"}
            }
        },
        "handlers.ContentResponse": {
            "type": "object",
            "properties": {
                "sourceUrl": {"type": "string"},
                "chunks": {"type": "integer"}
            }
        },
        "handlers.WebhookResponse": {
            "type": "object",
            "properties": {
                "received": {"type": "boolean"},
                "duplicate": {"type": "boolean"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Support Chat API",
	Description:      "Knowledge-grounded support chatbots with metered plans.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
