package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "College API",
        "description": "Course catalog, enrollment and campus services backend",
        "version": "1.0.0"
    },
    "basePath": "/api",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Auth", "description": "Accounts, sessions and tokens"},
        {"name": "Courses", "description": "Course catalog and enrollment"},
        {"name": "Students", "description": "Student directory and records"},
        {"name": "Faculty", "description": "Faculty directory"},
        {"name": "Events", "description": "Campus events and registration"},
        {"name": "Contact", "description": "Public contact form and staff inbox"},
        {"name": "Uploads", "description": "File uploads and signed downloads"},
        {"name": "Admin", "description": "Operational endpoints"}
    ],
    "paths": {
        "/auth/register": {
            "post": {
                "tags": ["Auth"],
                "summary": "Register a new account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Email already registered"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and receive tokens",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Rotate a refresh token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Token invalid or expired"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Auth"],
                "summary": "Current account",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Auth"],
                "summary": "Update own account",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses": {
            "get": {
                "tags": ["Courses"],
                "summary": "List the course catalog",
                "parameters": [
                    {"name": "department", "in": "query", "type": "string"},
                    {"name": "semester", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Courses"],
                "summary": "Create a course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateCourseRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Course code already exists"},
                    "403": {"description": "Caller is not faculty"}
                }
            }
        },
        "/courses/{id}": {
            "get": {
                "tags": ["Courses"],
                "summary": "Course detail",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Courses"],
                "summary": "Update a course",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the owner"}
                }
            },
            "delete": {
                "tags": ["Courses"],
                "summary": "Delete a course",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Deleted"},
                    "400": {"description": "Course has enrolled students"}
                }
            }
        },
        "/courses/{id}/enroll": {
            "post": {
                "tags": ["Courses"],
                "summary": "Enroll in a course",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Enrolled, returns the updated course", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Already enrolled, course full, course closed or semester requirement not met"},
                    "404": {"description": "Course not found"}
                }
            }
        },
        "/courses/{id}/unenroll": {
            "post": {
                "tags": ["Courses"],
                "summary": "Leave a course",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Unenrolled, returns the updated course", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Not enrolled"}
                }
            }
        },
        "/courses/{id}/status": {
            "patch": {
                "tags": ["Courses"],
                "summary": "Toggle a course between active and inactive",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the owner"}
                }
            }
        },
        "/courses/{id}/students": {
            "get": {
                "tags": ["Courses"],
                "summary": "List enrolled students",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{id}/students/export": {
            "get": {
                "tags": ["Courses"],
                "summary": "Export the roster as CSV or PDF",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        },
        "/events": {
            "get": {
                "tags": ["Events"],
                "summary": "List events",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Events"],
                "summary": "Create an event",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/events/{id}/register": {
            "post": {
                "tags": ["Events"],
                "summary": "Register for an event",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Registered"},
                    "400": {"description": "Already registered or event full"}
                }
            }
        },
        "/contact": {
            "post": {
                "tags": ["Contact"],
                "summary": "Submit a contact message",
                "responses": {
                    "201": {"description": "Created"}
                }
            },
            "get": {
                "tags": ["Contact"],
                "summary": "Staff inbox",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/uploads": {
            "post": {
                "tags": ["Uploads"],
                "summary": "Upload a course material file",
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/uploads/{token}": {
            "get": {
                "tags": ["Uploads"],
                "summary": "Download a file by signed token",
                "parameters": [{"name": "token", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "File download"},
                    "403": {"description": "Link invalid or expired"}
                }
            }
        }
    },
    "definitions": {
        "RegisterRequest": {
            "type": "object",
            "required": ["name", "email", "password", "role"],
            "properties": {
                "name": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string"},
                "role": {"type": "string", "enum": ["student", "faculty", "admin"]},
                "profile": {"type": "object"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "CreateCourseRequest": {
            "type": "object",
            "required": ["code", "title", "credits", "department", "semester"],
            "properties": {
                "code": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "credits": {"type": "integer"},
                "department": {"type": "string"},
                "semester": {"type": "string"},
                "capacity": {"type": "integer"},
                "schedule": {"type": "object"}
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
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
