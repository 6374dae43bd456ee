package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "HerbTrace API",
        "description": "Farm-to-consumer traceability for medicinal herbs.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "in": "header",
            "name": "Authorization"
        }
    },
    "tags": [
        {
            "name": "Workflow",
            "description": "Stage transitions from harvest to certificate"
        },
        {
            "name": "SupplyChain",
            "description": "Lot, harvest, test and batch read models"
        },
        {
            "name": "Provenance",
            "description": "Public consumer lookups"
        },
        {
            "name": "Photos",
            "description": "Signed harvest photo links"
        },
        {
            "name": "Analytics",
            "description": "Dashboard totals"
        }
    ],
    "paths": {
        "/harvests": {
            "post": {
                "tags": [
                    "Workflow"
                ],
                "summary": "Record a harvest",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RecordHarvestRequest"
                        }
                    },
                    {
                        "name": "Idempotency-Key",
                        "in": "header",
                        "type": "string"
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/harvests/mine": {
            "get": {
                "tags": [
                    "SupplyChain"
                ],
                "summary": "List the caller's harvests",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer"
                    },
                    {
                        "name": "page_size",
                        "in": "query",
                        "type": "integer"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/harvests/pending": {
            "get": {
                "tags": [
                    "SupplyChain"
                ],
                "summary": "List harvests awaiting testing",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer"
                    },
                    {
                        "name": "page_size",
                        "in": "query",
                        "type": "integer"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/harvests/{id}/photo": {
            "get": {
                "tags": [
                    "Photos"
                ],
                "summary": "Issue a signed photo link",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/test-results": {
            "post": {
                "tags": [
                    "Workflow"
                ],
                "summary": "Record a lab test",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RecordTestResultRequest"
                        }
                    },
                    {
                        "name": "Idempotency-Key",
                        "in": "header",
                        "type": "string"
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Preceding stage incomplete",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "get": {
                "tags": [
                    "SupplyChain"
                ],
                "summary": "List test results",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "lot_id",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer"
                    },
                    {
                        "name": "page_size",
                        "in": "query",
                        "type": "integer"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/processing-batches": {
            "post": {
                "tags": [
                    "Workflow"
                ],
                "summary": "Create a processing batch",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateProcessingBatchRequest"
                        }
                    },
                    {
                        "name": "Idempotency-Key",
                        "in": "header",
                        "type": "string"
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Preceding stage incomplete",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/processing-batches/completed": {
            "get": {
                "tags": [
                    "SupplyChain"
                ],
                "summary": "List finished batches",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer"
                    },
                    {
                        "name": "page_size",
                        "in": "query",
                        "type": "integer"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/processing-batches/{id}/steps": {
            "post": {
                "tags": [
                    "Workflow"
                ],
                "summary": "Append a processing step",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ProcessingStepInput"
                        }
                    },
                    {
                        "name": "Idempotency-Key",
                        "in": "header",
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/processing-batches/{id}/finish": {
            "post": {
                "tags": [
                    "Workflow"
                ],
                "summary": "Finish a processing batch",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/FinishBatchRequest"
                        }
                    },
                    {
                        "name": "Idempotency-Key",
                        "in": "header",
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/processing-steps/recent": {
            "get": {
                "tags": [
                    "SupplyChain"
                ],
                "summary": "List the latest processing steps",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/lots": {
            "get": {
                "tags": [
                    "SupplyChain"
                ],
                "summary": "List lots with aggregated status",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "status",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "species",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "farmer_id",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer"
                    },
                    {
                        "name": "page_size",
                        "in": "query",
                        "type": "integer"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/lots/{id}": {
            "get": {
                "tags": [
                    "SupplyChain"
                ],
                "summary": "Get a lot",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/lots/{id}/finalize": {
            "post": {
                "tags": [
                    "Workflow"
                ],
                "summary": "Finalize a lot",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/FinalizeLotRequest"
                        }
                    },
                    {
                        "name": "Idempotency-Key",
                        "in": "header",
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Preceding stage incomplete",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/lots/{id}/certificates": {
            "post": {
                "tags": [
                    "Workflow"
                ],
                "summary": "Issue a certificate",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/IssueCertificateRequest"
                        }
                    },
                    {
                        "name": "Idempotency-Key",
                        "in": "header",
                        "type": "string"
                    }
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Preceding stage incomplete",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/workflow/pending/{stage}": {
            "get": {
                "tags": [
                    "Workflow"
                ],
                "summary": "List lots awaiting a stage",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "stage",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/analytics": {
            "get": {
                "tags": [
                    "Analytics"
                ],
                "summary": "Supply chain totals",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/provenance/{token}": {
            "get": {
                "tags": [
                    "Provenance"
                ],
                "summary": "Resolve a provenance lookup",
                "parameters": [
                    {
                        "name": "token",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/photos/{token}": {
            "get": {
                "tags": [
                    "Photos"
                ],
                "summary": "Stream a harvest photo",
                "parameters": [
                    {
                        "name": "token",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "Location": {
            "type": "object",
            "properties": {
                "latitude": {
                    "type": "number"
                },
                "longitude": {
                    "type": "number"
                },
                "address": {
                    "type": "string"
                },
                "region": {
                    "type": "string"
                },
                "country": {
                    "type": "string"
                }
            }
        },
        "RecordHarvestRequest": {
            "type": "object",
            "required": [
                "species",
                "quantity",
                "harvest_date"
            ],
            "properties": {
                "species": {
                    "type": "string"
                },
                "variety": {
                    "type": "string"
                },
                "quantity": {
                    "type": "number"
                },
                "unit": {
                    "type": "string",
                    "enum": [
                        "kg",
                        "g",
                        "lbs",
                        "tons"
                    ]
                },
                "location": {
                    "$ref": "#/definitions/Location"
                },
                "harvest_date": {
                    "type": "string",
                    "format": "date-time"
                },
                "photo_ref": {
                    "type": "string"
                },
                "notes": {
                    "type": "string"
                },
                "weather": {
                    "type": "object"
                }
            }
        },
        "RecordTestResultRequest": {
            "type": "object",
            "required": [
                "harvest_id",
                "category",
                "quality_grade"
            ],
            "properties": {
                "harvest_id": {
                    "type": "string"
                },
                "category": {
                    "type": "string",
                    "enum": [
                        "purity",
                        "potency",
                        "contamination",
                        "microbial",
                        "heavy_metals",
                        "pesticides"
                    ]
                },
                "measurements": {
                    "type": "object",
                    "additionalProperties": {
                        "type": "number"
                    }
                },
                "quality_grade": {
                    "type": "string",
                    "enum": [
                        "A",
                        "B",
                        "C",
                        "D"
                    ]
                },
                "test_date": {
                    "type": "string",
                    "format": "date-time"
                },
                "signature": {
                    "type": "object"
                },
                "notes": {
                    "type": "string"
                }
            }
        },
        "ProcessingStepInput": {
            "type": "object",
            "required": [
                "name"
            ],
            "properties": {
                "name": {
                    "type": "string"
                },
                "details": {
                    "type": "string"
                },
                "quality_check": {
                    "type": "object"
                }
            }
        },
        "CreateProcessingBatchRequest": {
            "type": "object",
            "required": [
                "harvest_ids",
                "category",
                "start_date"
            ],
            "properties": {
                "harvest_ids": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "category": {
                    "type": "string",
                    "enum": [
                        "drying",
                        "cleaning",
                        "grinding",
                        "extraction",
                        "packaging"
                    ]
                },
                "facility_id": {
                    "type": "string"
                },
                "start_date": {
                    "type": "string",
                    "format": "date-time"
                },
                "steps": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/ProcessingStepInput"
                    }
                }
            }
        },
        "FinishBatchRequest": {
            "type": "object",
            "required": [
                "status"
            ],
            "properties": {
                "status": {
                    "type": "string",
                    "enum": [
                        "completed",
                        "failed"
                    ]
                },
                "end_date": {
                    "type": "string",
                    "format": "date-time"
                },
                "output_quantity": {
                    "type": "number"
                },
                "output_unit": {
                    "type": "string"
                },
                "packaging": {
                    "type": "object"
                },
                "quality_control": {
                    "type": "object"
                }
            }
        },
        "FinalizeLotRequest": {
            "type": "object",
            "properties": {
                "final_details": {
                    "type": "string"
                },
                "certificate_info": {
                    "type": "object"
                }
            }
        },
        "IssueCertificateRequest": {
            "type": "object",
            "required": [
                "harvest_id",
                "test_result_id",
                "category"
            ],
            "properties": {
                "harvest_id": {
                    "type": "string"
                },
                "test_result_id": {
                    "type": "string"
                },
                "category": {
                    "type": "string",
                    "enum": [
                        "quality",
                        "organic",
                        "purity",
                        "safety",
                        "origin"
                    ]
                },
                "number": {
                    "type": "string"
                },
                "expires_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "signature": {
                    "type": "object"
                },
                "content": {
                    "type": "object"
                }
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {
                    "type": "integer"
                },
                "page_size": {
                    "type": "integer"
                },
                "total_count": {
                    "type": "integer"
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "pagination": {
                    "$ref": "#/definitions/Pagination"
                },
                "meta": {
                    "type": "object"
                }
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
