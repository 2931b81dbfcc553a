package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// GenerateSpec generates the OpenAPI 3.1 document for the gateway's HTTP
// surface: the gated data endpoints, the rate-limit status endpoint, and the
// admin management API.
func GenerateSpec(baseURL, version string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Keygate API",
			Description: "API key issuance, validation, and daily rate limiting.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	// Initialize components
	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	// Add security schemes
	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: "X-API-Key",
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}

	doc.Paths = openapi3.NewPaths()

	registerSchemas(doc)
	addGatedPaths(doc)
	addStatusPath(doc)
	addSystemPaths(doc)

	return doc
}

// registerSchemas adds the shared component schemas.
func registerSchemas(doc *openapi3.T) {
	doc.Components.Schemas["ErrorResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
							"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"context": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
						},
					},
				},
			},
		},
	}

	doc.Components.Schemas["RateLimitVerdict"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"remaining_requests": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
				"total_requests":     &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
				"reset_time":         &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
				"tier":               &openapi3.SchemaRef{Value: tierSchema()},
				"is_exceeded":        &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
			},
		},
	}

	doc.Components.Schemas["APIKey"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"id":               &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64", ReadOnly: true}},
				"name":             &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"description":      &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"tier":             &openapi3.SchemaRef{Value: tierSchema()},
				"is_active":        &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"created_by":       &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"created_at":       &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time", ReadOnly: true}},
				"expires_at":       &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time", Nullable: true}},
				"total_requests":   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64", ReadOnly: true}},
				"daily_requests":   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32", ReadOnly: true}},
				"last_daily_reset": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time", ReadOnly: true}},
				"last_used_at":     &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time", Nullable: true, ReadOnly: true}},
			},
		},
	}

	doc.Components.Schemas["APIKeyCreate"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:     &openapi3.Types{"object"},
			Required: []string{"name", "tier"},
			Properties: openapi3.Schemas{
				"name":        &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"description": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"tier":        &openapi3.SchemaRef{Value: tierSchema()},
				"expires_at":  &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time", Nullable: true}},
			},
		},
	}

	doc.Components.Schemas["Admin"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"id":            &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64", ReadOnly: true}},
				"email":         &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "email"}},
				"name":          &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"is_active":     &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"last_login_at": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time", Nullable: true, ReadOnly: true}},
				"created_at":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time", ReadOnly: true}},
			},
		},
	}
}

func tierSchema() *openapi3.Schema {
	return &openapi3.Schema{
		Type: &openapi3.Types{"string"},
		Enum: []interface{}{"free", "standard", "premium"},
	}
}

// addGatedPaths documents the quota-gated endpoints.
func addGatedPaths(doc *openapi3.T) {
	pingResp := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"status": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
			},
		},
	}

	doc.Paths.Set("/api/v1/ping", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"gateway"},
			Summary:     "Quota-gated health check",
			Description: "Consumes one request from the caller's daily quota. Callers without a key are tracked per IP.",
			OperationID: "ping",
			Security: &openapi3.SecurityRequirements{
				{},
				{"apiKey": {}},
			},
			Responses: newResponses("200", "Request allowed", pingResp),
		},
	})
}

// addStatusPath documents the rate-limit status endpoint. It sits outside the
// quota gate so checking remaining quota never consumes any.
func addStatusPath(doc *openapi3.T) {
	verdictRef := openapi3.NewSchemaRef("#/components/schemas/RateLimitVerdict", nil)

	doc.Paths.Set("/api/v1/ratelimit/status", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"gateway"},
			Summary:     "Current rate-limit status",
			Description: "Returns the caller's current verdict without consuming quota.",
			OperationID: "ratelimit_status",
			Security: &openapi3.SecurityRequirements{
				{},
				{"apiKey": {}},
			},
			Responses: newResponses("200", "Current verdict", verdictRef),
		},
	})
}

// addSystemPaths documents the admin management API.
func addSystemPaths(doc *openapi3.T) {
	keyRef := openapi3.NewSchemaRef("#/components/schemas/APIKey", nil)
	createRef := openapi3.NewSchemaRef("#/components/schemas/APIKeyCreate", nil)
	adminRef := openapi3.NewSchemaRef("#/components/schemas/Admin", nil)
	bearer := &openapi3.SecurityRequirements{{"bearerAuth": {}}}

	loginReq := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:     &openapi3.Types{"object"},
			Required: []string{"email", "password"},
			Properties: openapi3.Schemas{
				"email":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "email"}},
				"password": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "password"}},
			},
		},
	}
	loginResp := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"token": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"admin": adminRef,
			},
		},
	}

	doc.Paths.Set("/api/v1/system/session", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Admin login",
			OperationID: "login",
			RequestBody: &openapi3.RequestBodyRef{
				Value: &openapi3.RequestBody{
					Required: true,
					Content:  openapi3.NewContentWithJSONSchemaRef(loginReq),
				},
			},
			Responses: newResponses("200", "Bearer token issued", loginResp),
		},
	})

	// Key creation response carries the raw token exactly once
	createdResp := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"key":     &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Description: "Raw key token. Shown only in this response."}},
				"api_key": keyRef,
			},
		},
	}

	listResp := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"resource": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:  &openapi3.Types{"array"},
						Items: keyRef,
					},
				},
			},
		},
	}

	doc.Paths.Set("/api/v1/system/keys", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "List API keys",
			OperationID: "list_keys",
			Security:    bearer,
			Responses:   newResponses("200", "All key records", listResp),
		},
		Post: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Issue a new API key",
			OperationID: "create_key",
			Security:    bearer,
			RequestBody: &openapi3.RequestBodyRef{
				Value: &openapi3.RequestBody{
					Required: true,
					Content:  openapi3.NewContentWithJSONSchemaRef(createRef),
				},
			},
			Responses: newResponses("201", "Key issued", createdResp),
		},
	})

	idParam := &openapi3.ParameterRef{
		Value: &openapi3.Parameter{
			Name:     "id",
			In:       "path",
			Required: true,
			Schema:   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}},
		},
	}

	doc.Paths.Set("/api/v1/system/keys/{id}", &openapi3.PathItem{
		Parameters: openapi3.Parameters{idParam},
		Get: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Get an API key record",
			OperationID: "get_key",
			Security:    bearer,
			Responses:   newResponses("200", "Key record", keyRef),
		},
		Patch: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Update an API key",
			Description: "Edit name, description, tier, expiry, or active state. Counters and the token itself cannot be edited.",
			OperationID: "update_key",
			Security:    bearer,
			RequestBody: &openapi3.RequestBodyRef{
				Value: &openapi3.RequestBody{
					Required: true,
					Content:  openapi3.NewContentWithJSONSchemaRef(createRef),
				},
			},
			Responses: newResponses("200", "Updated key record", keyRef),
		},
		Delete: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "Deactivate an API key",
			Description: "Keys are never hard deleted; the record is kept and the key stops validating.",
			OperationID: "deactivate_key",
			Security:    bearer,
			Responses:   newResponses("200", "Key deactivated", keyRef),
		},
	})

	tiersResp := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"resource": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"array"},
						Items: &openapi3.SchemaRef{
							Value: &openapi3.Schema{
								Type: &openapi3.Types{"object"},
								Properties: openapi3.Schemas{
									"tier":             &openapi3.SchemaRef{Value: tierSchema()},
									"requests_per_day": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
								},
							},
						},
					},
				},
			},
		},
	}

	doc.Paths.Set("/api/v1/system/tiers", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "List tier quotas",
			OperationID: "list_tiers",
			Security:    bearer,
			Responses:   newResponses("200", "Effective tier policy", tiersResp),
		},
	})

	adminsResp := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"resource": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:  &openapi3.Types{"array"},
						Items: adminRef,
					},
				},
			},
		},
	}

	doc.Paths.Set("/api/v1/system/admins", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     "List admin accounts",
			OperationID: "list_admins",
			Security:    bearer,
			Responses:   newResponses("200", "All admin accounts", adminsResp),
		},
	})
}

// newResponses builds a Responses map with a success response and standard error responses.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)

	badReqDesc := "Bad request"
	responses.Set("400", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &badReqDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
		},
	})

	unauthDesc := "Unauthorized"
	responses.Set("401", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &unauthDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
		},
	})

	notFoundDesc := "Not found"
	responses.Set("404", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &notFoundDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
		},
	})

	limitDesc := "Daily quota exceeded"
	responses.Set("429", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &limitDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
		},
	})

	serverErrDesc := "Internal server error"
	responses.Set("500", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &serverErrDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
		},
	})

	return responses
}
