package validation

// Sample schema, rules, and documents used by the demo CLI and tests.

// SampleSchema returns a JSON Schema for a user/metadata document.
func SampleSchema() []byte {
	return []byte(`{
  "type": "object",
  "properties": {
    "user": {
      "type": "object",
      "properties": {
        "id": {"type": "integer", "minimum": 1},
        "name": {"type": "string", "minLength": 1},
        "email": {"type": "string"},
        "age": {"type": "integer", "minimum": 0, "maximum": 150},
        "roles": {
          "type": "array",
          "items": {"type": "string"},
          "minItems": 1
        }
      },
      "required": ["id", "name", "email", "age", "roles"]
    },
    "metadata": {
      "type": "object",
      "properties": {
        "created_at": {"type": "string"},
        "version": {"type": "string"}
      },
      "required": ["created_at", "version"]
    }
  },
  "required": ["user", "metadata"]
}`)
}

// BusinessRules returns the standard natural-language validation rules.
func BusinessRules() []string {
	return []string{
		"User age must be reasonable for the assigned roles (e.g., admin role requires age >= 18)",
		"Email domain should be from a business domain (not personal email providers like gmail, yahoo, hotmail)",
		"User name should not contain special characters or numbers",
		"At least one role must be assigned, and roles should be from: ['user', 'admin', 'moderator', 'guest']",
		"Version should follow semantic versioning format (e.g., 1.0.0)",
		"Created timestamp should not be in the future",
	}
}

// StrictBusinessRules returns a stricter rule set.
func StrictBusinessRules() []string {
	return []string{
		"Admin users must be at least 21 years old",
		"Moderator users must be at least 18 years old",
		"Email domain must be from approved corporate domains: ['company.com', 'enterprise.org', 'business.net']",
		"User names must be between 2 and 50 characters and contain only letters and spaces",
		"Users can have maximum 3 roles assigned",
		"Version must be a stable release (no pre-release identifiers like alpha, beta, rc)",
		"Created timestamp must be within the last 2 years",
	}
}

// TechnicalRules returns technically-phrased validation rules.
func TechnicalRules() []string {
	return []string{
		"User ID must be a positive integer and unique within the system",
		"Email must be a valid RFC 5322 compliant email address",
		"Age must be between 0 and 150 years",
		"Roles array must not contain duplicates",
		"Version must follow semantic versioning specification (semver.org)",
		"Created timestamp must be in ISO 8601 format with UTC timezone",
	}
}

// ValidTestData returns a document that should pass both stages.
func ValidTestData() map[string]any {
	return map[string]any{
		"user": map[string]any{
			"id":    123,
			"name":  "John Smith",
			"email": "john.smith@company.com",
			"age":   28,
			"roles": []any{"admin", "user"},
		},
		"metadata": map[string]any{
			"created_at": "2024-01-15T10:30:00Z",
			"version":    "1.2.0",
		},
	}
}

// InvalidSchemaData returns a document that fails structural validation.
func InvalidSchemaData() map[string]any {
	return map[string]any{
		"user": map[string]any{
			"id":    "not_a_number",
			"name":  "",
			"email": "invalid-email",
			"age":   -5,
			"roles": []any{},
		},
		"metadata": map[string]any{
			"created_at": "invalid-date",
			// version intentionally missing
		},
	}
}

// InvalidSemanticData returns a document that passes the schema but breaks
// the business rules.
func InvalidSemanticData() map[string]any {
	return map[string]any{
		"user": map[string]any{
			"id":    456,
			"name":  "User123!@#",
			"email": "user@gmail.com",
			"age":   16,
			"roles": []any{"admin", "invalid_role"},
		},
		"metadata": map[string]any{
			"created_at": "2025-12-31T23:59:59Z",
			"version":    "invalid.version.format",
		},
	}
}

// EdgeCaseData returns boundary documents: minimum age, maximum age, and
// multiple roles.
func EdgeCaseData() []map[string]any {
	return []map[string]any{
		{
			"user": map[string]any{
				"id":    1,
				"name":  "Young User",
				"email": "young@company.com",
				"age":   0,
				"roles": []any{"guest"},
			},
			"metadata": map[string]any{
				"created_at": "2024-01-01T00:00:00Z",
				"version":    "0.1.0",
			},
		},
		{
			"user": map[string]any{
				"id":    2,
				"name":  "Senior User",
				"email": "senior@enterprise.org",
				"age":   150,
				"roles": []any{"user"},
			},
			"metadata": map[string]any{
				"created_at": "2024-06-15T12:00:00Z",
				"version":    "10.0.0",
			},
		},
		{
			"user": map[string]any{
				"id":    3,
				"name":  "Multi Role User",
				"email": "multi@business.net",
				"age":   35,
				"roles": []any{"admin", "moderator", "user"},
			},
			"metadata": map[string]any{
				"created_at": "2024-03-20T08:30:00Z",
				"version":    "2.1.3",
			},
		},
	}
}
