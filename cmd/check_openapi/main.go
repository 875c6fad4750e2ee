package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Checks that the published API document stays consistent with the
// wire contract the server actually speaks: the error envelope shape
// and the full operation surface.

type openAPIDoc struct {
	Paths      map[string]map[string]any `yaml:"paths"`
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

// Every route the server registers, with its methods. The doc must
// cover all of them.
var expectedOperations = map[string][]string{
	"/healthz":                      {"get"},
	"/api/user/profile":             {"get"},
	"/api/user/onboard":             {"post"},
	"/api/wallet/balance":           {"get"},
	"/api/wallet/spend":             {"post"},
	"/api/wallet/transactions":      {"get"},
	"/api/content/upload":           {"post"},
	"/api/content/recommendations":  {"get"},
	"/api/content/{id}":             {"get"},
	"/api/content/{id}/unlock":      {"post"},
	"/api/exam/upload":              {"post"},
	"/api/exam/predict":             {"post"},
	"/api/exam/predictions":         {"get"},
	"/api/exam/recommended-content": {"get"},
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}

	doc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}

	if err := validateOperations(doc); err != nil {
		exitErr(err)
	}

	errSchema, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		exitErr(err)
	}
	if err := validateErrorResponse(errSchema); err != nil {
		exitErr(err)
	}

	fmt.Println("OpenAPI consistency check passed.")
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func validateOperations(doc openAPIDoc) error {
	if doc.Paths == nil {
		return errors.New("paths missing")
	}
	for path, methods := range expectedOperations {
		ops, ok := doc.Paths[path]
		if !ok {
			return fmt.Errorf("path %q missing from document", path)
		}
		for _, method := range methods {
			if _, ok := ops[method]; !ok {
				return fmt.Errorf("path %q missing %s operation", path, strings.ToUpper(method))
			}
		}
	}
	for path := range doc.Paths {
		if _, ok := expectedOperations[path]; !ok {
			return fmt.Errorf("document declares unknown path %q", path)
		}
	}
	return nil
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

// validateErrorResponse pins the error envelope: error and code are
// always present, requestId is optional, and the insufficient-funds
// variant carries the integer shortfall fields.
func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "code"} {
		if !required[field] {
			return fmt.Errorf("ErrorResponse.required must include %q", field)
		}
	}
	for _, field := range []string{"error", "code", "requestId"} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "string" {
			return fmt.Errorf("ErrorResponse.%s must be string", field)
		}
	}
	for _, field := range []string{"required", "available"} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "integer" {
			return fmt.Errorf("ErrorResponse.%s must be integer", field)
		}
	}
	return nil
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
