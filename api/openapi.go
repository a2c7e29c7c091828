package api

import (
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-openapi/spec"
)

// OpenAPI describes the API as a Swagger 2.0 document.
func (s *Service) OpenAPI() *spec.Swagger {
	definitions := spec.Definitions{}
	paths := map[string]spec.PathItem{}
	for _, endpoint := range s.endpoints() {
		method, path, _ := strings.Cut(endpoint.pattern, " ")
		path = strings.TrimSuffix(path, "{$}")
		item := paths[path]
		operation := endpoint.operation(path, definitions)
		switch method {
		case http.MethodGet:
			item.Get = operation
		case http.MethodPost:
			item.Post = operation
		}
		paths[path] = item
	}
	return &spec.Swagger{
		SwaggerProps: spec.SwaggerProps{
			Swagger:     "2.0",
			Info:        &spec.Info{InfoProps: spec.InfoProps{Title: "FloatChat API", Version: "1.0.0"}},
			Consumes:    []string{"application/json"},
			Produces:    []string{"application/json"},
			Paths:       &spec.Paths{Paths: paths},
			Definitions: definitions,
		},
	}
}

var wildcardRe = regexp.MustCompile(`\{(\w+)\}`)

func (e endpoint) operation(path string, definitions spec.Definitions) *spec.Operation {
	operation := &spec.Operation{
		OperationProps: spec.OperationProps{
			Description: e.description,
			Produces:    e.produces,
			Tags:        []string{e.tag},
			Responses:   e.responses(definitions),
		},
	}
	for _, match := range wildcardRe.FindAllStringSubmatch(path, -1) {
		operation.Parameters = append(operation.Parameters, spec.Parameter{
			ParamProps:   spec.ParamProps{Name: match[1], In: "path", Required: true},
			SimpleSchema: spec.SimpleSchema{Type: "string"},
		})
	}
	for _, query := range e.query {
		operation.Parameters = append(operation.Parameters, queryParameters(query)...)
	}
	if e.body != nil {
		operation.Parameters = append(operation.Parameters, spec.Parameter{
			ParamProps: spec.ParamProps{
				Name:     "body",
				In:       "body",
				Required: true,
				Schema:   schemaForType(e.body, definitions),
			},
		})
	}
	return operation
}

func (e endpoint) responses(definitions spec.Definitions) *spec.Responses {
	responses := &spec.Responses{
		ResponsesProps: spec.ResponsesProps{
			StatusCodeResponses: map[int]spec.Response{
				200: {ResponseProps: spec.ResponseProps{Description: "Success"}},
			},
		},
	}
	if e.result != nil {
		responses.StatusCodeResponses[200] = spec.Response{
			ResponseProps: spec.ResponseProps{
				Description: "Success",
				Schema:      schemaForType(e.result, definitions),
			},
		}
	}
	if e.query != nil || e.body != nil {
		responses.StatusCodeResponses[400] = spec.Response{ResponseProps: spec.ResponseProps{Description: "Bad Request"}}
	}
	if strings.Contains(e.pattern, "{id}") {
		responses.StatusCodeResponses[404] = spec.Response{ResponseProps: spec.ResponseProps{Description: "Not Found"}}
	}
	responses.StatusCodeResponses[500] = spec.Response{ResponseProps: spec.ResponseProps{Description: "Internal Server Error"}}
	return responses
}

// queryParameters describes each qstring-tagged field of a query struct.
func queryParameters(t reflect.Type) []spec.Parameter {
	var parameters []spec.Parameter
	for _, field := range reflect.VisibleFields(t) {
		name := field.Tag.Get("qstring")
		if name == "" || !field.IsExported() {
			continue
		}
		parameterType := "string"
		switch field.Type.Kind() {
		case reflect.Int, reflect.Int64:
			parameterType = "integer"
		case reflect.Float64:
			parameterType = "number"
		case reflect.Bool:
			parameterType = "boolean"
		}
		parameters = append(parameters, spec.Parameter{
			ParamProps:   spec.ParamProps{Name: name, In: "query"},
			SimpleSchema: spec.SimpleSchema{Type: parameterType},
		})
	}
	return parameters
}

var timeType = reflect.TypeFor[time.Time]()

// schemaForType returns the schema for t, adding named types to definitions and referring to them.
func schemaForType(t reflect.Type, definitions spec.Definitions) *spec.Schema {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		return &spec.Schema{SchemaProps: spec.SchemaProps{Type: []string{"string"}, Format: "date-time"}}
	}
	if t.Name() != "" && t.PkgPath() != "" {
		pkg := t.PkgPath()[strings.LastIndex(t.PkgPath(), "/")+1:]
		defName := pkg + "." + t.Name()
		if _, exists := definitions[defName]; !exists {
			// Reserve the name first so recursive types terminate.
			definitions[defName] = spec.Schema{}
			definitions[defName] = *underlyingSchema(t, definitions)
		}
		return &spec.Schema{SchemaProps: spec.SchemaProps{Ref: spec.MustCreateRef("#/definitions/" + defName)}}
	}
	return underlyingSchema(t, definitions)
}

func underlyingSchema(t reflect.Type, definitions spec.Definitions) *spec.Schema {
	schema := &spec.Schema{}
	switch t.Kind() {
	case reflect.String:
		schema.Type = []string{"string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		schema.Type = []string{"integer"}
	case reflect.Float32, reflect.Float64:
		schema.Type = []string{"number"}
	case reflect.Bool:
		schema.Type = []string{"boolean"}
	case reflect.Struct:
		schema.Type = []string{"object"}
		schema.Properties = map[string]spec.Schema{}
		for i := range t.NumField() {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			if name := jsonFieldName(field); name != "" {
				schema.Properties[name] = *schemaForType(field.Type, definitions)
			}
		}
	case reflect.Slice, reflect.Array:
		schema.Type = []string{"array"}
		schema.Items = &spec.SchemaOrArray{Schema: schemaForType(t.Elem(), definitions)}
	default:
		schema.Type = []string{"object"}
	}
	return schema
}

// jsonFieldName returns the JSON field name from the struct tag if present,
// otherwise the field name with the first letter lowercased.
func jsonFieldName(field reflect.StructField) string {
	if tag := field.Tag.Get("json"); tag != "" {
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return strings.ToLower(field.Name[:1]) + field.Name[1:]
}
