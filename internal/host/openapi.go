package host

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"
)

// loadOpenAPI treats a definition file as an OpenAPI 3 document: every
// operation becomes a route answering with the example response declared
// for it (or one derived from the response schema).
func (l *Loader) loadOpenAPI(ctx context.Context, path string, data []byte, src Source) error {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return fmt.Errorf("parse OpenAPI document %s: %w", path, err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return fmt.Errorf("OpenAPI document %s invalid: %w", path, err)
	}

	for pattern, item := range doc.Paths.Map() {
		for _, method := range httpMethods {
			op := item.GetOperation(method)
			if op == nil {
				continue
			}
			if err := l.app.RegisterRoute(src, method, pattern, openapiHandler(op)); err != nil {
				return err
			}
			l.logger.Debug("OpenAPI route registered",
				zap.String("method", method),
				zap.String("pattern", pattern),
			)
		}
	}
	return nil
}

var httpMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodPatch,
	http.MethodHead,
	http.MethodOptions,
}

func openapiHandler(op *openapi3.Operation) http.HandlerFunc {
	status, example := exampleResponse(op)
	body, err := json.Marshal(example)
	if err != nil {
		body = []byte("{}")
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}
}

// exampleResponse picks the first 2xx response of the operation and its
// JSON example, deriving one from the schema when no explicit example is
// declared.
func exampleResponse(op *openapi3.Operation) (int, interface{}) {
	if op.Responses == nil {
		return http.StatusOK, map[string]interface{}{}
	}
	for codeStr, ref := range op.Responses.Map() {
		code, err := strconv.Atoi(codeStr)
		if err != nil || code < 200 || code > 299 || ref == nil || ref.Value == nil {
			continue
		}
		content := ref.Value.Content.Get("application/json")
		if content == nil {
			return code, map[string]interface{}{}
		}
		if content.Example != nil {
			return code, content.Example
		}
		if content.Schema != nil && content.Schema.Value != nil {
			return code, exampleFromSchema(content.Schema.Value)
		}
		return code, map[string]interface{}{}
	}
	return http.StatusOK, map[string]interface{}{}
}

func exampleFromSchema(schema *openapi3.Schema) interface{} {
	if schema == nil {
		return nil
	}
	if schema.Example != nil {
		return schema.Example
	}
	switch {
	case schema.Type.Is("object"):
		obj := make(map[string]interface{}, len(schema.Properties))
		for name, prop := range schema.Properties {
			if prop != nil {
				obj[name] = exampleFromSchema(prop.Value)
			}
		}
		return obj
	case schema.Type.Is("array"):
		if schema.Items != nil {
			return []interface{}{exampleFromSchema(schema.Items.Value)}
		}
		return []interface{}{}
	case schema.Type.Is("string"):
		return "string"
	case schema.Type.Is("integer"):
		return 0
	case schema.Type.Is("number"):
		return 0.0
	case schema.Type.Is("boolean"):
		return false
	default:
		return nil
	}
}
