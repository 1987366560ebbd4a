package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/qri-io/jsonpointer"
)

// document is the catalog decoded into generic JSON values for pointer evaluation
var document = sync.OnceValues(func() (any, error) {
	var doc any
	if err := json.Unmarshal([]byte(Describe()), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return doc, nil
})

// Lookup evaluates an RFC 6901 JSON Pointer against the catalog.
// The empty pointer returns the whole document.
func Lookup(pointer string) (any, error) {
	doc, err := document()
	if err != nil {
		return nil, err
	}
	if pointer == "" {
		return doc, nil
	}
	// Parse accepts URL fragments, which would turn a bare token into the root pointer
	if !strings.HasPrefix(pointer, "/") {
		return nil, fmt.Errorf("invalid JSON Pointer: %s", pointer)
	}

	ptr, err := jsonpointer.Parse(pointer)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON Pointer: %w", err)
	}

	result, err := ptr.Eval(doc)
	// The jsonpointer library returns (nil, nil) for nonexistent paths
	if err != nil || result == nil {
		return nil, fmt.Errorf("path not found: %s", pointer)
	}
	return result, nil
}

// OperationPointer returns the pointer to the catalog entry of the named operation
func OperationPointer(name string) string {
	return "/operations/" + tokenEscaper.Replace(name)
}

var tokenEscaper = strings.NewReplacer("~", "~0", "/", "~1")
