package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jmespath/go-jmespath"
)

// DefaultCursorExpression finds the continuation cursor in a page
// response. The service nests it under "pagination"; older builds put it
// at the top level.
const DefaultCursorExpression = "pagination.nextCursor || nextCursor"

// CursorExtractor pulls the next-page cursor out of a JSON payload
type CursorExtractor struct {
	expression string
	compiled   *jmespath.JMESPath
}

// NewCursorExtractor compiles a JMESPath expression; an empty expression
// selects DefaultCursorExpression
func NewCursorExtractor(expression string) (*CursorExtractor, error) {
	if expression == "" {
		expression = DefaultCursorExpression
	}
	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor expression %q: %w", expression, err)
	}
	return &CursorExtractor{expression: expression, compiled: compiled}, nil
}

// Expression returns the source expression
func (c *CursorExtractor) Expression() string {
	return c.expression
}

// Extract returns the cursor, or "" when the payload is not JSON or the
// cursor is missing, null, empty or not a scalar
func (c *CursorExtractor) Extract(payload []byte) string {
	var data interface{}
	if err := json.Unmarshal(payload, &data); err != nil {
		return ""
	}

	result, err := c.compiled.Search(data)
	if err != nil {
		return ""
	}

	switch v := result.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// hasPayload reports whether a page response carries any content
func hasPayload(payload []byte) bool {
	trimmed := bytes.TrimSpace(payload)
	switch string(trimmed) {
	case "", "null", "{}", "[]", `""`:
		return false
	}
	return true
}
