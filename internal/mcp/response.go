package mcp

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/csearch/internal/errors"
)

// createJSONResponse serializes data as the single text content of a tool
// result.
func createJSONResponse(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(content)},
		},
	}, nil
}

// createErrorResponse reports a tool failure inside the result object with
// IsError set, so the model sees the failure and can self-correct, instead
// of a protocol-level error it never observes. Typed service errors carry
// their kind, retryability and remediation hint into the payload.
func createErrorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	errorData := map[string]interface{}{
		"success":   false,
		"error":     err.Error(),
		"operation": operation,
	}

	if kind := errors.KindOf(err); kind != errors.KindInternal {
		errorData["kind"] = string(kind)
	}
	if hint := errors.HintOf(err); hint != "" {
		errorData["hint"] = hint
	}
	var se *errors.ServiceError
	if stderrors.As(err, &se) && se.IsRetryable() {
		errorData["retryable"] = true
	}

	response, marshalErr := createJSONResponse(errorData)
	if marshalErr != nil {
		return nil, marshalErr
	}
	response.IsError = true
	return response, nil
}
