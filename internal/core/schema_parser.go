package core

import (
	"encoding/json"
	"fmt"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/types"
)

// ParseSchema turns raw schema input into a SchemaNode.  Text input must be
// strict JSON.  Input that cannot be parsed yields an empty (permissive)
// node together with a non-empty error list; ParseSchema never fails
// otherwise.
func ParseSchema(raw any) (*types.SchemaNode, []string) {
	switch typed := raw.(type) {
	case nil:
		return &types.SchemaNode{}, nil
	case *types.SchemaNode:
		if typed == nil {
			return &types.SchemaNode{}, nil
		}
		return typed, nil
	case types.SchemaNode:
		return &typed, nil
	case bool:
		return types.BoolSchema(typed), nil
	case string:
		return parseSchemaText([]byte(typed))
	case []byte:
		return parseSchemaText(typed)
	case json.RawMessage:
		return parseSchemaText(typed)
	default:
		data, err := json.Marshal(typed)
		if err != nil {
			return &types.SchemaNode{}, []string{fmt.Sprintf("Unable to parse content: %s", err)}
		}
		return parseSchemaText(data)
	}
}

func parseSchemaText(data []byte) (*types.SchemaNode, []string) {
	node := &types.SchemaNode{}
	if err := json.Unmarshal(data, node); err != nil {
		return &types.SchemaNode{}, []string{fmt.Sprintf("Unable to parse content: %s", err)}
	}
	return node, nil
}
