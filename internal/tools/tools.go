// Package tools answers the function calls a live model issues during a voice
// session.
//
// The set of tools is closed. Three are declared to the model via
// [Declarations]:
//   - "navigate": moves the back-office UI to a path.
//   - "create_record": creates a client, campaign or task record.
//   - "update_record": sets one field on an existing record.
//
// Side effects run through a [Sink]. Every call the model issues is answered
// with exactly one result correlated by call ID; see [Dispatcher].
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/MrWong99/voxdesk/pkg/provider/live"
)

// Name identifies a supported tool.
type Name string

const (
	Navigate     Name = "navigate"
	CreateRecord Name = "create_record"
	UpdateRecord Name = "update_record"
)

// Names lists every supported tool in declaration order.
var Names = []Name{Navigate, CreateRecord, UpdateRecord}

// Valid reports whether n is one of the supported tools.
func (n Name) Valid() bool {
	switch n {
	case Navigate, CreateRecord, UpdateRecord:
		return true
	}
	return false
}

// Ack is the generic acknowledgement returned for calls that could not be
// carried out: unknown tools, malformed arguments and failed side effects.
const Ack = "ok"

// Sink performs the side effects behind the tools. Each method returns a short
// confirmation that is passed back to the model.
//
// Implementations must be safe for concurrent use.
type Sink interface {
	Navigate(ctx context.Context, path string) (string, error)
	CreateRecord(ctx context.Context, fields map[string]string) (string, error)
	UpdateRecord(ctx context.Context, selector, field, value string) (string, error)
}

// ─── Arguments ────────────────────────────────────────────────────────────────

// navigateArgs is the decoded input for "navigate".
type navigateArgs struct {
	Path string `json:"path"`
}

// createRecordArgs is the decoded input for "create_record".
type createRecordArgs struct {
	// Kind is the record type: client, campaign or task.
	Kind   string         `json:"kind"`
	Fields map[string]any `json:"fields"`
}

// updateRecordArgs is the decoded input for "update_record".
type updateRecordArgs struct {
	// Selector is a record ID or a record name.
	Selector string `json:"selector"`
	Field    string `json:"field"`
	Value    any    `json:"value"`
}

// decodeArgs narrows the weakly typed wire arguments into dst.
func decodeArgs(name Name, args map[string]any, dst any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("tools: %s: encode args: %w", name, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("tools: %s: invalid args: %w", name, err)
	}
	return nil
}

// scalarString renders a JSON scalar as a string. Objects and arrays are
// rejected.
func scalarString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// ─── Declarations ─────────────────────────────────────────────────────────────

// Declarations returns the function declarations for every supported tool,
// in the order of [Names].
func Declarations() []live.FunctionDeclaration {
	return []live.FunctionDeclaration{
		{
			Name:        string(Navigate),
			Description: "Open a page of the back office, for example /clients, /campaigns/42 or /tasks.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Absolute UI path starting with a slash.",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        string(CreateRecord),
			Description: "Create a new client, campaign or task record.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"kind": map[string]any{
						"type": "string",
						"enum": []string{"client", "campaign", "task"},
					},
					"fields": map[string]any{
						"type":        "object",
						"description": "Field values for the new record, such as name, status, owner or due.",
					},
				},
				"required": []string{"kind", "fields"},
			},
		},
		{
			Name:        string(UpdateRecord),
			Description: "Set one field on an existing record identified by ID or name.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"selector": map[string]any{
						"type":        "string",
						"description": "Record ID or exact record name.",
					},
					"field": map[string]any{"type": "string"},
					"value": map[string]any{"type": "string"},
				},
				"required": []string{"selector", "field", "value"},
			},
		},
	}
}
