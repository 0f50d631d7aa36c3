package core

import (
	"encoding/json"
	"fmt"
)

// Discriminator values written to the "$type" field of encoded parts.
const (
	partTypeText             = "text"
	partTypeData             = "data"
	partTypeFile             = "file"
	partTypeBlob             = "blob"
	partTypeCodeExecution    = "code_execution"
	partTypeFunctionCall     = "function_call"
	partTypeFunctionResponse = "function_response"
)

// MarshalPart encodes a Part as a JSON object tagged with its "$type".
func MarshalPart(p Part) ([]byte, error) {
	var (
		kind string
		body any
	)

	switch v := p.(type) {
	case TextPart:
		kind, body = partTypeText, v
	case DataPart:
		kind, body = partTypeData, v
	case FilePart:
		kind, body = partTypeFile, v
	case BlobPart:
		kind, body = partTypeBlob, v
	case CodeExecutionPart:
		kind, body = partTypeCodeExecution, v
	case FunctionCallPart:
		kind, body = partTypeFunctionCall, v
	case FunctionResponsePart:
		kind, body = partTypeFunctionResponse, v
	default:
		return nil, fmt.Errorf("unsupported part type %T", p)
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	fields["$type"] = json.RawMessage(fmt.Sprintf("%q", kind))

	return json.Marshal(fields)
}

// UnmarshalPart decodes a JSON object produced by MarshalPart.
func UnmarshalPart(data []byte) (Part, error) {
	var envelope struct {
		Type string `json:"$type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}

	switch envelope.Type {
	case partTypeText:
		var p TextPart
		err := json.Unmarshal(data, &p)
		return p, err
	case partTypeData:
		var p DataPart
		err := json.Unmarshal(data, &p)
		return p, err
	case partTypeFile:
		var p FilePart
		err := json.Unmarshal(data, &p)
		return p, err
	case partTypeBlob:
		var p BlobPart
		err := json.Unmarshal(data, &p)
		return p, err
	case partTypeCodeExecution:
		var p CodeExecutionPart
		err := json.Unmarshal(data, &p)
		return p, err
	case partTypeFunctionCall:
		var p FunctionCallPart
		err := json.Unmarshal(data, &p)
		return p, err
	case partTypeFunctionResponse:
		var p FunctionResponsePart
		err := json.Unmarshal(data, &p)
		return p, err
	default:
		return nil, fmt.Errorf("unknown part type %q", envelope.Type)
	}
}

type contentJSON struct {
	Role  string            `json:"role,omitempty"`
	Parts []json.RawMessage `json:"parts"`
}

// MarshalJSON implements json.Marshaler.
func (c Content) MarshalJSON() ([]byte, error) {
	out := contentJSON{Role: c.Role, Parts: make([]json.RawMessage, 0, len(c.Parts))}
	for _, p := range c.Parts {
		raw, err := MarshalPart(p)
		if err != nil {
			return nil, err
		}
		out.Parts = append(out.Parts, raw)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Content) UnmarshalJSON(data []byte) error {
	var in contentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	c.Role = in.Role
	c.Parts = make([]Part, 0, len(in.Parts))
	for _, raw := range in.Parts {
		p, err := UnmarshalPart(raw)
		if err != nil {
			return err
		}
		c.Parts = append(c.Parts, p)
	}
	return nil
}
