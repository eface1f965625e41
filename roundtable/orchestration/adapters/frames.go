package adapters

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// Frame types exchanged with the reasoning backend.
const (
	FramePrompt = "prompt"
	FrameChat   = "chat"
	FrameAudio  = "audio"
	FrameError  = "error"
)

// promptFrame is sent for every dispatch.
type promptFrame struct {
	Type    string `json:"type"`
	Agent   string `json:"agent"`
	Project string `json:"project"`
	Text    string `json:"text"`
}

// replyFrame is any frame received from the backend.
type replyFrame struct {
	Type       string `json:"type"`
	Message    string `json:"message,omitempty"`
	Audio      []byte `json:"audio,omitempty"` // base64 in JSON
	Format     string `json:"format,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (f replyFrame) duration() time.Duration {
	return time.Duration(f.DurationMs) * time.Millisecond
}

// replyFrameSchema requires a non-empty message on chat frames, a non-negative
// duration on audio frames and an error string on error frames.
const replyFrameSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type"],
  "oneOf": [
    {
      "properties": {
        "type": {"enum": ["chat"]},
        "message": {"type": "string", "minLength": 1, "pattern": "\\S"}
      },
      "required": ["message"]
    },
    {
      "properties": {
        "type": {"enum": ["audio"]},
        "audio": {"type": "string"},
        "format": {"type": "string"},
        "durationMs": {"type": "integer", "minimum": 0}
      }
    },
    {
      "properties": {
        "type": {"enum": ["error"]},
        "error": {"type": "string"}
      },
      "required": ["error"]
    }
  ]
}`

// FrameValidator checks inbound backend frames against replyFrameSchema.
type FrameValidator struct {
	schema *gojsonschema.Schema
}

// NewFrameValidator compiles the reply frame schema.
func NewFrameValidator() (*FrameValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(replyFrameSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile reply frame schema: %w", err)
	}
	return &FrameValidator{schema: schema}, nil
}

// Validate returns an error describing every schema violation in data.
func (v *FrameValidator) Validate(data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("frame is not valid JSON")
	}

	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("frame validation failed: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return fmt.Errorf("frame schema violations: %s", strings.Join(problems, "; "))
	}
	return nil
}
