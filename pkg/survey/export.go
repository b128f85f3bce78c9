package survey

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// QuestionRecord documents the persisted shape of a question for schema
// generation. Display fields beyond these are allowed and passed through.
type QuestionRecord struct {
	ID            string   `json:"id" jsonschema:"minLength=1,description=Unique question id (no ':' or '|')"`
	Type          string   `json:"type,omitempty" jsonschema:"description=Question kind; defaults to text"`
	Name          string   `json:"name,omitempty"`
	Title         string   `json:"title,omitempty"`
	Description   string   `json:"description,omitempty" jsonschema:"description=Markdown shown under the title"`
	IsRequired    bool     `json:"isRequired,omitempty"`
	NextQuestions []Branch `json:"next_questions,omitempty" jsonschema:"description=Branch references resolved by answer"`
}

// SchemaID is the canonical $id of the generated survey schema.
const SchemaID = "https://github.com/ormasoftchile/surveyd/schemas/survey-v0.json"

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document for a
// survey definition (an array of question records) using invopop/jsonschema.
func GenerateJSONSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	item := r.Reflect(&QuestionRecord{})
	item.Version = ""
	item.ID = ""

	root := &jsonschema.Schema{
		Version:     jsonschema.Version,
		ID:          SchemaID,
		Title:       "Survey definition v0",
		Description: "Ordered array of question records with branch references",
		Type:        "array",
		Items:       item,
	}

	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
