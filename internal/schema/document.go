package schema

import (
	"encoding/json"

	"storyline-server/internal/models"
)

// Parse validates raw content and returns the parsed document, discarding
// warnings. Used at read time, where drafts with quality warnings are still
// playable.
func Parse(raw []byte) (*models.ContentDocument, error) {
	res, err := Validate(raw)
	if err != nil {
		return nil, err
	}
	return res.Doc, nil
}

// Serialize writes a document back to its canonical JSON form. Unknown keys
// captured at parse time are emitted verbatim, so a parse and serialize
// round trip is idempotent.
func Serialize(doc *models.ContentDocument) (json.RawMessage, error) {
	return json.Marshal(doc)
}
