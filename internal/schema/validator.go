package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"storyline-server/internal/models"
)

// Issue describes a single problem found in a content document.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError carries the structural violations that make a content
// document unusable. Only structural problems are hard failures; content
// quality problems (empty labels, missing media) surface as warnings on
// the Result instead, because operators iterate on half-finished drafts.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Path + ": " + issue.Message
	}
	return "invalid content document: " + strings.Join(msgs, "; ")
}

// Result is a successfully validated document plus any non-blocking warnings.
type Result struct {
	Doc      *models.ContentDocument
	Warnings []Issue
}

// jsonKind returns the first non-whitespace byte of a raw JSON value, which
// identifies its type ('"' string, '[' array, '{' object, etc).
func jsonKind(raw json.RawMessage) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}

// Validate checks a raw content payload and, when structurally sound, parses
// it into a ContentDocument. It is a pure function: same input, same verdict.
//
// Hard failures: top-level value is not an object, opening_message missing or
// not a string, branches present but not an array, a branches element that is
// not an object. Everything else is a warning.
func Validate(raw []byte) (*Result, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, &ValidationError{Issues: []Issue{
			{Path: "$", Message: "content must be a JSON object: " + err.Error()},
		}}
	}
	if top == nil {
		return nil, &ValidationError{Issues: []Issue{
			{Path: "$", Message: "content must be a JSON object, got null"},
		}}
	}

	var hard []Issue

	opening, ok := top["opening_message"]
	if !ok {
		hard = append(hard, Issue{Path: "opening_message", Message: "required key is missing"})
	} else if jsonKind(opening) != '"' {
		hard = append(hard, Issue{Path: "opening_message", Message: "must be a string"})
	}

	if branches, ok := top["branches"]; ok {
		if jsonKind(branches) != '[' {
			hard = append(hard, Issue{Path: "branches", Message: "must be an array"})
		} else {
			var elems []json.RawMessage
			if err := json.Unmarshal(branches, &elems); err != nil {
				hard = append(hard, Issue{Path: "branches", Message: "must be an array: " + err.Error()})
			} else {
				for i, elem := range elems {
					if jsonKind(elem) != '{' {
						hard = append(hard, Issue{
							Path:    fmt.Sprintf("branches[%d]", i),
							Message: "must be an object",
						})
					}
				}
			}
		}
	}

	if len(hard) > 0 {
		return nil, &ValidationError{Issues: hard}
	}

	var doc models.ContentDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ValidationError{Issues: []Issue{
			{Path: "$", Message: err.Error()},
		}}
	}

	return &Result{Doc: &doc, Warnings: collectWarnings(&doc)}, nil
}

func collectWarnings(doc *models.ContentDocument) []Issue {
	var warnings []Issue
	seen := make(map[string]int, len(doc.Branches))

	for i, b := range doc.Branches {
		path := fmt.Sprintf("branches[%d]", i)
		if b.ID == "" {
			warnings = append(warnings, Issue{Path: path + ".id", Message: "branch has no id"})
		} else if prev, dup := seen[b.ID]; dup {
			warnings = append(warnings, Issue{
				Path:    path + ".id",
				Message: fmt.Sprintf("duplicate branch id %q (also at branches[%d])", b.ID, prev),
			})
		} else {
			seen[b.ID] = i
		}
		if b.Label == "" {
			warnings = append(warnings, Issue{Path: path + ".label", Message: "branch has no label"})
		}
		if b.ResponseMessage == "" {
			warnings = append(warnings, Issue{Path: path + ".response_message", Message: "branch has no response message"})
		}
		if b.Increment() == 0 && !b.UnlocksFreeRoam {
			warnings = append(warnings, Issue{
				Path:    path + ".next_chapter_increment",
				Message: "increment 0 without unlocks_free_roam never advances the story",
			})
		}
		for j, media := range b.Media {
			if media.URL == "" {
				warnings = append(warnings, Issue{
					Path:    fmt.Sprintf("%s.media[%d].url", path, j),
					Message: "media entry has no url",
				})
			}
		}
		for j, step := range b.FollowUp {
			if step.Response == "" {
				warnings = append(warnings, Issue{
					Path:    fmt.Sprintf("%s.follow_up[%d].response", path, j),
					Message: "follow-up step has no response",
				})
			}
		}
	}

	return warnings
}
