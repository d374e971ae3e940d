package editor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"storyline-server/internal/models"
	"storyline-server/internal/schema"
)

// Controller keeps one canonical parsed content document synchronized with
// two projections: the structured visual form (discrete field edits by path)
// and the raw text buffer. Edits in either view never discard data the other
// view does not understand.
//
// Editing is single-writer by design; the mutex only protects the controller
// against interleaved HTTP requests from the same operator session.
type Controller struct {
	mu       sync.Mutex
	doc      *models.ContentDocument
	rawText  string
	blocked  bool
	warnings []schema.Issue
	logger   *zap.Logger
}

// State is a read snapshot of the controller for rendering.
type State struct {
	RawText  string          `json:"rawText"`
	Blocked  bool            `json:"blocked"`
	Warnings []schema.Issue  `json:"warnings,omitempty"`
	Document json.RawMessage `json:"document,omitempty"`
}

// NewController loads persisted chapter content into an editing session.
// Content that fails structural validation (corrupted out-of-band) opens the
// session in the blocked state with the raw bytes intact, rather than erroring.
func NewController(initial json.RawMessage, logger *zap.Logger) *Controller {
	c := &Controller{logger: logger.Named("EditorController")}
	res, err := schema.Validate(initial)
	if err != nil {
		c.rawText = string(initial)
		c.blocked = true
		c.logger.Warn("opened editor session on invalid content", zap.Error(err))
		return c
	}
	c.doc = res.Doc
	c.warnings = res.Warnings
	c.rawText = string(initial)
	return c
}

// OnRawEdit replaces the raw text buffer. On a successful parse the canonical
// document is replaced wholesale and the visual form re-renders from it. On a
// parse failure the canonical document is left untouched, the buffer keeps the
// operator's text exactly as typed, and visual edits are blocked until valid
// text is provided.
func (c *Controller) OnRawEdit(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rawText = text
	res, err := schema.Validate([]byte(text))
	if err != nil {
		c.blocked = true
		return
	}
	c.doc = res.Doc
	c.warnings = res.Warnings
	c.blocked = false
}

// OnVisualEdit merges one field change into the canonical document and
// refreshes the raw buffer from it. While the raw buffer holds unparseable
// text, visual edits are rejected rather than guessed at.
//
// Paths address known fields ("opening_message", "branches.1.label",
// "branches.0.follow_up.2.response"); "-" as an array index appends, and a
// JSON null value on an array element removes it. Unknown keys at any object
// level are set as opaque pass-through values.
func (c *Controller) OnVisualEdit(path string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.blocked || c.doc == nil {
		return models.ErrDocumentBlocked
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	if err := applyEdit(c.doc, strings.Split(path, "."), raw); err != nil {
		return err
	}
	return c.refreshLocked()
}

// refreshLocked re-serializes the canonical document into the raw buffer and
// recomputes warnings. Must hold c.mu.
func (c *Controller) refreshLocked() error {
	out, err := schema.Serialize(c.doc)
	if err != nil {
		return err
	}
	res, err := schema.Validate(out)
	if err != nil {
		// The canonical document always serializes to a valid document; a
		// failure here means a bug, not bad operator input.
		return err
	}
	c.doc = res.Doc
	c.warnings = res.Warnings
	c.rawText = string(out)
	return nil
}

// Content returns the serialized canonical document for persistence. Blocked
// sessions have nothing valid to save.
func (c *Controller) Content() (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.blocked || c.doc == nil {
		return nil, models.ErrDocumentBlocked
	}
	return schema.Serialize(c.doc)
}

// Snapshot returns the current render state for both views.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{RawText: c.rawText, Blocked: c.blocked, Warnings: c.warnings}
	if c.doc != nil {
		if raw, err := schema.Serialize(c.doc); err == nil {
			st.Document = raw
		}
	}
	return st
}

func applyEdit(doc *models.ContentDocument, segs []string, raw json.RawMessage) error {
	switch segs[0] {
	case "opening_message":
		if len(segs) != 1 {
			return fmt.Errorf("%w: opening_message has no sub-fields", models.ErrInvalidInput)
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("%w: opening_message must be a string", models.ErrInvalidInput)
		}
		doc.OpeningMessage = s
		return nil
	case "branches":
		if len(segs) == 1 {
			var branches []models.Branch
			if err := json.Unmarshal(raw, &branches); err != nil {
				return fmt.Errorf("%w: branches must be an array of objects", models.ErrInvalidInput)
			}
			doc.Branches = branches
			return nil
		}
		return applyBranchEdit(doc, segs[1:], raw)
	default:
		if len(segs) != 1 {
			return fmt.Errorf("%w: unknown path %q", models.ErrInvalidInput, strings.Join(segs, "."))
		}
		if doc.Extra == nil {
			doc.Extra = make(map[string]json.RawMessage)
		}
		doc.Extra[segs[0]] = raw
		return nil
	}
}

func applyBranchEdit(doc *models.ContentDocument, segs []string, raw json.RawMessage) error {
	if segs[0] == "-" {
		if len(segs) != 1 {
			return fmt.Errorf("%w: cannot address fields of an appended branch", models.ErrInvalidInput)
		}
		var b models.Branch
		if err := json.Unmarshal(raw, &b); err != nil {
			return fmt.Errorf("%w: branch must be an object", models.ErrInvalidInput)
		}
		doc.Branches = append(doc.Branches, b)
		return nil
	}

	idx, err := strconv.Atoi(segs[0])
	if err != nil || idx < 0 || idx >= len(doc.Branches) {
		return fmt.Errorf("%w: no branch at index %q", models.ErrInvalidInput, segs[0])
	}

	if len(segs) == 1 {
		if isJSONNull(raw) {
			doc.Branches = append(doc.Branches[:idx], doc.Branches[idx+1:]...)
			return nil
		}
		var b models.Branch
		if err := json.Unmarshal(raw, &b); err != nil {
			return fmt.Errorf("%w: branch must be an object", models.ErrInvalidInput)
		}
		doc.Branches[idx] = b
		return nil
	}

	branch := &doc.Branches[idx]
	switch segs[1] {
	case "follow_up":
		if len(segs) == 2 {
			return patchObject(branch, "follow_up", raw)
		}
		return applyFollowUpEdit(branch, segs[2:], raw)
	case "media":
		if len(segs) == 2 {
			return patchObject(branch, "media", raw)
		}
		return applyMediaEdit(&branch.Media, segs[2:], raw)
	default:
		if len(segs) != 2 {
			return fmt.Errorf("%w: unknown path under branch: %q", models.ErrInvalidInput, strings.Join(segs[1:], "."))
		}
		return patchObject(branch, segs[1], raw)
	}
}

func applyFollowUpEdit(branch *models.Branch, segs []string, raw json.RawMessage) error {
	if segs[0] == "-" {
		if len(segs) != 1 {
			return fmt.Errorf("%w: cannot address fields of an appended follow-up", models.ErrInvalidInput)
		}
		var step models.FollowUpStep
		if err := json.Unmarshal(raw, &step); err != nil {
			return fmt.Errorf("%w: follow-up must be an object", models.ErrInvalidInput)
		}
		branch.FollowUp = append(branch.FollowUp, step)
		return nil
	}

	idx, err := strconv.Atoi(segs[0])
	if err != nil || idx < 0 || idx >= len(branch.FollowUp) {
		return fmt.Errorf("%w: no follow-up at index %q", models.ErrInvalidInput, segs[0])
	}

	if len(segs) == 1 {
		if isJSONNull(raw) {
			branch.FollowUp = append(branch.FollowUp[:idx], branch.FollowUp[idx+1:]...)
			return nil
		}
		var step models.FollowUpStep
		if err := json.Unmarshal(raw, &step); err != nil {
			return fmt.Errorf("%w: follow-up must be an object", models.ErrInvalidInput)
		}
		branch.FollowUp[idx] = step
		return nil
	}

	step := &branch.FollowUp[idx]
	if segs[1] == "media" && len(segs) > 2 {
		return applyMediaEdit(&step.Media, segs[2:], raw)
	}
	if len(segs) != 2 {
		return fmt.Errorf("%w: unknown path under follow-up: %q", models.ErrInvalidInput, strings.Join(segs[1:], "."))
	}
	return patchObject(step, segs[1], raw)
}

func applyMediaEdit(media *[]models.MediaItem, segs []string, raw json.RawMessage) error {
	if segs[0] == "-" {
		var item models.MediaItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return fmt.Errorf("%w: media must be an object", models.ErrInvalidInput)
		}
		*media = append(*media, item)
		return nil
	}

	idx, err := strconv.Atoi(segs[0])
	if err != nil || idx < 0 || idx >= len(*media) {
		return fmt.Errorf("%w: no media at index %q", models.ErrInvalidInput, segs[0])
	}

	if len(segs) == 1 {
		if isJSONNull(raw) {
			*media = append((*media)[:idx], (*media)[idx+1:]...)
			return nil
		}
		var item models.MediaItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return fmt.Errorf("%w: media must be an object", models.ErrInvalidInput)
		}
		(*media)[idx] = item
		return nil
	}
	if len(segs) != 2 {
		return fmt.Errorf("%w: unknown path under media: %q", models.ErrInvalidInput, strings.Join(segs, "."))
	}
	return patchObject(&(*media)[idx], segs[1], raw)
}

// patchObject sets one key on a struct by round-tripping it through its JSON
// form, so sibling fields and pass-through keys survive untouched. The patch
// is applied to a copy first; a type mismatch leaves the target unmodified.
func patchObject[T any](target *T, key string, raw json.RawMessage) error {
	buf, err := json.Marshal(target)
	if err != nil {
		return err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(buf, &m); err != nil {
		return err
	}
	if m == nil {
		m = make(map[string]json.RawMessage)
	}
	m[key] = raw
	merged, err := json.Marshal(m)
	if err != nil {
		return err
	}
	var patched T
	if err := json.Unmarshal(merged, &patched); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	*target = patched
	return nil
}

func isJSONNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}
