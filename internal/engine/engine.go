package engine

import (
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"storyline-server/internal/models"
	"storyline-server/internal/schema"
)

var (
	danglingRecoveries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storyline",
		Name:      "dangling_chapter_recoveries_total",
		Help:      "Branches that pointed past authored content and degraded into free roam.",
	})
	unrecognizedChoices = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storyline",
		Name:      "unrecognized_choices_total",
		Help:      "Turns where no branch matched the user input and the opening was re-emitted.",
	})
	authoringErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storyline",
		Name:      "authoring_errors_total",
		Help:      "Content problems detected at play time (zero increment without free roam, corrupt documents).",
	})
)

// Input is what the user sent for one turn. ChoiceID is the id of the branch
// button the client pressed and is authoritative; Text is free-form and is
// matched best-effort against branch labels.
type Input struct {
	ChoiceID string
	Text     string
}

// Engine resolves one storyline turn. It is read-only over chapters and holds
// no state of its own; the position goes in as a value and comes back out.
type Engine struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Engine {
	return &Engine{logger: logger.Named("ProgressionEngine")}
}

// Advance resolves the next narrative unit for a user and computes the next
// position to persist. A position is always returned, even when nothing
// advances, so the caller has a stable value to write back.
//
// The only error it returns is models.ErrNoStoryContent, when the character
// has no chapters at all; every other failure mode degrades gracefully
// (re-emit the opening, or hand over to free roam).
func (e *Engine) Advance(pos models.ProgressPosition, chapters []models.Chapter, in Input) (models.ReplyUnit, models.ProgressPosition, error) {
	// Once free roam is unlocked, chapter content is never consulted again.
	if pos.FreeRoamUnlocked {
		return models.ReplyUnit{Kind: models.ReplyFreeRoam}, pos, nil
	}

	if len(chapters) == 0 {
		return models.ReplyUnit{}, pos, models.ErrNoStoryContent
	}

	ordered := sortedByNumber(chapters)
	active := chapterByNumber(ordered, pos.CurrentChapterNumber)
	if active == nil {
		// Dangling position (deleted chapter or first-ever turn): fall back
		// to the lowest-numbered chapter and repair the stored position.
		active = &ordered[0]
		pos.CurrentChapterNumber = active.ChapterNumber
		pos.ClearBranchState()
	}

	doc, err := schema.Parse(active.Content)
	if err != nil {
		// Stored content corrupted out-of-band. Never fatal for the user:
		// hand this turn to free roam without flipping the persistent flag.
		e.logger.Error("stored chapter content failed validation",
			zap.Stringer("characterID", pos.CharacterID),
			zap.Int("chapterNumber", active.ChapterNumber),
			zap.Error(err))
		authoringErrors.Inc()
		return models.ReplyUnit{Kind: models.ReplyFreeRoam}, pos, nil
	}

	if pos.CurrentFollowUpIndex != nil {
		return e.advanceFollowUp(pos, ordered, doc)
	}

	branch := e.resolveBranch(doc, in)
	if branch == nil {
		// Unrecognized input: restate the opening instead of silently
		// dropping the user out of the story. Position does not advance.
		unrecognizedChoices.Inc()
		return models.ReplyUnit{Kind: models.ReplyOpening, Text: doc.OpeningMessage}, pos, nil
	}

	reply := models.ReplyUnit{Kind: models.ReplyBranch, Text: branch.ResponseMessage, Media: branch.Media}
	if len(branch.FollowUp) > 0 {
		id := branch.ID
		zero := 0
		pos.CurrentBranchID = &id
		pos.CurrentFollowUpIndex = &zero
		return reply, pos, nil
	}
	return reply, e.applyBranchEffects(pos, ordered, branch), nil
}

// advanceFollowUp emits the pending follow-up step. Follow-ups are
// non-branching: no choice resolution happens while one is in flight, and the
// branch's terminal effects apply only once the sequence is exhausted.
func (e *Engine) advanceFollowUp(pos models.ProgressPosition, chapters []models.Chapter, doc *models.ContentDocument) (models.ReplyUnit, models.ProgressPosition, error) {
	opening := models.ReplyUnit{Kind: models.ReplyOpening, Text: doc.OpeningMessage}

	if pos.CurrentBranchID == nil {
		pos.ClearBranchState()
		return opening, pos, nil
	}
	branch := doc.BranchByID(*pos.CurrentBranchID)
	if branch == nil {
		e.logger.Warn("follow-up references a branch that no longer exists",
			zap.Stringer("characterID", pos.CharacterID),
			zap.String("branchID", *pos.CurrentBranchID))
		pos.ClearBranchState()
		return opening, pos, nil
	}

	idx := *pos.CurrentFollowUpIndex
	if idx < 0 || idx >= len(branch.FollowUp) {
		// Content was shortened mid-traversal. Recover without applying
		// effects the author may have removed.
		e.logger.Warn("follow-up index out of range after edit",
			zap.Stringer("characterID", pos.CharacterID),
			zap.String("branchID", branch.ID),
			zap.Int("index", idx),
			zap.Int("followUps", len(branch.FollowUp)))
		pos.ClearBranchState()
		return opening, pos, nil
	}

	step := branch.FollowUp[idx]
	reply := models.ReplyUnit{Kind: models.ReplyFollowUp, Text: step.Response, Media: step.Media}

	if idx+1 < len(branch.FollowUp) {
		next := idx + 1
		pos.CurrentFollowUpIndex = &next
		return reply, pos, nil
	}
	return reply, e.applyBranchEffects(pos, chapters, branch), nil
}

// applyBranchEffects applies a branch's terminal effects: free-roam unlock or
// chapter advance. A branch that points at a chapter nobody authored degrades
// into free roam rather than breaking the conversation.
func (e *Engine) applyBranchEffects(pos models.ProgressPosition, chapters []models.Chapter, branch *models.Branch) models.ProgressPosition {
	pos.ClearBranchState()

	if branch.UnlocksFreeRoam {
		pos.FreeRoamUnlocked = true
		return pos
	}

	inc := branch.Increment()
	if inc == 0 {
		// Authoring error: increment 0 without a free-roam unlock would loop
		// on this chapter forever. Stay put; the next unmatched turn
		// re-emits the opening.
		e.logger.Warn("branch has zero increment without free-roam unlock",
			zap.Stringer("characterID", pos.CharacterID),
			zap.Int("chapterNumber", pos.CurrentChapterNumber),
			zap.String("branchID", branch.ID))
		authoringErrors.Inc()
		return pos
	}

	next := pos.CurrentChapterNumber + inc
	if chapterByNumber(chapters, next) != nil {
		pos.CurrentChapterNumber = next
		return pos
	}

	e.logger.Info("storyline ran off authored content, unlocking free roam",
		zap.Stringer("characterID", pos.CharacterID),
		zap.Int("chapterNumber", pos.CurrentChapterNumber),
		zap.Int("missingChapter", next),
		zap.String("branchID", branch.ID))
	danglingRecoveries.Inc()
	pos.FreeRoamUnlocked = true
	return pos
}

// resolveBranch maps user input to a branch. Choice id is the primary path;
// text matching is a documented best-effort fallback. Ties always break by
// array order, first wins.
func (e *Engine) resolveBranch(doc *models.ContentDocument, in Input) *models.Branch {
	if in.ChoiceID != "" {
		return doc.BranchByID(in.ChoiceID)
	}
	return matchByText(doc.Branches, in.Text)
}

func matchByText(branches []models.Branch, text string) *models.Branch {
	norm := normalize(text)
	if norm == "" {
		return nil
	}

	// Exact label or sample-phrasing match first.
	for i := range branches {
		if normalize(branches[i].Label) == norm || normalize(branches[i].TextOverride) == norm {
			return &branches[i]
		}
	}

	// Then case-insensitive substring containment in either direction.
	for i := range branches {
		for _, candidate := range []string{normalize(branches[i].Label), normalize(branches[i].TextOverride)} {
			if candidate == "" {
				continue
			}
			if strings.Contains(norm, candidate) || strings.Contains(candidate, norm) {
				return &branches[i]
			}
		}
	}

	// Finally keyword overlap; strictly-greater keeps the first on ties.
	inputWords := wordSet(norm)
	best := -1
	bestScore := 0
	for i := range branches {
		score := overlap(inputWords, branches[i].Label) + overlap(inputWords, branches[i].TextOverride)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 {
		return &branches[best]
	}
	return nil
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

func overlap(words map[string]struct{}, candidate string) int {
	n := 0
	for _, w := range strings.Fields(strings.ToLower(candidate)) {
		if _, ok := words[w]; ok {
			n++
		}
	}
	return n
}

func sortedByNumber(chapters []models.Chapter) []models.Chapter {
	ordered := make([]models.Chapter, len(chapters))
	copy(ordered, chapters)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ChapterNumber < ordered[j].ChapterNumber
	})
	return ordered
}

func chapterByNumber(chapters []models.Chapter, number int) *models.Chapter {
	for i := range chapters {
		if chapters[i].ChapterNumber == number {
			return &chapters[i]
		}
	}
	return nil
}
