package models

// ReplyKind identifies which narrative unit a resolved turn produced.
type ReplyKind string

const (
	// ReplyOpening re-states the active chapter's opening message.
	ReplyOpening ReplyKind = "opening"
	// ReplyBranch is a branch's response message.
	ReplyBranch ReplyKind = "branch"
	// ReplyFollowUp is one step of a branch's follow-up sequence.
	ReplyFollowUp ReplyKind = "follow_up"
	// ReplyFreeRoam signals that the turn must be handled by the free-roam
	// bridge; Text is empty and the engine produced no scripted unit.
	ReplyFreeRoam ReplyKind = "free_roam"
)

// ReplyUnit is what the character sends for one resolved turn.
type ReplyUnit struct {
	Kind  ReplyKind   `json:"kind"`
	Text  string      `json:"text"`
	Media []MediaItem `json:"media,omitempty"`
}
