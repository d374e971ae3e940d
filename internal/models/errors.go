package models

import "errors"

// Application-wide standard errors
var (
	// Common resource errors
	ErrNotFound = errors.New("resource not found")

	// Chapter store errors
	ErrDuplicateChapterNumber = errors.New("chapter number already used for this character")

	// Progression errors
	ErrNoStoryContent = errors.New("no story content available for this character")

	// Editor errors
	ErrEditorSessionNotFound = errors.New("editor session not found")
	ErrDocumentBlocked       = errors.New("raw document is invalid; visual edits are blocked")

	// General request errors
	ErrInvalidInput = errors.New("invalid input data")
)
