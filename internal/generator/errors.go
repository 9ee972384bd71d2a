package generator

import (
	"errors"
	"fmt"

	"github.com/ivlev/cruisereel/internal/source"
	"github.com/ivlev/cruisereel/internal/video"
)

var (
	// ErrNoJournalData means the journal store had nothing for the cruise.
	ErrNoJournalData = errors.New("no journal data")
	// ErrCancelled means the run was cancelled before any frame was produced.
	ErrCancelled = errors.New("cancelled")
)

// UserMessage maps a run error onto text that is safe to show end users.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return "Video generation was cancelled."
	case errors.Is(err, ErrNoJournalData):
		return "There are no journal entries for this cruise yet."
	case errors.Is(err, source.ErrNoDisplayablePhotos):
		return "None of the photos in this journal could be loaded."
	case errors.Is(err, video.ErrEncoderInit):
		return "Video encoding is not available on this device."
	case errors.Is(err, video.ErrEncoderRuntime):
		return "Video encoding failed. Please try again."
	}
	return "Something went wrong while creating the video."
}

// SkipMessage is the non-fatal job error recorded for a photo that was left out.
func SkipMessage(photoID string) string {
	return fmt.Sprintf("Photo %s could not be loaded and was left out.", photoID)
}
