package stt

import (
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// Sentinel errors for the two service responses the dispatcher reacts to.
// Everything else is a transport/unknown error and is logged and survived.
var (
	// ErrRateLimited means the service returned an HTTP 429 equivalent.
	ErrRateLimited = errors.New("stt: rate limited")

	// ErrBadPayload means the service rejected the audio payload (HTTP 400
	// equivalent), usually a container the service cannot decode or a
	// payload over its size cap.
	ErrBadPayload = errors.New("stt: bad payload")
)

// classifyAPIError maps an OpenAI API error onto the dispatcher's taxonomy.
// Unrecognized errors pass through unchanged.
func classifyAPIError(err error) error {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.HTTPStatusCode {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return ErrBadPayload
	default:
		return err
	}
}
