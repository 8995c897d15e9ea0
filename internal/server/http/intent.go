package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/echocode-voice/internal/intent"
)

type (
	// ResolveInput reads the body itself so that decoding follows the same
	// rules as the command line: empty input is "none", malformed JSON is a
	// decision carrying an error. Declaring a body field would let huma reject
	// those requests before the handler runs.
	ResolveInput struct {
		raw     []byte
		readErr error
	}

	ResolveOutput struct {
		Body intent.Decision
	}
)

// IntentHandler handles HTTP requests for intent resolution.
type IntentHandler struct {
	resolver IntentResolver
}

// NewIntentHandler creates a new IntentHandler instance.
func NewIntentHandler(api huma.API, resolver IntentResolver) *IntentHandler {
	h := &IntentHandler{resolver: resolver}

	huma.Register(api, huma.Operation{
		OperationID:   "resolve-intent",
		Method:        http.MethodPost,
		Path:          "/v1/intent",
		Summary:       "Resolve an utterance to a catalog command",
		Description:   "Always answers 200. Failures are reported in the error field with command \"none\".",
		Tags:          []string{"intent"},
		DefaultStatus: http.StatusOK,
	}, h.handleResolve)

	return h
}

// maxIntentBody bounds the payload read from a single request.
const maxIntentBody = 8 << 20

// Resolve implements huma.Resolver and captures the request body.
func (i *ResolveInput) Resolve(ctx huma.Context) []error {
	r := ctx.BodyReader()
	if r == nil {
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(r, maxIntentBody+1))
	switch {
	case err != nil:
		i.readErr = fmt.Errorf("%w: failed to read request body: %v", intent.ErrInvalidInput, err)
	case len(raw) > maxIntentBody:
		i.readErr = fmt.Errorf("%w: request body exceeds %d bytes", intent.ErrInvalidInput, maxIntentBody)
	default:
		i.raw = raw
	}

	return nil
}

// handleResolve handles the resolve-intent operation.
func (h *IntentHandler) handleResolve(ctx context.Context, input *ResolveInput) (*ResolveOutput, error) {
	if input.readErr != nil {
		return &ResolveOutput{Body: intent.Failed(input.readErr)}, nil
	}

	p, ok, err := intent.Decode(bytes.NewReader(input.raw))
	switch {
	case err != nil:
		return &ResolveOutput{Body: intent.Failed(err)}, nil
	case !ok:
		return &ResolveOutput{Body: intent.NoMatch()}, nil
	}

	return &ResolveOutput{Body: h.resolver.Resolve(ctx, p)}, nil
}
