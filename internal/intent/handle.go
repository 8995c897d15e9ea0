package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Decode parses a payload. Empty or whitespace-only input yields ok == false.
func Decode(r io.Reader) (p Payload, ok bool, err error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Payload{}, false, fmt.Errorf("%w: failed to read input: %w", ErrInvalidInput, err)
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Payload{}, false, nil
	}

	if raw[0] != '{' {
		return Payload{}, false, fmt.Errorf("%w: payload must be a JSON object", ErrInvalidInput)
	}

	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, false, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	return p, true, nil
}

// Handle reads one payload from r and resolves it. It never fails: every
// error is folded into the returned decision.
func Handle(ctx context.Context, r io.Reader, res *Resolver) Decision {
	p, ok, err := Decode(r)
	if err != nil {
		return Failed(err)
	}
	if !ok {
		return NoMatch()
	}

	return ResolvePayload(ctx, res, p)
}

// ResolvePayload resolves p and folds any error into the decision.
func ResolvePayload(ctx context.Context, res *Resolver, p Payload) Decision {
	d, err := res.Resolve(ctx, p.Transcript, p.Commands)
	if err != nil {
		return Failed(err)
	}

	return d
}

// Write emits d as exactly one line of JSON. A decision that cannot be
// encoded is replaced by a failed decision naming the encoding error.
func Write(w io.Writer, d Decision) error {
	data, err := json.Marshal(d)
	if err != nil {
		data, err = json.Marshal(Failed(fmt.Errorf("intent: failed to encode decision: %w", err)))
		if err != nil {
			return err
		}
	}

	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
