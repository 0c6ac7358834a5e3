package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MaxJSONBody caps request bodies of the small JSON endpoints.
const MaxJSONBody = 64 << 10

// DecodeJSON reads a single JSON object from r into v. Malformed or
// oversized bodies are ErrInvalidInput.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, MaxJSONBody)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return fmt.Errorf("%w: request body too large", ErrInvalidInput)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: request body is empty", ErrInvalidInput)
		default:
			return fmt.Errorf("%w: invalid JSON: %v", ErrInvalidInput, err)
		}
	}
	return nil
}
