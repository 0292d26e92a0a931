package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const strictSuffix = "\n\nYour previous answer could not be used (%s). " +
	"Return ONLY one valid JSON object that follows the required structure. No prose, no markdown."

// ParseJSON extracts and unmarshals the first JSON object or array in a model
// response, tolerating surrounding prose and markdown fences
func ParseJSON[T any](response string) (T, error) {
	var zero T

	text := strings.TrimSpace(response)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	lastErr := errors.New("no JSON found in response")
	for _, opener := range jsonOpeners(text) {
		start := strings.IndexByte(text, opener)
		closer := byte('}')
		if opener == '[' {
			closer = ']'
		}
		end := strings.LastIndexByte(text, closer)
		if end < start {
			lastErr = errors.New("unterminated JSON in response")
			continue
		}

		var result T
		if err := json.Unmarshal([]byte(text[start:end+1]), &result); err != nil {
			lastErr = fmt.Errorf("unmarshal JSON: %w", err)
			continue
		}
		return result, nil
	}
	return zero, lastErr
}

// jsonOpeners orders '{' and '[' by their first appearance in text
func jsonOpeners(text string) []byte {
	obj, arr := strings.IndexByte(text, '{'), strings.IndexByte(text, '[')
	switch {
	case obj == -1 && arr == -1:
		return nil
	case obj == -1:
		return []byte{'['}
	case arr == -1:
		return []byte{'{'}
	case arr < obj:
		return []byte{'[', '{'}
	default:
		return []byte{'{', '['}
	}
}

// CallJSON runs a JSON completion, parses it into T and validates it. On a
// parse or validation failure it retries once with a stricter instruction at
// temperature 0. A second failure returns ErrSchemaViolation; provider
// failures return ErrProvidersExhausted unchanged.
func CallJSON[T any](ctx context.Context, c Client, req Request, validate func(*T) error) (T, error) {
	var zero T
	req.JSON = true

	resp, err := c.Generate(ctx, req)
	if err != nil {
		return zero, err
	}
	result, perr := parseAndValidate(resp.Text, validate)
	if perr == nil {
		return result, nil
	}

	strict := req
	strict.User = req.User + fmt.Sprintf(strictSuffix, perr.Error())
	strict.Deterministic = true

	resp, err = c.Generate(ctx, strict)
	if err != nil {
		return zero, err
	}
	result, perr = parseAndValidate(resp.Text, validate)
	if perr != nil {
		return zero, fmt.Errorf("%w: %w", ErrSchemaViolation, perr)
	}
	return result, nil
}

func parseAndValidate[T any](text string, validate func(*T) error) (T, error) {
	result, err := ParseJSON[T](text)
	if err != nil {
		return result, err
	}
	if validate != nil {
		if err := validate(&result); err != nil {
			return result, fmt.Errorf("invalid response: %w", err)
		}
	}
	return result, nil
}
