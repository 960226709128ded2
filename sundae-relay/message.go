package sundaerelay

import (
	"encoding/json"
	"fmt"
)

// Content variants, keyed by their wire name.
const (
	ContentMessage = "message"
)

// Message is the body of a sendmessage event and the payload broadcast to
// every connection.
type Message struct {
	Action   string  `json:"action"`
	Username string  `json:"username"`
	Content  Content `json:"content"`
}

// Content is a tagged union encoded as a single-key object, e.g.
// {"message":"hello"}. Exactly one field is set.
type Content struct {
	Message *string
}

func TextContent(text string) Content {
	return Content{Message: &text}
}

// Kind returns the wire name of the variant held, or "" if none is.
func (c Content) Kind() string {
	switch {
	case c.Message != nil:
		return ContentMessage
	default:
		return ""
	}
}

func (c Content) MarshalJSON() ([]byte, error) {
	switch {
	case c.Message != nil:
		return json.Marshal(map[string]string{ContentMessage: *c.Message})
	default:
		return nil, fmt.Errorf("%w: no variant set", ErrUnknownContent)
	}
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var variants map[string]json.RawMessage
	if err := json.Unmarshal(data, &variants); err != nil {
		return fmt.Errorf("%w: content must be an object: %w", ErrUnknownContent, err)
	}
	if len(variants) != 1 {
		return fmt.Errorf("%w: expected exactly one variant, got %d", ErrUnknownContent, len(variants))
	}

	for kind, raw := range variants {
		switch kind {
		case ContentMessage:
			var text string
			if err := json.Unmarshal(raw, &text); err != nil {
				return fmt.Errorf("%w: content %v must be a string: %w", ErrValidation, kind, err)
			}
			*c = Content{Message: &text}
		default:
			return fmt.Errorf("%w: %q", ErrUnknownContent, kind)
		}
	}
	return nil
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Action   *string  `json:"action"`
		Username *string  `json:"username"`
		Content  *Content `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch {
	case raw.Action == nil:
		return fmt.Errorf("%w: action", ErrMissingField)
	case raw.Username == nil:
		return fmt.Errorf("%w: username", ErrMissingField)
	case raw.Content == nil:
		return fmt.Errorf("%w: content", ErrMissingField)
	}

	*m = Message{
		Action:   *raw.Action,
		Username: *raw.Username,
		Content:  *raw.Content,
	}
	return nil
}

// ParseMessage decodes a sendmessage body. Every failure wraps ErrValidation.
func ParseMessage(body string) (Message, error) {
	if body == "" {
		return Message{}, fmt.Errorf("%w: body", ErrMissingField)
	}

	var msg Message
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		if IsValidation(err) {
			return Message{}, err
		}
		return Message{}, fmt.Errorf("%w: invalid message: %w", ErrValidation, err)
	}
	return msg, nil
}

// Encode serializes the message into the payload delivered to clients.
func (m Message) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshalling message: %w", err)
	}
	return b, nil
}
