package relay

import "strings"

// Message is the caller-supplied content of one transactional send. It is
// immutable once accepted by the engine.
type Message struct {
	To       []string
	Subject  string
	Body     string
	Metadata map[string]string
}

func (m Message) validate() error {
	if len(m.To) == 0 {
		return ErrRecipientsRequired
	}

	for _, recipient := range m.To {
		if strings.TrimSpace(recipient) == "" {
			return ErrRecipientsRequired
		}
	}

	return nil
}
