package mail

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// LogSender renders messages and writes them to a standard logger instead of
// delivering them. For development and tests only: the one-time code ends up
// in the log output.
type LogSender struct {
	Logger *log.Logger
}

// Send renders the named template and logs the result.
func (s *LogSender) Send(_ context.Context, template string, recipient string, data map[string]string) (string, error) {
	rendered, err := render(template, data)
	if err != nil {
		return "", err
	}

	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}

	messageID := uuid.NewString() + "@log"
	logger.Printf("mail to=%s template=%s subject=%q id=%s\n%s", recipient, template, rendered.Subject, messageID, rendered.Body)

	return messageID, nil
}
