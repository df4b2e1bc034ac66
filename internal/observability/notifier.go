package observability

import (
	"context"
	"fmt"
	"strings"
)

// Poster publishes a standalone message to a chat channel.
type Poster interface {
	Post(ctx context.Context, channelID, text string) (string, error)
}

// Notifier sends alert notifications to an external channel.
type Notifier interface {
	Notify(ctx context.Context, alerts []Alert) error
}

type chatNotifier struct {
	poster    Poster
	channelID string
}

// NewChatNotifier creates a Notifier that posts alert summaries to channelID.
func NewChatNotifier(poster Poster, channelID string) Notifier {
	return &chatNotifier{poster: poster, channelID: channelID}
}

// Notify posts one message listing every alert. It makes no request when
// alerts is empty.
func (n *chatNotifier) Notify(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	if n.channelID == "" {
		return fmt.Errorf("posting alerts: no channel configured")
	}
	if _, err := n.poster.Post(ctx, n.channelID, FormatAlerts(alerts)); err != nil {
		return fmt.Errorf("posting alerts: %w", err)
	}
	return nil
}

// FormatAlerts renders alerts as a chat message.
func FormatAlerts(alerts []Alert) string {
	var b strings.Builder
	b.WriteString("*devflow alerts*")
	for _, alert := range alerts {
		fmt.Fprintf(&b, "\n%s *[%s]* %s", severityEmoji(alert.Severity), strings.ToUpper(string(alert.Severity)), alert.Message)
	}
	return b.String()
}

func severityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityHigh:
		return "\U0001f534"
	case SeverityMedium:
		return "\U0001f7e1"
	case SeverityLow:
		return "\U0001f535"
	default:
		return "❓"
	}
}
