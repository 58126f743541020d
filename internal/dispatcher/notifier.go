package dispatcher

import (
	"go.uber.org/zap"

	"github.com/develper21/kyvro/internal/whatsapp"
)

// ProgressEvent is emitted when dispatch crosses a progress milestone.
type ProgressEvent struct {
	CampaignID    int64 `json:"campaign_id"`
	Percent       int   `json:"percent"`
	SentCount     int   `json:"sent_count"`
	TotalContacts int   `json:"total_contacts"`
}

// MessageFailedEvent is emitted for every message reaching the failed state.
type MessageFailedEvent struct {
	CampaignID   int64              `json:"campaign_id"`
	ContactID    int64              `json:"contact_id"`
	ErrorKind    whatsapp.ErrorKind `json:"error_kind"`
	ErrorMessage string             `json:"error_message"`
}

// CompletedEvent is emitted once every message reached a terminal state.
type CompletedEvent struct {
	CampaignID     int64 `json:"campaign_id"`
	SentCount      int   `json:"sent_count"`
	DeliveredCount int   `json:"delivered_count"`
	FailedCount    int   `json:"failed_count"`
}

// Notifier surfaces dispatch lifecycle events to a user-facing layer.
// Implementations must not block: the dispatcher calls them from the
// completion path of queue tasks.
type Notifier interface {
	CampaignProgress(event ProgressEvent)
	MessageFailed(event MessageFailedEvent)
	CampaignCompleted(event CompletedEvent)
}

// ZapNotifier writes lifecycle events to the structured log. It is the
// default notifier when no user-facing layer is attached.
type ZapNotifier struct {
	logger *zap.Logger
}

func NewZapNotifier(logger *zap.Logger) *ZapNotifier {
	return &ZapNotifier{logger: logger}
}

func (n *ZapNotifier) CampaignProgress(event ProgressEvent) {
	n.logger.Info("Campaign progress",
		zap.Int64("campaign_id", event.CampaignID),
		zap.Int("percent", event.Percent),
		zap.Int("sent", event.SentCount),
		zap.Int("total", event.TotalContacts))
}

func (n *ZapNotifier) MessageFailed(event MessageFailedEvent) {
	n.logger.Warn("Message failed",
		zap.Int64("campaign_id", event.CampaignID),
		zap.Int64("contact_id", event.ContactID),
		zap.String("error_kind", string(event.ErrorKind)),
		zap.String("error", event.ErrorMessage))
}

func (n *ZapNotifier) CampaignCompleted(event CompletedEvent) {
	n.logger.Info("Campaign completed",
		zap.Int64("campaign_id", event.CampaignID),
		zap.Int("sent", event.SentCount),
		zap.Int("delivered", event.DeliveredCount),
		zap.Int("failed", event.FailedCount))
}
