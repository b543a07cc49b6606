package emission

// Wire names of server -> client events.
const (
	EventOrderCreated        = "order:created"
	EventOrderStatusChanged  = "order:status-changed"
	EventYourStatusChanged   = "order:your-status-changed"
	EventOrderPaymentUpdated = "order:payment-updated"
	EventYourPaymentUpdated  = "order:your-payment-updated"
	EventOrderRefunded       = "order:refunded"
	EventOrderDeleted        = "order:deleted"
	EventOrderEstimatedTime  = "order:estimatedTime"
	EventNotification        = "notification"
	EventAnnouncement        = "announcement"
)
