package enum

// ── State machines (CHECK constrained in DB) ──

const (
	OrderStatusReceived  = "RECEIVED"
	OrderStatusPreparing = "PREPARING"
	OrderStatusReady     = "READY"
	OrderStatusDelivered = "DELIVERED"
	OrderStatusCancelled = "CANCELLED"
)

const (
	UnitStatusAvailable = "AVAILABLE"
	UnitStatusReserved  = "RESERVED"
	UnitStatusSold      = "SOLD"
	UnitStatusExpired   = "EXPIRED"
	UnitStatusDiscarded = "DISCARDED"
)

// ── Configurable labels (no DB constraint) ──

const (
	PaymentMethodCash     = "CASH"
	PaymentMethodPix      = "PIX"
	PaymentMethodCard     = "CARD"
	PaymentMethodTransfer = "TRANSFER"
)
