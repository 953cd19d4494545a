package order

import "errors"

var (
	// ErrInvalidTransition is returned for illegal state-machine edges. The
	// order is left untouched and no event is emitted.
	ErrInvalidTransition = errors.New("invalid order transition")
	// ErrNotFound indicates the order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrConflict indicates a concurrent mutation won the race; reload and
	// retry, never overwrite.
	ErrConflict = errors.New("order modified concurrently")
	// ErrTrackingRequired is returned when fulfillment is attempted without
	// a tracking number.
	ErrTrackingRequired = errors.New("tracking number is required")
)

// CanTransitionStatus validates an order_status edge. pending advances to
// processing, processing to completed; pending and processing may cancel.
// completed and canceled are terminal.
func CanTransitionStatus(from, to Status) bool {
	if from == to {
		return false
	}
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusCanceled
	case StatusProcessing:
		return to == StatusCompleted || to == StatusCanceled
	default:
		return false
	}
}

// CanTransitionPayment validates a payment_status edge for the channel.
// paid is sticky: the only way out is an explicit refund, and only on the
// retail channel.
func CanTransitionPayment(channel Channel, from, to PaymentStatus) bool {
	if from == to {
		return false
	}
	switch channel {
	case ChannelWholesale:
		switch from {
		case PaymentAwaiting:
			return to == PaymentPaid || to == PaymentOverdue
		case PaymentOverdue:
			return to == PaymentPaid
		default:
			return false
		}
	default:
		switch from {
		case PaymentPending:
			return to == PaymentPaid
		case PaymentPaid:
			return to == PaymentRefunded
		default:
			return false
		}
	}
}

// InitialPaymentStatus returns the payment axis starting point per channel.
func InitialPaymentStatus(channel Channel) PaymentStatus {
	if channel == ChannelWholesale {
		return PaymentAwaiting
	}
	return PaymentPending
}

// ValidPaymentStatus reports whether the value belongs to the channel's
// enumeration.
func ValidPaymentStatus(channel Channel, s PaymentStatus) bool {
	if channel == ChannelWholesale {
		return s == PaymentAwaiting || s == PaymentPaid || s == PaymentOverdue
	}
	return s == PaymentPending || s == PaymentPaid || s == PaymentRefunded
}

// ParseStatus validates an externally supplied order status value.
func ParseStatus(value string) (Status, bool) {
	switch Status(value) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCanceled:
		return Status(value), true
	}
	return "", false
}

// ParsePaymentStatus validates an externally supplied payment status value.
func ParsePaymentStatus(value string) (PaymentStatus, bool) {
	switch PaymentStatus(value) {
	case PaymentPending, PaymentAwaiting, PaymentPaid, PaymentOverdue, PaymentRefunded:
		return PaymentStatus(value), true
	}
	return "", false
}
