package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"booking/internal/domain"
	"booking/internal/logger"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationPaymentConfirmed NotificationType = "PAYMENT_CONFIRMED"
	NotificationPaymentFailed    NotificationType = "PAYMENT_FAILED"
	NotificationTripStarted      NotificationType = "TRIP_STARTED"
	NotificationDriverArrived    NotificationType = "DRIVER_ARRIVED"
	NotificationTripCompleted    NotificationType = "TRIP_COMPLETED"
	NotificationBookingCancelled NotificationType = "BOOKING_CANCELLED"
)

// Notification represents a notification to be sent.
type Notification struct {
	Type        NotificationType
	RecipientID string
	Title       string
	Message     string
	Data        map[string]any
	CreatedAt   time.Time
}

// Sender delivers one notification. It reports whether delivery succeeded.
type Sender interface {
	Send(ctx context.Context, userID, title, body string, metadata map[string]any) bool
}

// LogSender is a Sender that only writes the notification to the log.
type LogSender struct {
	logg *logger.Logger
}

// NewLogSender creates a new LogSender.
func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

// Send logs the notification and reports success.
func (s *LogSender) Send(ctx context.Context, userID, title, body string, metadata map[string]any) bool {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"recipient_id": userID,
		"title":        title,
		"metadata":     metadata,
	})
	s.logg.Info(logCtx, body)
	return true
}

// NotificationService sends user notifications off the request path.
// Delivery is best-effort and never fails the caller.
type NotificationService struct {
	sender  Sender
	logg    *logger.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(sender Sender, logg *logger.Logger, timeout time.Duration) *NotificationService {
	if logg == nil {
		logg = logger.Nop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NotificationService{sender: sender, logg: logg, timeout: timeout}
}

// NotifyPaymentConfirmed tells the user their booking is paid.
func (s *NotificationService) NotifyPaymentConfirmed(ctx context.Context, booking *domain.Booking, intent *domain.PaymentIntent) {
	s.dispatch(ctx, Notification{
		Type:        NotificationPaymentConfirmed,
		RecipientID: booking.UserID,
		Title:       "Payment Confirmed",
		Message:     fmt.Sprintf("Payment of %s for booking %s was received", intent.Amount.StringFixed(2), booking.BookingNumber),
		Data: map[string]any{
			"booking_id":        booking.ID,
			"booking_kind":      string(booking.Kind),
			"booking_number":    booking.BookingNumber,
			"gateway_reference": intent.GatewayReference,
		},
	})
}

// NotifyPaymentFailed tells the user a payment attempt failed.
func (s *NotificationService) NotifyPaymentFailed(ctx context.Context, intent *domain.PaymentIntent) {
	s.dispatch(ctx, Notification{
		Type:        NotificationPaymentFailed,
		RecipientID: intent.UserID,
		Title:       "Payment Failed",
		Message:     fmt.Sprintf("Payment of %s failed. Please try again.", intent.Amount.StringFixed(2)),
		Data: map[string]any{
			"gateway_reference": intent.GatewayReference,
			"booking_number":    intent.BookingNumber,
		},
	})
}

// NotifyStatusChanged tells the user about a lifecycle step they care about.
// Steps without a user-facing message are skipped.
func (s *NotificationService) NotifyStatusChanged(ctx context.Context, booking *domain.Booking) {
	var notificationType NotificationType
	var title, message string

	switch booking.Status {
	case domain.BookingStatusEnRoutePickup:
		notificationType, title, message = NotificationTripStarted, "Trip Started", "Your driver is on the way to the pickup point."
	case domain.BookingStatusAtPickup:
		notificationType, title, message = NotificationDriverArrived, "Driver Arrived", "Your driver has arrived at the pickup point."
	case domain.BookingStatusCompleted:
		notificationType, title, message = NotificationTripCompleted, "Trip Completed", "Your trip is complete. Thank you for riding with us."
	case domain.BookingStatusCancelled:
		notificationType, title, message = NotificationBookingCancelled, "Booking Cancelled", "Your booking has been cancelled."
	default:
		return
	}

	s.dispatch(ctx, Notification{
		Type:        notificationType,
		RecipientID: booking.UserID,
		Title:       title,
		Message:     message,
		Data: map[string]any{
			"booking_id":     booking.ID,
			"booking_kind":   string(booking.Kind),
			"booking_number": booking.BookingNumber,
			"status":         string(booking.Status),
			"cancel_reason":  booking.CancelReason,
		},
	})
}

// Wait blocks until every in-flight notification has finished.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

// dispatch sends asynchronously on a context detached from the caller's
// cancellation and bounded by the service timeout.
func (s *NotificationService) dispatch(ctx context.Context, notification Notification) {
	if s == nil || s.sender == nil || notification.RecipientID == "" {
		return
	}
	notification.CreatedAt = time.Now()

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				s.logg.Error(sendCtx, "notification sender panicked", fmt.Errorf("%v", r))
			}
		}()

		logCtx := s.logg.WithFields(sendCtx, map[string]any{
			"notification_type": string(notification.Type),
			"recipient_id":      notification.RecipientID,
		})
		if !s.sender.Send(sendCtx, notification.RecipientID, notification.Title, notification.Message, notification.Data) {
			s.logg.Warn(logCtx, "notification delivery failed")
		}
	}()
}
