// Package calendar mirrors appointments into Google Calendar.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	_ "time/tzdata"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/wolfman30/salon-booking-platform/internal/appointments"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

const defaultTimezone = "Asia/Bangkok"

// Config controls the Google Calendar client.
type Config struct {
	CalendarID      string
	CredentialsFile string
	Timezone        string
	// Endpoint overrides the API base URL.
	Endpoint string
	Timeout  time.Duration
}

// Client writes appointment events to one calendar. A nil *Client is a
// disabled client whose operations succeed without doing anything.
type Client struct {
	events     *gcal.EventsService
	calendarID string
	loc        *time.Location
	timeout    time.Duration
	logger     *logging.Logger
}

// New returns nil, nil when no calendar is configured.
func New(ctx context.Context, cfg Config, logger *logging.Logger, opts ...option.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.CalendarID) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("calendar: load timezone %q: %w", tz, err)
	}
	clientOpts := []option.ClientOption{option.WithScopes(gcal.CalendarEventsScope)}
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := gcal.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: create service: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		events:     gcal.NewEventsService(svc),
		calendarID: cfg.CalendarID,
		loc:        loc,
		timeout:    timeout,
		logger:     logger,
	}, nil
}

// Enabled reports whether calls reach Google.
func (c *Client) Enabled() bool {
	return c != nil
}

func (c *Client) toEvent(a appointments.Appointment) *gcal.Event {
	start := a.AppointmentInfo.DateTime.In(c.loc)
	end := a.AppointmentInfo.EndsAt().In(c.loc)
	summary := a.ServiceInfo.Name
	if a.CustomerInfo.Name != "" {
		summary = a.CustomerInfo.Name + " - " + summary
	}
	var desc strings.Builder
	fmt.Fprintf(&desc, "Phone: %s\n", a.CustomerInfo.Phone)
	for _, ad := range a.ServiceInfo.AddOns {
		fmt.Fprintf(&desc, "Add-on: %s\n", ad.Name)
	}
	if a.AppointmentInfo.HasStaff() {
		fmt.Fprintf(&desc, "Staff: %s\n", a.AppointmentInfo.StaffID)
	}
	fmt.Fprintf(&desc, "Total: %d THB", a.PaymentInfo.TotalPrice)
	return &gcal.Event{
		Summary:     summary,
		Description: desc.String(),
		Start:       &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: c.loc.String()},
		End:         &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: c.loc.String()},
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{"appointment_id": a.ID},
		},
	}
}

// UpsertEvent creates or updates the event for a and returns its id. An event
// deleted on the Google side is recreated.
func (c *Client) UpsertEvent(ctx context.Context, a appointments.Appointment) (string, error) {
	if c == nil {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ev := c.toEvent(a)
	if id := a.GoogleCalendarEventID; id != "" {
		updated, err := c.events.Update(c.calendarID, id, ev).Context(ctx).Do()
		if err == nil {
			return updated.Id, nil
		}
		if !isGone(err) {
			return "", fmt.Errorf("calendar: update event %s: %w", id, err)
		}
		c.logger.Info("calendar: event missing, recreating", "appointment_id", a.ID, "event_id", id)
	}
	created, err := c.events.Insert(c.calendarID, ev).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("calendar: insert event: %w", err)
	}
	return created.Id, nil
}

// DeleteEvent removes an event. Already deleted events count as success.
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	if c == nil || eventID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.events.Delete(c.calendarID, eventID).Context(ctx).Do(); err != nil && !isGone(err) {
		return fmt.Errorf("calendar: delete event %s: %w", eventID, err)
	}
	return nil
}

func isGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}
