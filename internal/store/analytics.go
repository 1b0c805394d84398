package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
)

// Analytics event types.
const (
	EventMessage         = "message"
	EventOrderPlaced     = "order_placed"
	EventSupportTicket   = "support_ticket"
	EventReviewSubmitted = "review_submitted"
)

// Event is one chat_analytics entry.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"event_type"`
	SessionID string         `json:"session_id"`
	Intent    string         `json:"intent,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Hour      int            `json:"hour"`
	Date      string         `json:"date"`
}

// NewEvent stamps an event at now with a fresh ULID.
func NewEvent(eventType, sessionID, intent string, metadata map[string]any, now time.Time) Event {
	return Event{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Type:      eventType,
		SessionID: sessionID,
		Intent:    intent,
		Metadata:  metadata,
		Timestamp: now,
		Hour:      now.Hour(),
		Date:      now.Format(time.DateOnly),
	}
}

// DailySummary aggregates one calendar day.
type DailySummary struct {
	Date           string         `json:"date"`
	TotalSessions  int            `json:"total_sessions"`
	TotalEvents    int            `json:"total_events"`
	Intents        map[string]int `json:"intents"`
	Hourly         map[int]int    `json:"hourly_distribution"`
	OrdersFromChat int            `json:"orders_from_chat"`
	ConversionRate float64        `json:"conversion_rate"`
}

// IntentCount is a TopIntents row.
type IntentCount struct {
	Intent string `json:"intent"`
	Count  int    `json:"count"`
}

// HourCount is a PeakHours row.
type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// ConversionStats summarises how often chats turn into orders.
type ConversionStats struct {
	TotalSessions  int     `json:"total_sessions"`
	OrdersFromChat int     `json:"orders_from_chat"`
	SupportTickets int     `json:"support_tickets"`
	ConversionRate float64 `json:"conversion_rate"`
	PeriodDays     int     `json:"period_days"`
}

// Analytics computes dashboard aggregates over an AnalyticsStore.
type Analytics struct {
	src AnalyticsStore
	now func() time.Time
}

// NewAnalytics returns an aggregator reading from src. A nil now uses time.Now.
func NewAnalytics(src AnalyticsStore, now func() time.Time) *Analytics {
	if now == nil {
		now = time.Now
	}
	return &Analytics{src: src, now: now}
}

// DailySummary aggregates the calendar day containing day, in day's location.
func (a *Analytics) DailySummary(ctx context.Context, day time.Time) (DailySummary, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	sessions, err := a.src.CountSessionsCreated(ctx, start, end)
	if err != nil {
		return DailySummary{}, fmt.Errorf("count sessions: %w", err)
	}
	events, err := a.src.Events(ctx, start, end)
	if err != nil {
		return DailySummary{}, fmt.Errorf("load events: %w", err)
	}

	out := DailySummary{
		Date:          start.Format(time.DateOnly),
		TotalSessions: sessions,
		TotalEvents:   len(events),
		Intents:       map[string]int{},
		Hourly:        map[int]int{},
	}
	for _, e := range events {
		if e.Intent != "" {
			out.Intents[e.Intent]++
		}
		out.Hourly[e.Hour]++
		if e.Type == EventOrderPlaced {
			out.OrdersFromChat++
		}
	}
	out.ConversionRate = rate(out.OrdersFromChat, sessions)
	return out, nil
}

// TopIntents returns the most frequent intents over the last days, most frequent first.
func (a *Analytics) TopIntents(ctx context.Context, days, limit int) ([]IntentCount, error) {
	events, err := a.window(ctx, days)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, e := range events {
		if e.Intent != "" {
			counts[e.Intent]++
		}
	}
	out := make([]IntentCount, 0, len(counts))
	for intent, n := range counts {
		out = append(out, IntentCount{Intent: intent, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Intent < out[j].Intent
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PeakHours returns event counts per hour of day over the last days, by hour.
func (a *Analytics) PeakHours(ctx context.Context, days int) ([]HourCount, error) {
	events, err := a.window(ctx, days)
	if err != nil {
		return nil, err
	}
	counts := map[int]int{}
	for _, e := range events {
		counts[e.Hour]++
	}
	out := make([]HourCount, 0, len(counts))
	for h, n := range counts {
		out = append(out, HourCount{Hour: h, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour < out[j].Hour })
	return out, nil
}

// ConversionStats reports orders and support tickets against sessions over the last days.
func (a *Analytics) ConversionStats(ctx context.Context, days int) (ConversionStats, error) {
	now := a.now()
	from := now.AddDate(0, 0, -days)
	sessions, err := a.src.CountSessionsCreated(ctx, from, now.Add(time.Second))
	if err != nil {
		return ConversionStats{}, fmt.Errorf("count sessions: %w", err)
	}
	events, err := a.src.Events(ctx, from, now.Add(time.Second))
	if err != nil {
		return ConversionStats{}, fmt.Errorf("load events: %w", err)
	}
	out := ConversionStats{TotalSessions: sessions, PeriodDays: days}
	for _, e := range events {
		switch e.Type {
		case EventOrderPlaced:
			out.OrdersFromChat++
		case EventSupportTicket:
			out.SupportTickets++
		}
	}
	out.ConversionRate = rate(out.OrdersFromChat, sessions)
	return out, nil
}

func (a *Analytics) window(ctx context.Context, days int) ([]Event, error) {
	now := a.now()
	events, err := a.src.Events(ctx, now.AddDate(0, 0, -days), now.Add(time.Second))
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	return events, nil
}

// rate is orders per session as a percentage rounded to two decimals.
func rate(orders, sessions int) float64 {
	if sessions == 0 {
		return 0
	}
	return math.Round(float64(orders)/float64(sessions)*100*100) / 100
}
