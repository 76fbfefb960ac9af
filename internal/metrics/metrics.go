// Package metrics holds the Prometheus collectors of the bridge.
//
// All recording methods are safe on a nil *Metrics so components can be built
// without instrumentation in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "subtrack_bridge"

// Scan outcomes, used as the "outcome" label.
const (
	OutcomeSuccess     = "success"
	OutcomeCancelled   = "cancelled"
	OutcomeUnavailable = "unavailable"
	OutcomeFailed      = "failed"
	OutcomeBusy        = "busy"
)

type Metrics struct {
	NotificationsObserved  *prometheus.CounterVec
	NotificationsDelivered prometheus.Counter
	NotificationsDropped   prometheus.Counter
	SubscriptionsReplaced  prometheus.Counter
	PermissionGranted      prometheus.Gauge

	Scans        *prometheus.CounterVec
	ScanPages    *prometheus.CounterVec
	ScanDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NotificationsObserved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_observed_total",
			Help:      "Notification observations reported by the platform, by kind.",
		}, []string{"kind"}),
		NotificationsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_delivered_total",
			Help:      "Notification events handed to the active subscriber.",
		}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notification events dropped because no subscriber was attached.",
		}),
		SubscriptionsReplaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_replaced_total",
			Help:      "Stream subscriptions replaced by a newer subscriber.",
		}),
		PermissionGranted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capture_permission_granted",
			Help:      "1 when the app is in the enabled notification listener registry.",
		}),
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Document scans by terminal outcome.",
		}, []string{"outcome"}),
		ScanPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_pages_total",
			Help:      "Scanned pages by recognition result.",
		}, []string{"result"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_recognition_seconds",
			Help:      "Wall time of the recognition phase of a scan.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.NotificationsObserved,
			m.NotificationsDelivered,
			m.NotificationsDropped,
			m.SubscriptionsReplaced,
			m.PermissionGranted,
			m.Scans,
			m.ScanPages,
			m.ScanDuration,
		)
	}
	return m
}

func (m *Metrics) ObserveNotification(kind string) {
	if m == nil {
		return
	}
	m.NotificationsObserved.WithLabelValues(kind).Inc()
}

func (m *Metrics) NotificationDelivered() {
	if m == nil {
		return
	}
	m.NotificationsDelivered.Inc()
}

func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.NotificationsDropped.Inc()
}

func (m *Metrics) SubscriptionReplaced() {
	if m == nil {
		return
	}
	m.SubscriptionsReplaced.Inc()
}

func (m *Metrics) SetPermission(granted bool) {
	if m == nil {
		return
	}
	if granted {
		m.PermissionGranted.Set(1)
	} else {
		m.PermissionGranted.Set(0)
	}
}

func (m *Metrics) ScanFinished(outcome string) {
	if m == nil {
		return
	}
	m.Scans.WithLabelValues(outcome).Inc()
}

// PagesRecognized records how many pages produced text and how many were absent.
func (m *Metrics) PagesRecognized(recognized, absent int) {
	if m == nil {
		return
	}
	m.ScanPages.WithLabelValues("recognized").Add(float64(recognized))
	m.ScanPages.WithLabelValues("absent").Add(float64(absent))
}

func (m *Metrics) RecognitionTook(d time.Duration) {
	if m == nil {
		return
	}
	m.ScanDuration.Observe(d.Seconds())
}
