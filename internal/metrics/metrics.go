// Package metrics holds the Prometheus counters for dispatch and delivery.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the registry every counter is registered with. A batch run
// writes it to a node-exporter textfile on exit.
var Registry = prometheus.NewRegistry()

var (
	Dispatched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobmail_dispatched_total",
		Help: "Total number of notifications handed to a detached delivery task",
	})
	DispatchDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobmail_dispatch_dropped_total",
		Help: "Total number of notifications dropped before a delivery task could start",
	}, []string{"reason"})
	DeliverySucceeded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobmail_delivery_succeeded_total",
		Help: "Total number of recipients a notification was delivered to",
	}, []string{"provider"})
	DeliveryFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobmail_delivery_failed_total",
		Help: "Total number of recipients whose delivery failed",
	}, []string{"provider", "reason"})
	RecipientTruncations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobmail_recipient_truncations_total",
		Help: "Total number of recipient lists or owner addresses that did not fit the address buffer",
	}, []string{"source"})
)

func init() {
	Registry.MustRegister(Dispatched)
	Registry.MustRegister(DispatchDropped)
	Registry.MustRegister(DeliverySucceeded)
	Registry.MustRegister(DeliveryFailed)
	Registry.MustRegister(RecipientTruncations)
}

// WriteTextfile writes the current counter values to path in the text
// exposition format, replacing the file atomically.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
