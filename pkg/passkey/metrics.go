// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of passkeyd.
//
// passkeyd is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package passkey

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all passkeyd metrics.
	Namespace = "passkeyd"

	// Label names
	LabelOperation = "operation"
	LabelStatus    = "status"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpRegistrationOptions   = "reg_options"
	OpRegistrationVerify    = "reg_verify"
	OpAuthenticationOptions = "authn_options"
	OpAuthenticationVerify  = "authn_verify"
	OpHasPasskeys           = "has_passkeys"
)

var (
	// CeremoniesTotal counts ceremony operations by operation and status.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of ceremony operations by operation and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// CeremonyDuration tracks ceremony operation latency in seconds.
	CeremonyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ceremony_duration_seconds",
			Help:      "Duration of ceremony operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{LabelOperation},
	)
)

// recordCeremony records one ceremony operation outcome.
func recordCeremony(operation string, start time.Time, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	CeremoniesTotal.WithLabelValues(operation, status).Inc()
	CeremonyDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
