// Package metrics exposes the service counters. Components accept a Recorder;
// when metrics are disabled they get the no-op implementation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты публичного доступа по ссылке.
const (
	ShareAccessOK            = "ok"
	ShareAccessNotFound      = "not_found"
	ShareAccessExpired       = "expired"
	ShareAccessWrongPassword = "wrong_password"
	ShareAccessFailed        = "failed"
)

type Recorder interface {
	QuotaRejected()
	QuotaReleaseClamped()
	BlobDeleteFailed()
	ShareAccess(result string)
	ActivityDropped()
}

type noop struct{}

func NewNoop() Recorder { return noop{} }

func (noop) QuotaRejected()       {}
func (noop) QuotaReleaseClamped() {}
func (noop) BlobDeleteFailed()    {}
func (noop) ShareAccess(string)   {}
func (noop) ActivityDropped()     {}

type Prometheus struct {
	quotaRejected       prometheus.Counter
	quotaReleaseClamped prometheus.Counter
	blobDeleteFailures  prometheus.Counter
	shareAccess         *prometheus.CounterVec
	activityDropped     prometheus.Counter
}

// NewPrometheus registers the counters on reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	f := promauto.With(reg)

	return &Prometheus{
		quotaRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "kurodrive_quota_rejections_total",
			Help: "Reservations rejected because they would exceed the storage limit",
		}),
		quotaReleaseClamped: f.NewCounter(prometheus.CounterOpts{
			Name: "kurodrive_quota_release_clamped_total",
			Help: "Releases that asked for more bytes than were in use and were clamped at zero",
		}),
		blobDeleteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "kurodrive_blob_delete_failures_total",
			Help: "Blob deletions that failed and left an orphaned blob behind",
		}),
		shareAccess: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kurodrive_share_access_total",
			Help: "Anonymous share link downloads by result",
		}, []string{"result"}),
		activityDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "kurodrive_activity_dropped_total",
			Help: "Activity log events dropped because the buffer was full",
		}),
	}
}

func (p *Prometheus) QuotaRejected()       { p.quotaRejected.Inc() }
func (p *Prometheus) QuotaReleaseClamped() { p.quotaReleaseClamped.Inc() }
func (p *Prometheus) BlobDeleteFailed()    { p.blobDeleteFailures.Inc() }
func (p *Prometheus) ActivityDropped()     { p.activityDropped.Inc() }

func (p *Prometheus) ShareAccess(result string) {
	p.shareAccess.WithLabelValues(result).Inc()
}
