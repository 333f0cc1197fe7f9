// Package metrics provides an observer that feeds skip and rollback events to a MetricRecorder
// and pushes the collected series when the job ends.
package metrics

import (
	"context"

	port "github.com/tigerroll/iconium/pkg/batch/core/application/port"
	model "github.com/tigerroll/iconium/pkg/batch/core/domain/model"
	"github.com/tigerroll/iconium/pkg/batch/core/metrics"
	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/iconium/pkg/batch/support/util/logger"
)

// Pusher is implemented by recorders that can deliver their series to a Pushgateway.
type Pusher interface {
	Push(url, job string) error
}

// MetricsObserver records skips and rollbacks of one step.
type MetricsObserver struct {
	recorder       metrics.MetricRecorder
	stepName       string
	jobName        string
	pushgatewayURL string
}

// NewMetricsObserver creates a MetricsObserver. When pushgatewayURL is not empty and
// recorder implements Pusher, the series are pushed at job end.
func NewMetricsObserver(recorder metrics.MetricRecorder, jobName, stepName, pushgatewayURL string) *MetricsObserver {
	return &MetricsObserver{
		recorder:       recorder,
		jobName:        jobName,
		stepName:       stepName,
		pushgatewayURL: pushgatewayURL,
	}
}

func (o *MetricsObserver) OnJobStart(context.Context, string) {}

func (o *MetricsObserver) OnSkip(ctx context.Context, phase port.SkipPhase, _ interface{}, err error) {
	o.recorder.RecordItemSkip(ctx, o.stepName, string(phase), exception.Kind(err))
}

func (o *MetricsObserver) OnChunkRolledBack(ctx context.Context) {
	o.recorder.RecordChunkRollback(ctx, o.stepName)
}

func (o *MetricsObserver) OnJobEnd(ctx context.Context, _ model.Outcome) {
	if o.pushgatewayURL == "" {
		return
	}
	pusher, ok := o.recorder.(Pusher)
	if !ok {
		return
	}
	if err := pusher.Push(o.pushgatewayURL, o.jobName); err != nil {
		logger.Warnf("MetricsObserver: failed to push metrics to '%s': %v", o.pushgatewayURL, err)
		return
	}
	logger.Debugf("MetricsObserver: metrics pushed to '%s'.", o.pushgatewayURL)
}

var _ port.Observer = (*MetricsObserver)(nil)
