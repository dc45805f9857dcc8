// Package ingest implements the Ingestion Pipeline: the coordinator that
// takes raw samples off the broker, enriches them, asks the detector for
// alerts, feeds the baseline registry, persists via the store, and
// republishes the enriched sample and any alerts.
package ingest

import (
	"context"
	"hash/fnv"
	"sync/atomic"

	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/baseline"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/detector"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/internal/models"
	"github.com/ylxmf2005/Smart-Health-Monitoring-and-Alert-System/pkg/logging"
)

// Publisher is the subset of the broker gateway the pipeline needs to
// republish enriched samples and alerts.
type Publisher interface {
	PublishVitals(models.EnrichedSample)
	PublishAlert(models.Alert)
}

// Store is the subset of internal/store.Store the pipeline needs to
// persist enriched samples and alerts.
type Store interface {
	InsertVitals(ctx context.Context, sample models.EnrichedSample)
	InsertAlert(ctx context.Context, alert models.Alert)
}

// DetectorSource returns the currently active Detector. The pipeline
// reads through this indirection on every sample so a strategy swap made
// by the API takes effect on the next sample without restarting workers.
type DetectorSource func() detector.Detector

// queueDepth bounds the work channel each sticky worker drains, matching
// the documented backpressure contract: a full channel blocks the
// producer, nothing is ever dropped.
const queueDepth = 1024

// defaultWorkerCount is the number of sticky workers started when the
// caller does not override it; within the 4-8 range.
const defaultWorkerCount = 4

// Pipeline fans raw samples out to a fixed set of sticky worker
// goroutines, hashed by user_id so per-subject ordering is preserved.
type Pipeline struct {
	workers   []chan models.RawSample
	logger    logging.Logger
	store     Store
	registry  *baseline.Registry
	detector  DetectorSource
	publisher Publisher

	processed atomic.Int64
	rejected  atomic.Int64
}

// New constructs a Pipeline with workerCount sticky workers; a
// non-positive workerCount selects defaultWorkerCount. Call Start to launch
// the worker goroutines.
func New(workerCount int, store Store, registry *baseline.Registry, detectorSource DetectorSource, publisher Publisher, logger logging.Logger) *Pipeline {
	if workerCount <= 0 {
		workerCount = defaultWorkerCount
	}
	p := &Pipeline{
		workers:   make([]chan models.RawSample, workerCount),
		logger:    logger,
		store:     store,
		registry:  registry,
		detector:  detectorSource,
		publisher: publisher,
	}
	for i := range p.workers {
		p.workers[i] = make(chan models.RawSample, queueDepth)
	}
	return p
}

// Start launches one goroutine per sticky worker channel and returns
// immediately. Each worker exits when ctx is cancelled; samples still
// queued in its channel at that point are not processed.
func (p *Pipeline) Start(ctx context.Context) {
	for i := range p.workers {
		go p.runWorker(ctx, p.workers[i])
	}
}

// Submit routes a raw sample to its sticky worker based on a hash of
// user_id, blocking if that worker's channel is full (backpressure, no
// drops). It returns only when ctx is done or the sample has been
// enqueued.
func (p *Pipeline) Submit(ctx context.Context, sample models.RawSample) {
	idx := workerIndex(sample.EffectiveUserID(), len(p.workers))
	select {
	case p.workers[idx] <- sample:
	case <-ctx.Done():
	}
}

func workerIndex(userID string, workerCount int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(workerCount))
}

// Stats returns the running counts of samples handled and rejected at
// step 1 (parse/validate).
func (p *Pipeline) Stats() (processed, rejected int64) {
	return p.processed.Load(), p.rejected.Load()
}

func (p *Pipeline) runWorker(ctx context.Context, queue chan models.RawSample) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-queue:
			if !ok {
				return
			}
			p.handle(ctx, sample)
		}
	}
}

// handle runs the seven-step flow for a single sample. Steps 5-7
// (persist sample, persist+publish alerts, publish sample) are
// independent: a panic or error in one must never prevent the others.
func (p *Pipeline) handle(ctx context.Context, raw models.RawSample) {
	// Step 1: parse and validate.
	if raw.Timestamp.IsZero() {
		p.rejected.Add(1)
		p.logger.WithFields(logging.Fields{"user_id": raw.UserID}).
			Warn("ingest: rejected sample with unparseable timestamp")
		return
	}
	// An empty user_id defaults to "default" per the wire contract rather
	// than being rejected; EffectiveUserID always returns a non-empty
	// value from here on.
	userID := raw.EffectiveUserID()

	// Step 2: derive activity level.
	sample := models.Enrich(raw)

	// Step 3: classify.
	active := p.detector()
	alerts := active.Classify(sample)

	flagged := make(map[models.Parameter]bool, len(alerts))
	for _, a := range alerts {
		flagged[a.Parameter] = true
	}

	// Step 4: feed the baseline registry for every parameter the
	// detector did not flag on this sample.
	for _, param := range models.AllVitalParameters {
		value, present := sample.Value(param)
		if !present || flagged[param] {
			continue
		}
		p.registry.Update(userID, sample.ActivityLevel, param, value)
	}

	p.processed.Add(1)

	// Steps 5-7: independent, each recovered so one failure never
	// blocks the others.
	runRecovered(p.logger, "persist vitals", func() {
		p.store.InsertVitals(ctx, sample)
	})
	runRecovered(p.logger, "persist and publish alerts", func() {
		for _, alert := range alerts {
			p.store.InsertAlert(ctx, alert)
			p.publisher.PublishAlert(alert)
		}
	})
	runRecovered(p.logger, "publish enriched sample", func() {
		p.publisher.PublishVitals(sample)
	})
}

func runRecovered(logger logging.Logger, step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logging.Fields{"step": step, "panic": r}).
				Error("ingest: recovered from panic in pipeline step")
		}
	}()
	fn()
}
