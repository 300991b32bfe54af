// Package replay resubmits previously recorded envelopes through the
// orchestrator, in a deterministic (timestamp, id) order.
package replay

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/telhawk-systems/eventvault/common/logging"
	"github.com/telhawk-systems/eventvault/pipeline/internal/features"
	"github.com/telhawk-systems/eventvault/pipeline/internal/identity"
	"github.com/telhawk-systems/eventvault/pipeline/internal/metrics"
	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
)

// Submitter accepts one envelope for processing.
type Submitter interface {
	Submit(ctx context.Context, env *models.EventEnvelope) models.ProcessorResult
}

// Engine validates replay requests, selects candidates and resubmits them.
type Engine struct {
	selector  Selector
	submitter Submitter
	flags     features.Flags
	logger    *slog.Logger
}

// NewEngine constructs an Engine. A nil flags value, typed or not, leaves
// replay enabled.
func NewEngine(selector Selector, submitter Submitter, flags features.Flags, logger *slog.Logger) *Engine {
	if features.IsUnset(flags) {
		flags = nil
	}
	return &Engine{
		selector:  selector,
		submitter: submitter,
		flags:     flags,
		logger:    logging.OrDefault(logger),
	}
}

func (e *Engine) ReplayByTimeWindow(ctx context.Context, req models.ReplayRequest) models.ReplayResult {
	return e.Replay(ctx, ModeTimeWindow, req)
}

func (e *Engine) ReplayByKeyOrID(ctx context.Context, req models.ReplayRequest) models.ReplayResult {
	return e.Replay(ctx, ModeIngestion, req)
}

func (e *Engine) ReplayByDomainDLQID(ctx context.Context, req models.ReplayRequest) models.ReplayResult {
	return e.Replay(ctx, ModeDLQDomain, req)
}

func (e *Engine) ReplayBySystemDLQID(ctx context.Context, req models.ReplayRequest) models.ReplayResult {
	return e.Replay(ctx, ModeDLQSystem, req)
}

// Replay runs one replay call for mode.
func (e *Engine) Replay(ctx context.Context, mode Mode, req models.ReplayRequest) models.ReplayResult {
	log := logging.FromContext(ctx, e.logger).With(slog.String("mode", string(mode)))

	win, reason := validate(mode, req)
	if reason != "" {
		metrics.ReplaysTotal.WithLabelValues(string(mode), "bad_request").Inc()
		log.Info("replay request rejected", logging.Reason(reason))
		return models.ReplayRejected(reason)
	}

	if e.flags != nil && !e.flags.IsEnabled(ctx, features.Replay) {
		metrics.ReplaysTotal.WithLabelValues(string(mode), "disabled").Inc()
		return models.ReplayRejected(models.ReasonReplayDisabled)
	}

	if e.submitter == nil {
		metrics.ReplaysTotal.WithLabelValues(string(mode), "failed").Inc()
		return models.ReplayRejected(models.ReasonReplayOrchestratorNil)
	}

	replayID := identity.NewReplayID()
	log = log.With(logging.ReplayID(replayID))

	candidates := e.selectCandidates(ctx, log, mode, req, win)
	SortEvents(candidates)

	replayed := 0
	for _, ev := range candidates {
		env, err := models.ParseCompleteEnvelope([]byte(ev.Payload))
		if err != nil {
			log.Warn("skipping unparsable replay candidate", slog.String("candidate", ev.ID), logging.Error(err))
			continue
		}
		result := e.submitter.Submit(ctx, env.Unanchored())
		if result.OK {
			replayed++
			continue
		}
		reason := ""
		if result.Why != nil {
			reason = result.Why.Reason
		}
		log.Warn("replay resubmission failed", slog.String("candidate", ev.ID), logging.Reason(reason))
	}

	metrics.ReplaysTotal.WithLabelValues(string(mode), metrics.OutcomeOK).Inc()
	metrics.ReplayMatched.WithLabelValues(string(mode)).Add(float64(len(candidates)))
	metrics.ReplayResubmitted.WithLabelValues(string(mode)).Add(float64(replayed))
	log.Info("replay finished",
		slog.String("reason", req.Reason),
		slog.Int("matched", len(candidates)),
		slog.Int("replayed", replayed),
	)

	return models.ReplayResult{
		OK:            true,
		ReplayID:      replayID,
		MatchedCount:  len(candidates),
		ReplayedCount: replayed,
	}
}

// selectCandidates degrades every selection failure to an empty set.
func (e *Engine) selectCandidates(ctx context.Context, log *slog.Logger, mode Mode, req models.ReplayRequest, win window) []models.ReplayEvent {
	if e.selector == nil {
		log.Warn("replay selector not configured")
		return nil
	}

	var (
		events []models.ReplayEvent
		err    error
	)
	switch mode {
	case ModeTimeWindow:
		events, err = e.selector.SelectByTimeWindow(ctx, win.from, win.to)
	case ModeIngestion:
		events, err = e.selector.SelectByKeyOrID(ctx, strings.TrimSpace(req.ObjectKeyOrIngestionID))
	case ModeDLQDomain:
		events, err = e.selector.SelectByDLQID(ctx, models.DLQKindDomain, strings.TrimSpace(req.DLQID))
	case ModeDLQSystem:
		events, err = e.selector.SelectByDLQID(ctx, models.DLQKindSystem, strings.TrimSpace(req.DLQID))
	}
	if err != nil {
		log.Warn("replay selection failed, treating as empty", logging.Error(err))
		return nil
	}
	return events
}

// SortEvents orders events by (timestamp, id). Events without a timestamp
// sort first.
func SortEvents(events []models.ReplayEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		ti, tj := timestampOf(events[i]), timestampOf(events[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return events[i].ID < events[j].ID
	})
}

func timestampOf(ev models.ReplayEvent) time.Time {
	if ev.Timestamp == nil {
		return time.Time{}
	}
	return *ev.Timestamp
}
