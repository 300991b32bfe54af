package ingestion

import (
	"context"
	"log/slog"

	"github.com/telhawk-systems/eventvault/common/logging"
	"github.com/telhawk-systems/eventvault/pipeline/internal/extractor"
	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
)

// Resolver assigns ingestion identities to envelopes before they are sent
// downstream, reusing the identity of previously stored identical content.
type Resolver struct {
	service   *Service
	extractor extractor.Extractor
	logger    *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(service *Service, ex extractor.Extractor, logger *slog.Logger) *Resolver {
	return &Resolver{service: service, extractor: ex, logger: logging.OrDefault(logger)}
}

// Resolve returns the identity for env. It never fails: when the
// fingerprint cannot be computed or looked up a fresh identity is minted.
func (r *Resolver) Resolve(ctx context.Context, env *models.EventEnvelope) string {
	log := logging.FromContext(ctx, r.logger)

	payload, err := env.DecodedPayload()
	if err != nil {
		log.Warn("cannot decode payload for identity resolution, minting", logging.Error(err))
		return r.service.MintIngestionID()
	}
	view, err := r.extractor.Extract(ctx, payload)
	if err != nil {
		log.Warn("cannot fingerprint payload for identity resolution, minting", logging.Error(err))
		return r.service.MintIngestionID()
	}
	id, err := r.service.ResolveIngestionID(ctx, view.SnapshotHash)
	if err != nil {
		log.Warn("identity lookup failed, minting",
			logging.SnapshotHash(view.SnapshotHash), logging.Error(err))
		return r.service.MintIngestionID()
	}
	return id
}
