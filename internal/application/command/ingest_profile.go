package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
	"github.com/alem-hub/afterschool-matching/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// INGEST PROFILE COMMAND
// Stores a snapshot produced by an analysis engine. Ingestion always validates
// strictly; clamping only applies on the read path.
// ══════════════════════════════════════════════════════════════════════════════

// IngestProfileCommand carries one profile snapshot.
type IngestProfileCommand struct {
	Kind    profile.OwnerKind
	OwnerID string
	Profile *profile.PersonalityProfile
}

// Validate validates the command shape.
func (c IngestProfileCommand) Validate() error {
	if c.Kind != profile.OwnerStudent && c.Kind != profile.OwnerTeacher {
		return shared.NewDomainError("profile", "Ingest", shared.ErrInvalidInput, "unknown owner kind "+string(c.Kind))
	}
	if c.OwnerID == "" {
		return shared.NewDomainError("profile", "Ingest", shared.ErrEmptyValue, "owner_id is required")
	}
	if c.Profile.IsEmpty() {
		return shared.NewDomainError("profile", "Ingest", shared.ErrEmptyValue, "profile has no sections")
	}
	return nil
}

// ProfileValidator checks a snapshot before it is stored.
type ProfileValidator interface {
	Validate(p *profile.PersonalityProfile) error
}

// ProfileCacheInvalidator drops stale cached snapshots.
type ProfileCacheInvalidator interface {
	Invalidate(ctx context.Context, kind profile.OwnerKind, ownerID string) error
}

// IngestProfileHandler handles the IngestProfileCommand.
type IngestProfileHandler struct {
	repo      profile.Repository
	validator ProfileValidator
	cache     ProfileCacheInvalidator
	publisher shared.EventPublisher
	log       *logger.Logger
	now       func() time.Time
}

// NewIngestProfileHandler creates a new IngestProfileHandler. cache and
// publisher may be nil.
func NewIngestProfileHandler(
	repo profile.Repository,
	validator ProfileValidator,
	cache ProfileCacheInvalidator,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *IngestProfileHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &IngestProfileHandler{
		repo:      repo,
		validator: validator,
		cache:     cache,
		publisher: publisher,
		log:       log.Named("ingest_profile"),
		now:       time.Now,
	}
}

// Handle validates and stores the snapshot and returns its new version.
func (h *IngestProfileHandler) Handle(ctx context.Context, cmd IngestProfileCommand) (int64, error) {
	if err := cmd.Validate(); err != nil {
		return 0, fmt.Errorf("ingest_profile: validation failed: %w", err)
	}
	if err := h.validator.Validate(cmd.Profile); err != nil {
		return 0, fmt.Errorf("ingest_profile: %s %s rejected: %w", cmd.Kind, cmd.OwnerID, err)
	}

	version, err := h.repo.Upsert(ctx, cmd.Kind, cmd.OwnerID, cmd.Profile)
	if err != nil {
		return 0, fmt.Errorf("ingest_profile: failed to store profile: %w", err)
	}

	if h.cache != nil {
		if err := h.cache.Invalidate(ctx, cmd.Kind, cmd.OwnerID); err != nil {
			h.log.Warn("failed to invalidate cached profile",
				logger.String("owner_id", cmd.OwnerID), logger.Err(err))
		}
	}
	if h.publisher != nil {
		if err := h.publisher.Publish(profile.NewProfileUpsertedEvent(cmd.Kind, cmd.OwnerID, version, h.now().UTC())); err != nil {
			h.log.Warn("failed to publish profile event", logger.String("owner_id", cmd.OwnerID), logger.Err(err))
		}
	}

	h.log.Info("profile ingested",
		logger.String("owner_kind", string(cmd.Kind)),
		logger.String("owner_id", cmd.OwnerID),
		logger.Int64("version", version),
	)
	return version, nil
}
