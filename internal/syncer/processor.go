package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/github"
	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/kuhlman-labs/migration-tracker/internal/storage"
)

// UpsertOutcome says what an upsert did to the store
type UpsertOutcome int

const (
	OutcomeUnchanged UpsertOutcome = iota
	OutcomeCreated
	OutcomeUpdated
)

func (o UpsertOutcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Processor merges upstream migration nodes into the record store
type Processor struct {
	store  storage.MigrationRecordStore
	logger *slog.Logger
	now    func() time.Time
}

// NewProcessor creates a processor writing to store
func NewProcessor(store storage.MigrationRecordStore, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func missing(id, field string) error {
	return &RecordProcessingError{ProviderID: id, Field: field, Reason: "is missing"}
}

// toRecord validates a node and converts it. Every required field must be
// present; the migration source is either complete or absent.
func toRecord(node github.MigrationNode, enterprise, org string) (*models.MigrationRecord, error) {
	if node.ID == nil || *node.ID == "" {
		return nil, missing("", "id")
	}
	id := *node.ID

	if node.State == nil {
		return nil, missing(id, "state")
	}
	state, ok := models.ParseMigrationState(*node.State)
	if !ok {
		return nil, &RecordProcessingError{ProviderID: id, Field: "state", Reason: fmt.Sprintf("has unknown value %q", *node.State)}
	}

	if node.RepositoryName == nil || *node.RepositoryName == "" {
		return nil, missing(id, "repositoryName")
	}

	if node.CreatedAt == nil {
		return nil, missing(id, "createdAt")
	}
	createdAt, err := time.Parse(time.RFC3339, *node.CreatedAt)
	if err != nil {
		return nil, &RecordProcessingError{ProviderID: id, Field: "createdAt", Reason: fmt.Sprintf("is not a valid timestamp: %q", *node.CreatedAt)}
	}

	if node.WarningsCount == nil {
		return nil, missing(id, "warningsCount")
	}
	if *node.WarningsCount < 0 {
		return nil, &RecordProcessingError{ProviderID: id, Field: "warningsCount", Reason: "is negative"}
	}

	rec := &models.MigrationRecord{
		ProviderID:       id,
		RepositoryName:   *node.RepositoryName,
		OrganizationName: org,
		EnterpriseName:   enterprise,
		State:            state,
		WarningsCount:    *node.WarningsCount,
		FailureReason:    nonEmpty(node.FailureReason),
		SourceURL:        nonEmpty(node.SourceURL),
		LogURL:           nonEmpty(node.MigrationLogURL),
		CreatedAt:        createdAt.UTC(),
	}

	if src := node.MigrationSource; src != nil {
		rec.Source = models.MigrationSource{
			ID:   deref(src.ID),
			Name: deref(src.Name),
			Type: deref(src.Type),
			URL:  deref(src.URL),
		}
		if !rec.Source.Complete() && rec.Source != (models.MigrationSource{}) {
			return nil, &RecordProcessingError{ProviderID: id, Field: "migrationSource", Reason: "is incomplete"}
		}
	}

	return rec, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// differs reports whether incoming carries a change the stored record lacks
func differs(stored, incoming *models.MigrationRecord) bool {
	return stored.State != incoming.State ||
		stored.WarningsCount != incoming.WarningsCount ||
		!equalPtr(stored.FailureReason, incoming.FailureReason) ||
		!equalPtr(stored.SourceURL, incoming.SourceURL) ||
		!equalPtr(stored.LogURL, incoming.LogURL) ||
		stored.Source != incoming.Source
}

// Upsert stores node under its provider id. A new record keeps the upstream
// creation time verbatim and is stamped complete if it is already terminal;
// an existing one is written only when something
// changed, and its creation time is never touched. A malformed node yields
// a *RecordProcessingError and no write.
func (p *Processor) Upsert(ctx context.Context, node github.MigrationNode, enterprise, org string) (UpsertOutcome, *models.MigrationRecord, error) {
	incoming, err := toRecord(node, enterprise, org)
	if err != nil {
		return OutcomeUnchanged, nil, err
	}

	existing, err := p.store.GetMigrationRecord(ctx, incoming.ProviderID)
	if err != nil {
		return OutcomeUnchanged, nil, err
	}

	if existing == nil {
		if incoming.State.IsTerminal() {
			now := p.now()
			incoming.SetCompletedAt(&now)
		}
		err = p.store.CreateMigrationRecord(ctx, incoming)
		if err == nil {
			return OutcomeCreated, incoming, nil
		}
		if !errors.Is(err, storage.ErrDuplicateMigration) {
			return OutcomeUnchanged, nil, err
		}
		// another run created it between our read and write
		existing, err = p.store.GetMigrationRecord(ctx, incoming.ProviderID)
		if err != nil {
			return OutcomeUnchanged, nil, err
		}
		if existing == nil {
			return OutcomeUnchanged, nil, fmt.Errorf("migration %s vanished after duplicate insert", incoming.ProviderID)
		}
	}

	if !differs(existing, incoming) {
		return OutcomeUnchanged, existing, nil
	}

	wasTerminal := existing.State.IsTerminal()
	existing.State = incoming.State
	existing.WarningsCount = incoming.WarningsCount
	existing.FailureReason = incoming.FailureReason
	existing.SourceURL = incoming.SourceURL
	existing.LogURL = incoming.LogURL
	existing.Source = incoming.Source

	switch {
	case incoming.State.IsTerminal() && !wasTerminal && existing.CompletedAt == nil:
		now := p.now()
		existing.SetCompletedAt(&now)
	case !incoming.State.IsTerminal():
		existing.SetCompletedAt(nil)
	}

	if err := p.store.UpdateMigrationRecordState(ctx, existing); err != nil {
		return OutcomeUnchanged, nil, err
	}

	p.logger.Debug("Migration record updated",
		"provider_id", existing.ProviderID,
		"org", org,
		"state", existing.State)

	return OutcomeUpdated, existing, nil
}
