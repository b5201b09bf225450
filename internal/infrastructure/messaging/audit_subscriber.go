package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/afterschool-matching/internal/domain/assignment"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
	"github.com/alem-hub/afterschool-matching/pkg/logger"
	"github.com/alem-hub/afterschool-matching/pkg/retry"
)

// AuditSubscriber writes the diff of every applied proposal to an audit sink.
type AuditSubscriber struct {
	sink    assignment.AuditSink
	retrier *retry.Retrier
	timeout time.Duration
	log     *logger.Logger
}

// NewAuditSubscriber creates an AuditSubscriber. A nil retrier writes once.
func NewAuditSubscriber(sink assignment.AuditSink, retrier *retry.Retrier, log *logger.Logger) *AuditSubscriber {
	if retrier == nil {
		retrier = retry.New(retry.WithMaxAttempts(1))
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &AuditSubscriber{
		sink:    sink,
		retrier: retrier,
		timeout: 10 * time.Second,
		log:     log.Named("audit"),
	}
}

// Register subscribes the handler to proposal.applied events.
func (s *AuditSubscriber) Register(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventProposalApplied, s.Handle)
}

// Handle implements shared.EventHandler. Events relayed from other instances
// are skipped: the publishing instance owns the write.
func (s *AuditSubscriber) Handle(event shared.Event) error {
	var diff assignment.AuditDiff
	switch e := event.(type) {
	case assignment.ProposalAppliedEvent:
		diff = e.Diff
	case *assignment.ProposalAppliedEvent:
		diff = e.Diff
	case *RemoteEvent:
		return nil
	default:
		return fmt.Errorf("audit: unexpected event %T", event)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.sink.WriteDiff(ctx, diff)
	})
	if err != nil {
		return fmt.Errorf("audit: write diff for proposal %s: %w", diff.ProposalID, err)
	}

	s.log.Info("audit diff written",
		logger.ProposalID(diff.ProposalID),
		logger.Int("entries", len(diff.Entries)),
	)
	return nil
}
