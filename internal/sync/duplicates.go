package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/hearthlabs/hearthsync/internal/entity"
)

// DuplicatePreventer fuzzy-matches a candidate record against the registry
// to avoid redundant creation.
type DuplicatePreventer struct {
	store  Store
	logger Logger
}

// NewDuplicatePreventer creates a duplicate preventer backed by the store.
func NewDuplicatePreventer(store Store) *DuplicatePreventer {
	return &DuplicatePreventer{store: store, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (p *DuplicatePreventer) SetLogger(logger Logger) {
	p.logger = logger
}

// CheckDuplicates probes the registry for records the candidate
// (externalID, domain, name) would duplicate.
//
// Exact external or local identifier matches score high confidence.
// Otherwise records sharing the domain are fuzzily compared on name and on
// the identifier's object part, scoring medium confidence on a hit.
func (p *DuplicatePreventer) CheckDuplicates(ctx context.Context, externalID, domain, name string) (*DuplicateReport, error) {
	report := &DuplicateReport{Confidence: ConfidenceNone}

	// Exact external identifier match.
	if existing, err := p.store.GetEntityByExternalID(ctx, externalID); err == nil {
		report.Duplicates = append(report.Duplicates, DuplicateMatch{
			Entity: *existing,
			Reason: "external identifier already registered",
		})
		report.Confidence = ConfidenceHigh
	} else if !errors.Is(err, entity.ErrEntityNotFound) {
		return nil, err
	}

	// Exact local identifier match.
	if existing, err := p.store.GetEntityByLocalID(ctx, externalID); err == nil {
		if !containsEntity(report.Duplicates, existing.ID) {
			report.Duplicates = append(report.Duplicates, DuplicateMatch{
				Entity: *existing,
				Reason: "local identifier already registered",
			})
		}
		report.Confidence = ConfidenceHigh
	} else if !errors.Is(err, entity.ErrEntityNotFound) {
		return nil, err
	}

	if report.Confidence == ConfidenceHigh {
		report.IsDuplicate = true
		return report, nil
	}

	// Fuzzy scan of same-domain records.
	object := entity.ObjectOf(externalID)
	peers, err := p.store.ListByDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	for i := range peers {
		peer := &peers[i]
		switch {
		case name != "" && fuzzyMatch(name, peer.Name):
			report.Duplicates = append(report.Duplicates, DuplicateMatch{
				Entity: *peer,
				Reason: fmt.Sprintf("name %q fuzzily matches %q", name, peer.Name),
			})
			report.Confidence = ConfidenceMedium
		case object != "" && fuzzyMatch(object, entity.ObjectOf(peer.LocalID)):
			report.Duplicates = append(report.Duplicates, DuplicateMatch{
				Entity: *peer,
				Reason: fmt.Sprintf("identifier object %q fuzzily matches %q", object, peer.LocalID),
			})
			report.Confidence = ConfidenceMedium
		}
	}

	report.IsDuplicate = len(report.Duplicates) > 0
	return report, nil
}

// EnsureNotDuplicate is the strict variant for direct-creation callers
// outside the orchestrator: it fails with ErrDuplicateEntity when a
// high-confidence duplicate exists.
func (p *DuplicatePreventer) EnsureNotDuplicate(ctx context.Context, externalID, domain, name string) error {
	report, err := p.CheckDuplicates(ctx, externalID, domain, name)
	if err != nil {
		return err
	}
	if report.Confidence == ConfidenceHigh {
		return fmt.Errorf("%w: %s", ErrDuplicateEntity, report.Duplicates[0].Reason)
	}
	return nil
}

func containsEntity(matches []DuplicateMatch, id string) bool {
	for i := range matches {
		if matches[i].Entity.ID == id {
			return true
		}
	}
	return false
}
