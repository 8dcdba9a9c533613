package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/earlybird-ai/finledger/internal/core/domain"
	"github.com/earlybird-ai/finledger/internal/fingerprint"
)

type classifierFake struct {
	entry     domain.LedgerEntry
	err       error
	lastText  string
	lastDate  string
	callCount int
}

func (f *classifierFake) Classify(_ context.Context, text, hintDate string) (domain.LedgerEntry, error) {
	f.callCount++
	f.lastText = text
	f.lastDate = hintDate
	if f.err != nil {
		return domain.LedgerEntry{}, f.err
	}
	return f.entry, nil
}

type ledgerRepoFake struct {
	err     error
	entries []domain.LedgerEntry
}

func (f *ledgerRepoFake) Upsert(_ context.Context, entry domain.LedgerEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

type notifierFake struct {
	err   error
	calls []string
}

func (f *notifierFake) PublishOnce(_ context.Context, fp string, _ domain.LedgerEntry) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.calls = append(f.calls, fp)
	return true, nil
}

func validEntry() domain.LedgerEntry {
	return domain.LedgerEntry{
		Text:        "Monthly subscription fee",
		Date:        "2026-08-25",
		Amount:      45,
		Currency:    "USD",
		Vendor:      "Cloud Services Inc.",
		Type:        domain.TypeDebit,
		ReferenceID: "TXN-456789",
		Label:       domain.LabelSaaS,
	}
}

func newIngestFixture(claims *claimStoreFake, cls *classifierFake, repo *ledgerRepoFake, notifier *notifierFake) *IngestEmailUseCase {
	fanout := NewAttachmentFanOut(claims, newOCRServiceFake(), testLogger(), fastFanOutConfig())
	return NewIngestEmailUseCase(claims, fanout, cls, repo, notifier, testLogger(), IngestConfig{
		ClaimTTL: time.Minute,
		CacheTTL: time.Hour,
	})
}

func TestProcessEmailSuccess(t *testing.T) {
	claims := newClaimStoreFake()
	cls := &classifierFake{entry: validEntry()}
	repo := &ledgerRepoFake{}
	notifier := &notifierFake{}
	uc := newIngestFixture(claims, cls, repo, notifier)

	email := domain.InboundEmail{Subject: "Invoice", Date: "2026-08-25", Body: "Pay $45"}
	outcome, err := uc.ProcessEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("ProcessEmail() error = %v", err)
	}
	if outcome != domain.OutcomeProcessed {
		t.Fatalf("outcome = %s; want processed", outcome)
	}

	fp := fingerprint.Email("Invoice", "Pay $45")
	if len(repo.entries) != 1 || repo.entries[0].Fingerprint != fp {
		t.Fatalf("entry not persisted with email fingerprint: %+v", repo.entries)
	}
	if len(notifier.calls) != 1 || notifier.calls[0] != fp {
		t.Fatalf("notification not published once: %v", notifier.calls)
	}
	if _, ok := claims.completed[emailClaimPrefix+fp]; !ok {
		t.Fatalf("email claim not completed: %v", claims.completed)
	}
	if cls.lastDate != "2026-08-25" {
		t.Fatalf("hint date not passed through: %q", cls.lastDate)
	}
}

func TestProcessEmailSkipsWhenAlreadyProcessed(t *testing.T) {
	claims := newClaimStoreFake()
	fp := fingerprint.Email("Invoice", "Pay $45")
	claims.cached[emailClaimPrefix+fp] = ""
	cls := &classifierFake{entry: validEntry()}
	uc := newIngestFixture(claims, cls, &ledgerRepoFake{}, &notifierFake{})

	outcome, err := uc.ProcessEmail(context.Background(), domain.InboundEmail{Subject: "Invoice", Body: "Pay $45"})
	if err != nil {
		t.Fatalf("ProcessEmail() error = %v", err)
	}
	if outcome != domain.OutcomeSkippedDone {
		t.Fatalf("outcome = %s; want skipped_done", outcome)
	}
	if cls.callCount != 0 {
		t.Fatalf("classifier invoked for a cached email")
	}
}

func TestProcessEmailSkipsWhenClaimDenied(t *testing.T) {
	claims := newClaimStoreFake()
	fp := fingerprint.Email("Invoice", "Pay $45")
	claims.denied[emailClaimPrefix+fp] = true
	cls := &classifierFake{entry: validEntry()}
	uc := newIngestFixture(claims, cls, &ledgerRepoFake{}, &notifierFake{})

	outcome, err := uc.ProcessEmail(context.Background(), domain.InboundEmail{Subject: "Invoice", Body: "Pay $45"})
	if err != nil {
		t.Fatalf("ProcessEmail() error = %v", err)
	}
	if outcome != domain.OutcomeSkippedInFlight {
		t.Fatalf("outcome = %s; want skipped_in_flight", outcome)
	}
	if cls.callCount != 0 {
		t.Fatalf("classifier invoked although another worker owns the claim")
	}
}

func TestProcessEmailReleasesClaimOnClassifierFailure(t *testing.T) {
	claims := newClaimStoreFake()
	cls := &classifierFake{err: errors.New("model unavailable")}
	repo := &ledgerRepoFake{}
	uc := newIngestFixture(claims, cls, repo, &notifierFake{})

	_, err := uc.ProcessEmail(context.Background(), domain.InboundEmail{Subject: "Invoice", Body: "Pay $45"})
	if err == nil {
		t.Fatalf("expected classifier failure to propagate")
	}

	fp := fingerprint.Email("Invoice", "Pay $45")
	released := claims.releasedKeys()
	if len(released) != 1 || released[0] != emailClaimPrefix+fp {
		t.Fatalf("claim not released on failure: %v", released)
	}
	if _, ok := claims.completed[emailClaimPrefix+fp]; ok {
		t.Fatalf("failure must never be cached as complete")
	}
	if len(repo.entries) != 0 {
		t.Fatalf("nothing should be persisted on classifier failure")
	}
}

func TestProcessEmailRejectsInvalidClassifierOutput(t *testing.T) {
	claims := newClaimStoreFake()
	bad := validEntry()
	bad.Label = "Groceries"
	cls := &classifierFake{entry: bad}
	repo := &ledgerRepoFake{}
	uc := newIngestFixture(claims, cls, repo, &notifierFake{})

	_, err := uc.ProcessEmail(context.Background(), domain.InboundEmail{Subject: "Invoice", Body: "Pay $45"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(repo.entries) != 0 {
		t.Fatalf("unvalidated output must not be persisted")
	}
	if len(claims.releasedKeys()) != 1 {
		t.Fatalf("claim not released on validation failure")
	}
}

func TestProcessEmailReleasesClaimOnPersistFailure(t *testing.T) {
	claims := newClaimStoreFake()
	cls := &classifierFake{entry: validEntry()}
	repo := &ledgerRepoFake{err: errors.New("db down")}
	notifier := &notifierFake{}
	uc := newIngestFixture(claims, cls, repo, notifier)

	_, err := uc.ProcessEmail(context.Background(), domain.InboundEmail{Subject: "Invoice", Body: "Pay $45"})
	if err == nil {
		t.Fatalf("expected persistence failure to propagate")
	}
	if len(notifier.calls) != 0 {
		t.Fatalf("persistence happens-before publish was violated")
	}
	if len(claims.releasedKeys()) != 1 {
		t.Fatalf("claim not released on persistence failure")
	}
}

func TestProcessEmailReleasesClaimOnPublishFailure(t *testing.T) {
	claims := newClaimStoreFake()
	cls := &classifierFake{entry: validEntry()}
	notifier := &notifierFake{err: errors.New("broker down")}
	uc := newIngestFixture(claims, cls, &ledgerRepoFake{}, notifier)

	_, err := uc.ProcessEmail(context.Background(), domain.InboundEmail{Subject: "Invoice", Body: "Pay $45"})
	if err == nil {
		t.Fatalf("expected publish failure to propagate")
	}
	if len(claims.releasedKeys()) != 1 {
		t.Fatalf("claim not released on publish failure")
	}
}

func TestProcessEmailLocalInFlightSetBlocksDoubleSubmission(t *testing.T) {
	claims := newClaimStoreFake()
	cls := &classifierFake{entry: validEntry()}
	uc := newIngestFixture(claims, cls, &ledgerRepoFake{}, &notifierFake{})

	fp := fingerprint.Email("Invoice", "Pay $45")
	if !uc.markInFlight(fp) {
		t.Fatalf("first mark should succeed")
	}

	outcome, err := uc.ProcessEmail(context.Background(), domain.InboundEmail{Subject: "Invoice", Body: "Pay $45"})
	if err != nil {
		t.Fatalf("ProcessEmail() error = %v", err)
	}
	if outcome != domain.OutcomeSkippedInFlight {
		t.Fatalf("outcome = %s; want skipped_in_flight", outcome)
	}
	if cls.callCount != 0 {
		t.Fatalf("classifier invoked despite local in-flight guard")
	}

	// After the original holder clears, the email is processable again.
	uc.clearInFlight(fp)
	outcome, err = uc.ProcessEmail(context.Background(), domain.InboundEmail{Subject: "Invoice", Body: "Pay $45"})
	if err != nil {
		t.Fatalf("ProcessEmail() after clear error = %v", err)
	}
	if outcome != domain.OutcomeProcessed {
		t.Fatalf("outcome = %s; want processed", outcome)
	}
}

func TestProcessEmailFeedsOCRTextToClassifier(t *testing.T) {
	claims := newClaimStoreFake()
	content := []byte("receipt bytes")
	claims.cached[attachmentClaimPrefix+fingerprint.Attachment(content)] = "RECEIPT TOTAL 42"
	cls := &classifierFake{entry: validEntry()}
	uc := newIngestFixture(claims, cls, &ledgerRepoFake{}, &notifierFake{})

	email := domain.InboundEmail{
		Subject:     "Receipt",
		Body:        "see attached",
		Attachments: []domain.Attachment{{Filename: "r.pdf", Content: content}},
	}
	if _, err := uc.ProcessEmail(context.Background(), email); err != nil {
		t.Fatalf("ProcessEmail() error = %v", err)
	}
	want := "Receipt\nsee attached\n\nAttachments OCR:\nRECEIPT TOTAL 42"
	if cls.lastText != want {
		t.Fatalf("classifier input = %q; want %q", cls.lastText, want)
	}
}
