package maildrop

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeMessage(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

const plainMessage = `From: finops@earlybirdapp.co
To: ledger@earlybirdapp.co
Subject: Taxi receipt
Date: Sat, 05 Jul 2025 10:30:00 +0000

Trip to the airport, USD 23.45.
`

func multipartMessage(t *testing.T) string {
	t.Helper()
	pdfContent := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 fake"))
	return fmt.Sprintf(`From: finops@earlybirdapp.co
Subject: =?utf-8?q?Caf=C3=A9_invoice?=
Date: Sun, 06 Jul 2025 09:00:00 +0000
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="XYZ"

--XYZ
Content-Type: text/plain; charset=utf-8

Invoice attached.
--XYZ
Content-Type: application/pdf
Content-Disposition: attachment; filename="invoice.pdf"
Content-Transfer-Encoding: base64

%s
--XYZ--
`, pdfContent)
}

func TestFetchParsesPlainMessage(t *testing.T) {
	dir := t.TempDir()
	source, err := New(dir, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	writeMessage(t, dir, "001.eml", plainMessage)

	emails, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(emails) != 1 {
		t.Fatalf("expected 1 email, got %d", len(emails))
	}
	got := emails[0]
	if got.Subject != "Taxi receipt" {
		t.Fatalf("unexpected subject: %q", got.Subject)
	}
	if got.Date != "2025-07-05" {
		t.Fatalf("unexpected date: %q", got.Date)
	}
	if got.Body == "" || len(got.Attachments) != 0 {
		t.Fatalf("unexpected body/attachments: %+v", got)
	}
}

func TestFetchExtractsAttachments(t *testing.T) {
	dir := t.TempDir()
	source, err := New(dir, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	writeMessage(t, dir, "002.eml", multipartMessage(t))

	emails, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(emails) != 1 {
		t.Fatalf("expected 1 email, got %d", len(emails))
	}
	got := emails[0]
	if got.Subject != "Café invoice" {
		t.Fatalf("encoded subject not decoded: %q", got.Subject)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(got.Attachments))
	}
	att := got.Attachments[0]
	if att.Filename != "invoice.pdf" {
		t.Fatalf("unexpected attachment filename: %q", att.Filename)
	}
	if string(att.Content) != "%PDF-1.4 fake" {
		t.Fatalf("base64 attachment not decoded: %q", att.Content)
	}
}

func TestFetchMovesConsumedFiles(t *testing.T) {
	dir := t.TempDir()
	source, err := New(dir, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	writeMessage(t, dir, "003.eml", plainMessage)

	if _, err := source.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "003.eml")); !os.IsNotExist(err) {
		t.Fatalf("consumed file should be moved out of the drop dir")
	}
	if _, err := os.Stat(filepath.Join(dir, processedDirName, "003.eml")); err != nil {
		t.Fatalf("consumed file should land in processed/: %v", err)
	}

	emails, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}
	if len(emails) != 0 {
		t.Fatalf("second fetch should find nothing, got %d", len(emails))
	}
}

func TestFetchSkipsUnparseableFile(t *testing.T) {
	dir := t.TempDir()
	source, err := New(dir, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	writeMessage(t, dir, "bad.eml", "not an email at all")
	writeMessage(t, dir, "good.eml", plainMessage)

	emails, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(emails) != 1 {
		t.Fatalf("expected the parseable email only, got %d", len(emails))
	}
	if _, err := os.Stat(filepath.Join(dir, "bad.eml")); err != nil {
		t.Fatalf("unparseable file should stay in place: %v", err)
	}
}
