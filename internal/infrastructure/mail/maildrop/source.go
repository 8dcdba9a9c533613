// Package maildrop reads inbound email from a filesystem drop
// directory of RFC 5322 .eml files. A delivery agent (or a test)
// drops messages into the directory; consumed files move to a
// processed/ subdirectory so a crash between read and move results in
// redelivery, which downstream dedup absorbs.
package maildrop

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/earlybird-ai/finledger/internal/core/domain"
)

const processedDirName = "processed"

type Source struct {
	dir    string
	logger *slog.Logger

	now func() time.Time
}

func New(dir string, logger *slog.Logger) (*Source, error) {
	if dir == "" {
		return nil, errors.New("maildrop: directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, processedDirName), 0o755); err != nil {
		return nil, fmt.Errorf("maildrop: create processed dir: %w", err)
	}
	return &Source{
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Fetch parses every .eml file in the drop directory in name order and
// moves each consumed file aside. A file that fails to parse is left
// in place and logged so it can be inspected.
func (s *Source) Fetch(ctx context.Context) ([]domain.InboundEmail, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("maildrop: read dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".eml") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var emails []domain.InboundEmail
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return emails, err
		}
		path := filepath.Join(s.dir, name)
		email, err := s.parseFile(path)
		if err != nil {
			s.logger.Error("failed to parse dropped message", "file", name, "error", err)
			continue
		}
		if err := os.Rename(path, filepath.Join(s.dir, processedDirName, name)); err != nil {
			return nil, fmt.Errorf("maildrop: move %s to processed: %w", name, err)
		}
		emails = append(emails, email)
	}
	return emails, nil
}

func (s *Source) parseFile(path string) (domain.InboundEmail, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.InboundEmail{}, err
	}
	defer f.Close()

	msg, err := mail.ReadMessage(f)
	if err != nil {
		return domain.InboundEmail{}, fmt.Errorf("read message: %w", err)
	}

	subject := decodeHeader(msg.Header.Get("Subject"))
	date := s.messageDate(msg)

	body, attachments, err := extractParts(msg)
	if err != nil {
		return domain.InboundEmail{}, err
	}

	return domain.InboundEmail{
		Subject:     subject,
		Date:        date,
		Body:        body,
		Attachments: attachments,
	}, nil
}

// messageDate formats the Date header as YYYY-MM-DD, falling back to
// today when the header is missing or unparseable.
func (s *Source) messageDate(msg *mail.Message) string {
	if t, err := msg.Header.Date(); err == nil {
		return t.Format("2006-01-02")
	}
	return s.now().Format("2006-01-02")
}

func decodeHeader(raw string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func extractParts(msg *mail.Message) (string, []domain.Attachment, error) {
	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", nil, fmt.Errorf("parse content type: %w", err)
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		body, err := decodeBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			return "", nil, err
		}
		return body, nil, nil
	}

	boundary := params["boundary"]
	if boundary == "" {
		return "", nil, errors.New("multipart message without boundary")
	}
	return walkMultipart(multipart.NewReader(msg.Body, boundary), "")
}

func walkMultipart(reader *multipart.Reader, body string) (string, []domain.Attachment, error) {
	var attachments []domain.Attachment
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return body, attachments, nil
		}
		if err != nil {
			return "", nil, fmt.Errorf("read part: %w", err)
		}

		mediaType, params, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if err != nil {
			mediaType = "text/plain"
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			nestedBody, nested, err := walkMultipart(multipart.NewReader(part, params["boundary"]), body)
			if err != nil {
				return "", nil, err
			}
			body = nestedBody
			attachments = append(attachments, nested...)
			continue
		}

		disposition := strings.ToLower(part.Header.Get("Content-Disposition"))
		switch {
		case strings.Contains(disposition, "attachment"):
			filename := decodeHeader(part.FileName())
			content, err := decodeBinary(part, part.Header.Get("Content-Transfer-Encoding"))
			if err != nil {
				return "", nil, fmt.Errorf("decode attachment %s: %w", filename, err)
			}
			if filename != "" && len(content) > 0 {
				attachments = append(attachments, domain.Attachment{Filename: filename, Content: content})
			}
		case mediaType == "text/plain" && body == "":
			body, err = decodeBody(part, part.Header.Get("Content-Transfer-Encoding"))
			if err != nil {
				return "", nil, fmt.Errorf("decode body part: %w", err)
			}
		}
	}
}

func decodeBody(r io.Reader, transferEncoding string) (string, error) {
	content, err := decodeBinary(r, transferEncoding)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func decodeBinary(r io.Reader, transferEncoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	}
	return io.ReadAll(r)
}
