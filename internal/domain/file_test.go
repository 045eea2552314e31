package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestValidationError_UnwrapsToSentinel(t *testing.T) {
	err := NewValidationError(KindBlockedExtension, "/tmp/tool.exe", "extension %q is blocked", ".exe")

	if !errors.Is(err, ErrValidationFailed) {
		t.Fatal("expected error to unwrap to ErrValidationFailed")
	}
	if ValidationKindOf(err) != KindBlockedExtension {
		t.Errorf("expected blocked_extension kind, got %v", ValidationKindOf(err))
	}
}

func TestValidationKindOf_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("upload: %w", NewValidationError(KindEmpty, "/tmp/a.txt", "file is empty"))

	if ValidationKindOf(err) != KindEmpty {
		t.Errorf("expected empty kind through wrapping, got %v", ValidationKindOf(err))
	}
}

func TestValidationKindOf_NonValidationError(t *testing.T) {
	if kind := ValidationKindOf(errors.New("boom")); kind != "" {
		t.Errorf("expected empty kind for unrelated error, got %v", kind)
	}
}

func TestSummaryFromMetadata_RoundTrip(t *testing.T) {
	ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	md := map[string]string{
		MetaFileName:    "doc.txt",
		MetaFileSize:    "1024",
		MetaContentType: "text/plain",
		MetaUploadedAt:  ts.Format(time.RFC3339Nano),
	}

	s := SummaryFromMetadata("k1", md)
	if s.Key != "k1" || s.FileName != "doc.txt" || s.ContentType != "text/plain" {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.FileSize != 1024 {
		t.Errorf("expected size 1024, got %d", s.FileSize)
	}
	if !s.UploadedAt.Equal(ts) {
		t.Errorf("expected %v, got %v", ts, s.UploadedAt)
	}
}

func TestSummaryFromMetadata_MalformedFieldsDegrade(t *testing.T) {
	md := map[string]string{
		MetaFileName:   "doc.txt",
		MetaFileSize:   "not-a-number",
		MetaUploadedAt: "not-a-time",
	}

	s := SummaryFromMetadata("k1", md)
	if s.FileSize != 0 {
		t.Errorf("expected zero size for malformed field, got %d", s.FileSize)
	}
	if !s.UploadedAt.IsZero() {
		t.Errorf("expected zero time for malformed field, got %v", s.UploadedAt)
	}
}

func TestSummaryFromMetadata_NilMetadata(t *testing.T) {
	s := SummaryFromMetadata("k1", nil)
	if s.Key != "k1" || s.FileName != "" || s.FileSize != 0 {
		t.Errorf("unexpected summary for nil metadata: %+v", s)
	}
}
