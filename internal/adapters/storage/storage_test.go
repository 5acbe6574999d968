package storage

import (
	"testing"

	"sgjobs_backend/platform/apperr"
)

func TestValidateContentType(t *testing.T) {
	if err := ValidateContentType("image/JPEG; charset=binary"); err != nil {
		t.Fatalf("expected jpeg to be allowed, got %v", err)
	}
	if err := ValidateContentType("application/x-msdownload"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateFileSize(t *testing.T) {
	if err := ValidateFileSize(0, 10); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for empty file, got %v", err)
	}
	if err := ValidateFileSize(11, 10); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for oversized file, got %v", err)
	}
	if err := ValidateFileSize(10, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestObjectKeyStripsClientDirectories(t *testing.T) {
	cases := map[string]string{
		"Foto.JPG":               "jobs/42/Foto_abcd1234.jpg",
		"../../etc/passwd.png":   "jobs/42/passwd_abcd1234.png",
		`C:\Users\me\keller.pdf`: "jobs/42/keller_abcd1234.pdf",
		"":                       "jobs/42/upload_abcd1234",
	}
	for in, want := range cases {
		if got := ObjectKey("jobs/42", in, "abcd1234"); got != want {
			t.Fatalf("%q: expected %q, got %q", in, want, got)
		}
	}
}
