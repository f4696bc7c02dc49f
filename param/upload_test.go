package param_test

import (
	"testing"

	"github.com/gotap/tapd/param"
)

func TestParseUploadsEmpty(t *testing.T) {
	uploads, err := param.ParseUploads("")
	if err != nil {
		t.Fatal(err)
	}
	if uploads != nil {
		t.Fatalf("expected nil, got %v", uploads)
	}
}

func TestParseUploadsMultiple(t *testing.T) {
	uploads, err := param.ParseUploads("t1,http://example.com/t1.vot;t2,http://example.com/t2.vot")
	if err != nil {
		t.Fatal(err)
	}
	if len(uploads) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(uploads))
	}
	if uploads[0].Name != "t1" || uploads[0].URI != "http://example.com/t1.vot" {
		t.Fatalf("unexpected first upload: %+v", uploads[0])
	}
	if uploads[1].Name != "t2" {
		t.Fatalf("unexpected second upload: %+v", uploads[1])
	}
}

func TestParseUploadsMalformed(t *testing.T) {
	if _, err := param.ParseUploads("noseparator"); err == nil {
		t.Fatal("expected error for malformed entry")
	}
}
