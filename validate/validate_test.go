package validate_test

import (
	"errors"
	"testing"

	"github.com/gotap/tapd/errs"
	"github.com/gotap/tapd/param"
	"github.com/gotap/tapd/validate"
)

func TestParamsHappyPath(t *testing.T) {
	s := param.NewSet()
	s.Request = "doQuery"
	s.Lang = "adql"
	s.Query = "SELECT 1"
	if err := validate.Params(&s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParamsRequestCaseInsensitive(t *testing.T) {
	s := param.NewSet()
	s.Request = "DOQUERY"
	s.Lang = "ADQL"
	s.Query = "SELECT 1"
	if err := validate.Params(&s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParamsRejectsUnknownRequest(t *testing.T) {
	s := param.NewSet()
	s.Request = "deleteEverything"
	if err := validate.Params(&s); !errors.Is(err, errs.ErrInvalidParam) {
		t.Fatalf("expected ErrInvalidParam, got %v", err)
	}
}

func TestParamsRequiresQueryForDoQuery(t *testing.T) {
	s := param.NewSet()
	s.Request = "doQuery"
	s.Lang = "ADQL"
	if err := validate.Params(&s); !errors.Is(err, errs.ErrInvalidParam) {
		t.Fatalf("expected ErrInvalidParam for missing QUERY, got %v", err)
	}
}

func TestParamsGetCapabilitiesNeedsNoQuery(t *testing.T) {
	s := param.NewSet()
	s.Request = "getCapabilities"
	if err := validate.Params(&s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParamsRejectsMaxRecBelowSentinel(t *testing.T) {
	s := param.NewSet()
	s.Request = "doQuery"
	s.Lang = "ADQL"
	s.Query = "SELECT 1"
	s.MaxRec = -2
	if err := validate.Params(&s); !errors.Is(err, errs.ErrInvalidParam) {
		t.Fatalf("expected ErrInvalidParam for MAXREC < -1, got %v", err)
	}
}
