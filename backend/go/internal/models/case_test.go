package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCaseStatus_Valid(t *testing.T) {
	for _, s := range []CaseStatus{CaseOpen, CaseResolved, CaseUnknown} {
		if !s.Valid() {
			t.Errorf("%q.Valid() = false", s)
		}
	}
	if CaseStatus("closed").Valid() {
		t.Error(`"closed".Valid() = true`)
	}
}

func TestErrorInfo_OmitsEmptyFields(t *testing.T) {
	b, err := json.Marshal(ErrorInfo{Message: "portal down"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if got := string(b); got != `{"message":"portal down"}` {
		t.Errorf("Marshal() = %s", got)
	}

	b, _ = json.Marshal(RequestInfo{Method: "GET", Path: "/healthz"})
	if !strings.Contains(string(b), `"remote_addr":""`) {
		t.Errorf("RequestInfo should always carry remote_addr: %s", b)
	}
}
