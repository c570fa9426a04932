package archive

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dvloznov/finance-insights/internal/advisor"
	"github.com/dvloznov/finance-insights/internal/domain"
)

var _ advisor.Archiver = (*GCSArchiver)(nil)

func TestObjectName(t *testing.T) {
	an := &domain.Analysis{
		ID:        "a1",
		UserRef:   "user_0123456789abcdef",
		CreatedAt: time.Date(2024, 3, 9, 23, 30, 0, 0, time.FixedZone("X", -2*3600)),
	}

	got := ObjectName("analyses", an)

	want := "analyses/user_0123456789abcdef/2024/03/a1.json"
	if got != want {
		t.Errorf("ObjectName = %q, want %q", got, want)
	}
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri        string
		bucket     string
		object     string
		shouldFail bool
	}{
		{"gs://audit/analyses/u/2024/03/a1.json", "audit", "analyses/u/2024/03/a1.json", false},
		{"gs://audit/a1.json", "audit", "a1.json", false},
		{"s3://audit/a1.json", "", "", true},
		{"gs://audit", "", "", true},
		{"gs:///a1.json", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if tt.shouldFail {
				if err == nil {
					t.Errorf("expected error for %q", tt.uri)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseURI: %v", err)
			}
			if bucket != tt.bucket || object != tt.object {
				t.Errorf("got %q %q", bucket, object)
			}
			if URI(bucket, object) != tt.uri {
				t.Errorf("URI round trip = %q", URI(bucket, object))
			}
		})
	}
}

func TestDocument(t *testing.T) {
	an := &domain.Analysis{
		ID:       "a1",
		UserRef:  "user_0123456789abcdef",
		Kind:     "single",
		Response: json.RawMessage(`{"insights":[]}`),
	}

	data, err := Document(an)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("archived document is not JSON: %v", err)
	}
	if decoded["user_ref"] != "user_0123456789abcdef" {
		t.Errorf("user_ref = %v", decoded["user_ref"])
	}
	if _, ok := decoded["response"].(map[string]any); !ok {
		t.Errorf("response should be embedded as an object: %T", decoded["response"])
	}
}
