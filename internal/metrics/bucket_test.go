package metrics

import (
	"testing"

	"github.com/google/uuid"
)

func TestNormalizePath(t *testing.T) {
	a := uuid.NewString()
	b := uuid.NewString()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "/api/v1/tweets", "/api/v1/tweets"},
		{"single id", "/api/v1/users/" + a + "/tweets", "/api/v1/users/{id}/tweets"},
		{"two ids", "/api/v1/users/" + a + "/follow/" + b, "/api/v1/users/{id}/follow/{id}"},
		{"query stripped", "/api/v1/users/" + a + "/timeline?limit=10&cursor=abc", "/api/v1/users/{id}/timeline"},
		{"non uuid kept", "/api/v1/users/alice/tweets", "/api/v1/users/alice/tweets"},
		{"already normalized", "/api/v1/users/{id}/tweets", "/api/v1/users/{id}/tweets"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePath(tt.in)
			if got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := NormalizePath(got); again != got {
				t.Errorf("NormalizePath is not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestBucketKey_CollapsesIdentifiers(t *testing.T) {
	for i := 0; i < 20; i++ {
		k1 := BucketKey("get", "/users/"+uuid.NewString()+"/tweets")
		k2 := BucketKey("GET", "/users/"+uuid.NewString()+"/tweets")
		if k1 != k2 {
			t.Fatalf("Expected same bucket, got %q and %q", k1, k2)
		}
		if k1 != "GET /users/{id}/tweets" {
			t.Fatalf("Unexpected bucket key %q", k1)
		}
	}
}
