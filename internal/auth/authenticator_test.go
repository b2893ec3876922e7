package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleet-monitor/speedwatch/internal/config"
)

type fakeKeys struct {
	keys  map[string]string
	err   error
	calls int
}

func (f *fakeKeys) GetAPIKey(_ context.Context, apiKey string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.keys[apiKey], nil
}

func TestValidate(t *testing.T) {
	keys := &fakeKeys{keys: map[string]string{"ops_key": "ops"}}
	cfg := &config.Config{ValidAPIKeys: []string{"static", ""}, AuthCacheTTLSeconds: 60}
	a := NewAuthenticator(cfg, keys, nil)

	tests := []struct {
		key  string
		want bool
	}{
		{"static", true},
		{"ops_key", true},
		{"nope", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := a.Validate(context.Background(), tt.key); got != tt.want {
			t.Errorf("Validate(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestValidateCachesLookups(t *testing.T) {
	keys := &fakeKeys{keys: map[string]string{"ops_key": "ops"}}
	a := NewAuthenticator(&config.Config{AuthCacheTTLSeconds: 60}, keys, nil)
	now := time.Unix(1700000000, 0)
	a.now = func() time.Time { return now }

	a.Validate(context.Background(), "ops_key")
	a.Validate(context.Background(), "ops_key")
	if keys.calls != 1 {
		t.Fatalf("lookups = %d, want 1 (cached)", keys.calls)
	}

	now = now.Add(2 * time.Minute)
	a.Validate(context.Background(), "ops_key")
	if keys.calls != 2 {
		t.Fatalf("lookups = %d, want expired entry to be refreshed", keys.calls)
	}
}

func TestValidateLookupError(t *testing.T) {
	a := NewAuthenticator(&config.Config{}, &fakeKeys{err: errors.New("redis down")}, nil)
	if a.Validate(context.Background(), "k") {
		t.Error("lookup error must reject the key")
	}

	noStore := NewAuthenticator(&config.Config{ValidAPIKeys: []string{"static"}}, nil, nil)
	if !noStore.Validate(context.Background(), "static") || noStore.Validate(context.Background(), "k") {
		t.Error("without a key store only static keys are valid")
	}
}
