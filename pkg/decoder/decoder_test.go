package decoder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"stream-proxy-go/pkg/logging"
	"stream-proxy-go/pkg/types"
)

func TestAddHost(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		host string
		want string
	}{
		{
			name: "single placeholder",
			raw:  "https://tmstr1.{v1}/pl/abc/master.m3u8",
			host: "cloudnestra.com",
			want: "https://tmstr1.cloudnestra.com/pl/abc/master.m3u8",
		},
		{
			name: "all placeholders in joined list",
			raw:  "https://tmstr1.{v1}/pl/a/master.m3u8,https://tmstr2.{v4}/cdnstr/b/list.m3u8",
			host: "example.net",
			want: "https://tmstr1.example.net/pl/a/master.m3u8,https://tmstr2.example.net/cdnstr/b/list.m3u8",
		},
		{
			name: "empty host uses default",
			raw:  "https://tmstr1.{v2}/pl/a/master.m3u8",
			want: "https://tmstr1.cloudnestra.com/pl/a/master.m3u8",
		},
		{
			name: "no placeholder untouched",
			raw:  "https://cdn.example.com/x.m3u8",
			host: "cloudnestra.com",
			want: "https://cdn.example.com/x.m3u8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AddHost(tt.raw, tt.host)
			if got != tt.want {
				t.Errorf("AddHost() = %q, want %q", got, tt.want)
			}
			if HasPlaceholder(got) {
				t.Errorf("AddHost() left a placeholder in %q", got)
			}
		})
	}
}

func TestSplitCandidates(t *testing.T) {
	tests := []struct {
		name    string
		decoded string
		want    []string
	}{
		{
			name:    "two candidates",
			decoded: "https://a/x.m3u8 or https://b/y.m3u8",
			want:    []string{"https://a/x.m3u8", "https://b/y.m3u8"},
		},
		{
			name:    "extra whitespace and newline",
			decoded: "  https://a/x.m3u8\n or\thttps://b/y.m3u8 ",
			want:    []string{"https://a/x.m3u8", "https://b/y.m3u8"},
		},
		{
			name:    "or inside url is not a separator",
			decoded: "https://storage.example/cdnstr/orbit/master.m3u8",
			want:    []string{"https://storage.example/cdnstr/orbit/master.m3u8"},
		},
		{
			name:    "duplicates removed",
			decoded: "https://a/x.m3u8 or https://a/x.m3u8 or https://c/z.m3u8",
			want:    []string{"https://a/x.m3u8", "https://c/z.m3u8"},
		},
		{
			name:    "empty",
			decoded: "   ",
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitCandidates(tt.decoded)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitCandidates() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTable_Decode(t *testing.T) {
	table := NewTable(Entry{ID: "k1", Data: "ENC", Plaintext: "https://a/x.m3u8 or https://b/y.m3u8"})

	got, err := table.Decode(context.Background(), types.EncodedPayload{ID: "k1", CipherText: "ENC"})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got != "https://a/x.m3u8 or https://b/y.m3u8" {
		t.Errorf("Decode() = %q", got)
	}

	// Same id, different cipher text is a different payload.
	_, err = table.Decode(context.Background(), types.EncodedPayload{ID: "k1", CipherText: "OTHER"})
	if !errors.Is(err, ErrNoDecoding) {
		t.Errorf("Decode() error = %v, want ErrNoDecoding", err)
	}
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payloads.toml")
	content := `
[[payload]]
id = "k1"
data = "ENC"
plaintext = "https://tmstr1.{v1}/pl/a/master.m3u8"

[[payload]]
id = "k2"
data = "ENC2"
plaintext = "https://b/y.m3u8"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable() error = %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}
	got, err := table.Decode(context.Background(), types.EncodedPayload{ID: "k2", CipherText: "ENC2"})
	if err != nil || got != "https://b/y.m3u8" {
		t.Errorf("Decode() = %q, %v", got, err)
	}
}

func TestLoadTable_MissingFile(t *testing.T) {
	if _, err := LoadTable(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("LoadTable() expected error for missing file")
	}
}

func TestChain_Decode(t *testing.T) {
	failing := Func(func(ctx context.Context, p types.EncodedPayload) (string, error) {
		return "", errors.New("boom")
	})
	empty := Func(func(ctx context.Context, p types.EncodedPayload) (string, error) {
		return "  ", nil
	})
	working := Func(func(ctx context.Context, p types.EncodedPayload) (string, error) {
		return "https://a/" + p.ID + ".m3u8", nil
	})

	t.Run("first usable result wins", func(t *testing.T) {
		got, err := Chain{failing, empty, working}.Decode(context.Background(), types.EncodedPayload{ID: "k"})
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if got != "https://a/k.m3u8" {
			t.Errorf("Decode() = %q", got)
		}
	})

	t.Run("all fail", func(t *testing.T) {
		_, err := Chain{failing, empty}.Decode(context.Background(), types.EncodedPayload{ID: "k"})
		if !errors.Is(err, ErrNoDecoding) {
			t.Errorf("Decode() error = %v, want ErrNoDecoding", err)
		}
	})

	t.Run("empty chain", func(t *testing.T) {
		_, err := Chain{}.Decode(context.Background(), types.EncodedPayload{})
		if !errors.Is(err, ErrNoDecoding) {
			t.Errorf("Decode() error = %v, want ErrNoDecoding", err)
		}
	})
}

func TestRemote_Decode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var req remoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		switch req.ID {
		case "k1":
			json.NewEncoder(w).Encode(remoteResponse{Plaintext: "https://a/" + req.Data + ".m3u8"})
		case "bad":
			json.NewEncoder(w).Encode(remoteResponse{Error: "unknown key"})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	d := NewRemote(server.URL, nil, 5*time.Second, logging.Discard())

	tests := []struct {
		name    string
		payload types.EncodedPayload
		want    string
		wantErr bool
	}{
		{"decoded", types.EncodedPayload{ID: "k1", CipherText: "ENC"}, "https://a/ENC.m3u8", false},
		{"service error field", types.EncodedPayload{ID: "bad", CipherText: "ENC"}, "", true},
		{"service status error", types.EncodedPayload{ID: "other", CipherText: "ENC"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Decode(context.Background(), tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Decode() = %q, want %q", got, tt.want)
			}
		})
	}
}
