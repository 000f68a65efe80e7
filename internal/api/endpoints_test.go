package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func readJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func TestResolveUserID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/products" {
			t.Errorf("path = %q, want /rest/v1/products", r.URL.Path)
		}
		query := r.URL.Query()
		if got := query.Get("select"); got != "user_id" {
			t.Errorf("select = %q, want user_id", got)
		}
		if got := query.Get("product_key"); got != "eq.fg-1234" {
			t.Errorf("product_key = %q, want eq.fg-1234", got)
		}
		w.Write([]byte(`[{"user_id":"user-42"}]`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	userID, err := client.ResolveUserID(context.Background(), "fg-1234")
	if err != nil {
		t.Fatalf("ResolveUserID() error = %v", err)
	}
	if userID != "user-42" {
		t.Errorf("userID = %q, want user-42", userID)
	}
}

func TestResolveUserID_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	if _, err := client.ResolveUserID(context.Background(), "fg-unknown"); !errors.Is(err, ErrProductNotFound) {
		t.Errorf("err = %v, want ErrProductNotFound", err)
	}
}

func TestGetProfile(t *testing.T) {
	tests := []struct {
		name string
		row  string
	}{
		{
			name: "plain array keys",
			row: `[{"user_id":"user-42","updated_at":"2026-08-20T10:00:00Z",` +
				`"images":["user-42/a.jpg","user-42/b.jpg"],` +
				`"images_encrypted_keys":["AAAA","BBBB"]}]`,
		},
		{
			name: "double-encoded keys",
			row: `[{"user_id":"user-42","updated_at":"2026-08-20T10:00:00Z",` +
				`"images":["user-42/a.jpg","user-42/b.jpg"],` +
				`"images_encrypted_keys":"[\"AAAA\",\"BBBB\"]"}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/rest/v1/user_profiles" {
					t.Errorf("path = %q, want /rest/v1/user_profiles", r.URL.Path)
				}
				if got := r.URL.Query().Get("user_id"); got != "eq.user-42" {
					t.Errorf("user_id = %q, want eq.user-42", got)
				}
				w.Write([]byte(tt.row))
			}))
			defer server.Close()

			client := testClient(t, server.URL)
			profile, err := client.GetProfile(context.Background(), "user-42")
			if err != nil {
				t.Fatalf("GetProfile() error = %v", err)
			}

			if profile.UserID != "user-42" {
				t.Errorf("UserID = %q, want user-42", profile.UserID)
			}
			if profile.UpdatedAt != "2026-08-20T10:00:00Z" {
				t.Errorf("UpdatedAt = %q", profile.UpdatedAt)
			}
			if len(profile.ImagePaths) != 2 || profile.ImagePaths[0] != "user-42/a.jpg" {
				t.Errorf("ImagePaths = %v", profile.ImagePaths)
			}
			if len(profile.WrappedKeys) != 2 || profile.WrappedKeys[1] != "BBBB" {
				t.Errorf("WrappedKeys = %v", profile.WrappedKeys)
			}
		})
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	if _, err := client.GetProfile(context.Background(), "user-42"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("err = %v, want ErrProfileNotFound", err)
	}
}

func TestGetProfile_BadKeyColumn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"user_id":"user-42","images":[],"images_encrypted_keys":42}]`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	if _, err := client.GetProfile(context.Background(), "user-42"); err == nil {
		t.Error("expected error for malformed key column")
	}
}

func TestPublishPublicKey(t *testing.T) {
	var patched bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		if got := r.URL.Query().Get("product_key"); got != "eq.fg-1234" {
			t.Errorf("product_key = %q, want eq.fg-1234", got)
		}
		var body map[string]string
		if err := readJSON(r, &body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["public_key"] != "PEM-MATERIAL" {
			t.Errorf("public_key = %q", body["public_key"])
		}
		patched = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	if err := client.PublishPublicKey(context.Background(), "fg-1234", "PEM-MATERIAL"); err != nil {
		t.Fatalf("PublishPublicKey() error = %v", err)
	}
	if !patched {
		t.Error("PATCH request never arrived")
	}
}

func TestDownloadItem(t *testing.T) {
	payload := []byte{0x00, 0x11, 0x22, 0x33}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/object/images/user-42/a.jpg" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write(payload)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	data, err := client.DownloadItem(context.Background(), "user-42/a.jpg")
	if err != nil {
		t.Fatalf("DownloadItem() error = %v", err)
	}
	if string(data) != string(payload) {
		t.Errorf("data = %x, want %x", data, payload)
	}
}

func TestDownloadItem_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not_found","message":"Object not found"}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	if _, err := client.DownloadItem(context.Background(), "user-42/missing.jpg"); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("err = %v, want ErrItemNotFound", err)
	}
}

func TestEscapePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"user-42/a.jpg", "user-42/a.jpg"},
		{"user 42/a b.jpg", "user%2042/a%20b.jpg"},
		{"plain.png", "plain.png"},
	}

	for _, tt := range tests {
		if got := escapePath(tt.in); got != tt.want {
			t.Errorf("escapePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
