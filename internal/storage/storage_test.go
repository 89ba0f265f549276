package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestObjectKeys(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"event image", EventImageKey(3, 42, ".jpg"), "3/events/images/42.jpg"},
		{"event image without dot", EventImageKey(3, 42, "png"), "3/events/images/42.png"},
		{"user photo", UserPhotoKey(1, 7, ".webp"), "1/users/photos/7.webp"},
		{"instructor photo", InstructorPhotoKey(1, 9, ".jpg"), "1/instructors/photos/instructor_9.jpg"},
		{"request media", RequestMediaKey(2, 11, 5, ".mp4"), "2/requests/11/5.mp4"},
		{"empty ext falls back", EventImageKey(1, 1, ""), "1/events/images/1.bin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("key = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestExtFromFilename(t *testing.T) {
	tests := []struct {
		filename    string
		contentType string
		want        string
	}{
		{"photo.JPG", "", ".jpg"},
		{"clip.mp4", "image/png", ".mp4"},
		{"", "image/jpeg", ".jpg"},
		{"noext", "image/png", ".png"},
		{"", "application/unknown", ".bin"},
	}
	for _, tt := range tests {
		if got := ExtFromFilename(tt.filename, tt.contentType); got != tt.want {
			t.Errorf("ExtFromFilename(%q, %q) = %q, want %q", tt.filename, tt.contentType, got, tt.want)
		}
	}
}

func TestLocalStoreRoundtrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "http://localhost:8080/")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	key := EventImageKey(5, 1, ".png")
	url, err := store.Upload(ctx, key, []byte("fake-png"), "image/png")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if want := "http://localhost:8080/media/5/events/images/1.png"; url != want {
		t.Errorf("Upload url = %q, want %q", url, want)
	}

	data, err := os.ReadFile(filepath.Join(dir, "5", "events", "images", "1.png"))
	if err != nil {
		t.Fatalf("reading stored file: %v", err)
	}
	if string(data) != "fake-png" {
		t.Errorf("stored contents = %q", data)
	}

	empty, err := store.PrefixEmpty(ctx, 5)
	if err != nil {
		t.Fatalf("PrefixEmpty: %v", err)
	}
	if empty {
		t.Error("PrefixEmpty = true with an object present")
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Deleting again must not error.
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("repeat Delete: %v", err)
	}

	if err := store.RemovePrefix(ctx, 5); err != nil {
		t.Fatalf("RemovePrefix: %v", err)
	}
	empty, err = store.PrefixEmpty(ctx, 5)
	if err != nil {
		t.Fatalf("PrefixEmpty after removal: %v", err)
	}
	if !empty {
		t.Error("PrefixEmpty = false after RemovePrefix")
	}
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://localhost:8080")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	if _, err := store.Upload(context.Background(), "../outside.txt", []byte("x"), "text/plain"); err == nil {
		t.Fatal("Upload with escaping key succeeded")
	}
}
