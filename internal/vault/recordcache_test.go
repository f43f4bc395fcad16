package vault

import "testing"

func TestRecordCachePutGetDelete(t *testing.T) {
	c := NewRecordCache()
	f := File{ID: "abc", OriginalName: "clip.mp4", FileType: FileTypeVideo}
	c.Put(f)

	got, ok := c.Get("abc")
	if !ok || got.OriginalName != "clip.mp4" {
		t.Fatalf("expected cached record, got %+v ok=%v", got, ok)
	}

	c.Delete("abc")
	if _, ok := c.Get("abc"); ok {
		t.Fatalf("expected record to be gone after Delete")
	}
}

func TestRecordCacheClear(t *testing.T) {
	c := NewRecordCache()
	c.Put(File{ID: "1"})
	c.Put(File{ID: "2"})
	if len(c.List()) != 2 {
		t.Fatalf("expected 2 cached records")
	}
	c.Clear()
	if len(c.List()) != 0 {
		t.Fatalf("expected Clear to empty the cache")
	}
}
