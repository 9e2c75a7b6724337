package pagination

import "testing"

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: "2026-01-02T03:04:05Z"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cursor, err := DecodeCursor(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cursor.ID != "42" || cursor.CreatedAt != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected cursor: %+v", cursor)
	}
}

func TestDecodeEmptyCursor(t *testing.T) {
	cursor, err := DecodeCursor("")
	if err != nil || cursor != nil {
		t.Fatalf("expected nil cursor, got %+v, %v", cursor, err)
	}
}

func TestBuildCursorPageInfo(t *testing.T) {
	rows := []int{1, 2, 3}
	page, info, err := BuildCursorPageInfo(rows, 2, func(v int) Cursor { return Cursor{ID: string(rune('0' + v))} })
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(page) != 2 || !info.HasMore || info.NextPageToken == "" {
		t.Fatalf("unexpected page %v %+v", page, info)
	}

	page, info, _ = BuildCursorPageInfo(rows, 5, func(v int) Cursor { return Cursor{} })
	if len(page) != 3 || info.HasMore {
		t.Fatalf("expected final page, got %v %+v", page, info)
	}
}

func TestLimitClamp(t *testing.T) {
	if (Pagination{}).Limit() != DefaultPageSize {
		t.Fatalf("default limit")
	}
	if (Pagination{PageSize: 1000}).Limit() != MaxPageSize {
		t.Fatalf("max limit")
	}
	if (Pagination{PageSize: 7}).Limit() != 7 {
		t.Fatalf("explicit limit")
	}
}
