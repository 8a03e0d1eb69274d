package pagination

import "testing"

func TestNormalize(t *testing.T) {
	p := Params{}.Normalize()
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	p = Params{Limit: 1000, Offset: -5}.Normalize()
	if p.Limit != MaxLimit {
		t.Errorf("expected max limit %d, got %d", MaxLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected offset clamped to 0, got %d", p.Offset)
	}
}

func TestOffsets(t *testing.T) {
	p := Params{Limit: 20, Offset: 40}
	if !p.HasNext(100) {
		t.Error("expected next page at offset 40 of 100")
	}
	if p.HasNext(60) {
		t.Error("expected no next page at offset 40 of 60")
	}
	if p.NextOffset() != 60 {
		t.Errorf("expected next offset 60, got %d", p.NextOffset())
	}
	if p.PreviousOffset() != 20 {
		t.Errorf("expected previous offset 20, got %d", p.PreviousOffset())
	}
	if (Params{Limit: 20, Offset: 10}).PreviousOffset() != 0 {
		t.Error("expected previous offset clamped to 0")
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]int{1, 2}, 50, 20, 0)
	if !r.HasMore {
		t.Error("expected has_more true")
	}
	r = NewResponse([]int{1, 2}, 2, 20, 0)
	if r.HasMore {
		t.Error("expected has_more false")
	}
}
