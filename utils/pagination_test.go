package utils

import "testing"

func TestParsePageQuery(t *testing.T) {
	cases := []struct {
		page, limit         string
		wantPage, wantLimit int
	}{
		{"", "", 1, 10},
		{"3", "25", 3, 25},
		{"0", "-5", 1, 10},
		{"abc", "xyz", 1, 10},
		{"2", "1000", 2, 10},
	}
	for i, c := range cases {
		p, l := ParsePageQuery(c.page, c.limit)
		if p != c.wantPage || l != c.wantLimit {
			t.Errorf("case %d: got (%d, %d), want (%d, %d)", i, p, l, c.wantPage, c.wantLimit)
		}
	}
}

func TestPaginate(t *testing.T) {
	cases := []struct {
		page, limit int
		total       int64
		wantPages   int
		wantNext    bool
		wantPrev    bool
	}{
		{1, 10, 0, 0, false, false},
		{1, 10, 10, 1, false, false},
		{1, 10, 11, 2, true, false},
		{2, 10, 11, 2, false, true},
		{2, 10, 25, 3, true, true},
		{5, 10, 25, 3, false, true},
	}
	for i, c := range cases {
		p := Paginate(c.page, c.limit, c.total)
		if p.TotalPages != c.wantPages {
			t.Errorf("case %d: total pages %d, want %d", i, p.TotalPages, c.wantPages)
		}
		if p.HasNext != c.wantNext || p.HasPrev != c.wantPrev {
			t.Errorf("case %d: hasNext=%v hasPrev=%v, want %v/%v", i, p.HasNext, p.HasPrev, c.wantNext, c.wantPrev)
		}
		if p.CurrentPage != c.page || p.TotalItems != c.total {
			t.Errorf("case %d: page metadata echoed wrong: %+v", i, p)
		}
	}
}

// hasNext must agree with page*limit < total for any combination.
func TestPaginateProperty(t *testing.T) {
	for page := 1; page <= 7; page++ {
		for limit := 1; limit <= 12; limit++ {
			for total := int64(0); total <= 40; total += 7 {
				p := Paginate(page, limit, total)
				if p.HasNext != (int64(page)*int64(limit) < total) {
					t.Fatalf("hasNext mismatch at page=%d limit=%d total=%d", page, limit, total)
				}
				if p.HasPrev != (page > 1) {
					t.Fatalf("hasPrev mismatch at page=%d", page)
				}
			}
		}
	}
}
