package template

import (
	"sort"
	"strings"
	"testing"
)

func TestListSortedAndComplete(t *testing.T) {
	templates := List()
	if len(templates) == 0 {
		t.Fatal("expected built-in templates")
	}
	if !sort.SliceIsSorted(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID }) {
		t.Fatal("expected templates sorted by id")
	}
	for _, tpl := range templates {
		if tpl.ID == "" || tpl.Name == "" || tpl.Category == "" || tpl.Difficulty == "" {
			t.Fatalf("template %+v has empty metadata", tpl)
		}
		if !strings.Contains(strings.ToUpper(tpl.SQL), "SELECT") {
			t.Fatalf("template %s has no query body", tpl.ID)
		}
	}
}

func TestListReturnsCopy(t *testing.T) {
	first := List()
	first[0].Name = "mutated"
	if second := List(); second[0].Name == "mutated" {
		t.Fatal("List() exposed shared backing storage")
	}
}

func TestGet(t *testing.T) {
	tpl, ok := Get("rfm_analysis")
	if !ok {
		t.Fatal("expected rfm_analysis template")
	}
	if tpl.Category != "customers" {
		t.Fatalf("category = %q, want customers", tpl.Category)
	}
	if _, ok := Get("nope"); ok {
		t.Fatal("expected miss for unknown id")
	}
}

func TestByCategory(t *testing.T) {
	customers := ByCategory("customers")
	if len(customers) != 2 {
		t.Fatalf("got %d customer templates, want 2", len(customers))
	}
	for _, tpl := range customers {
		if tpl.Category != "customers" {
			t.Fatalf("unexpected category %q", tpl.Category)
		}
	}
	if unknown := ByCategory("nope"); len(unknown) != 0 {
		t.Fatalf("expected no templates, got %v", unknown)
	}
}

func TestCategoriesSortedUnique(t *testing.T) {
	categories := Categories()
	want := []string{"customers", "products", "sales"}
	if len(categories) != len(want) {
		t.Fatalf("categories = %v, want %v", categories, want)
	}
	for i, category := range want {
		if categories[i] != category {
			t.Fatalf("categories = %v, want %v", categories, want)
		}
	}
}
