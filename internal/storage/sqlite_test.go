package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/rulecache"
)

func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := Open(context.Background(), MemoryPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpen_NotADatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tally.db")
	garbage := []byte(strings.Repeat("this is a csv export, not sqlite\n", 200))
	if err := os.WriteFile(dbPath, garbage, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	store, err := Open(context.Background(), dbPath)
	if err == nil {
		_ = store.Close()
		t.Fatal("expected an error opening a non-database file")
	}
	if !errors.Is(err, common.ErrDatabaseCorrupted) {
		t.Errorf("Open() error = %v, want ErrDatabaseCorrupted", err)
	}
}

func TestOpen_FileDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "tally.db")
	ctx := context.Background()

	store, err := Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	if store.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", store.Path(), dbPath)
	}
	_ = store.Close()

	// Reopening an up-to-date database applies nothing and still verifies.
	store, err = Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	defer func() { _ = store.Close() }()

	version, err := store.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != ExpectedSchemaVersion {
		t.Errorf("version = %d, want %d", version, ExpectedSchemaVersion)
	}
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteStorage("  "); !errors.Is(err, ErrEmptyString) {
		t.Errorf("expected ErrEmptyString, got %v", err)
	}
}

func TestRules_CreateListOrder(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	sub := "Bread"
	first := &model.MerchantRule{SourceName: "BYENS", CleanSourceName: "Byens Brødhus", AutoCategory: "Food", AutoSubCategory: &sub}
	second := &model.MerchantRule{SourceName: "BYENS BRØDHUS", AutoCategory: "Groceries", MatchMode: model.MatchExact}

	for _, r := range []*model.MerchantRule{first, second} {
		if err := store.CreateRule(ctx, r); err != nil {
			t.Fatalf("CreateRule: %v", err)
		}
	}
	if first.ID == "" || first.Position != 1 || second.Position != 2 {
		t.Fatalf("unexpected assignment: first=%+v second=%+v", first, second)
	}
	if first.MatchMode != model.MatchFuzzy {
		t.Errorf("default match mode = %q, want fuzzy", first.MatchMode)
	}

	rules, err := store.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(rules) != 2 || rules[0].ID != first.ID || rules[1].ID != second.ID {
		t.Fatalf("rules out of order: %+v", rules)
	}
	if rules[0].AutoSubCategory == nil || *rules[0].AutoSubCategory != "Bread" {
		t.Errorf("sub category not round-tripped: %v", rules[0].AutoSubCategory)
	}
	if rules[1].AutoSubCategory != nil {
		t.Errorf("expected nil sub category, got %q", *rules[1].AutoSubCategory)
	}
	if rules[1].MatchMode != model.MatchExact {
		t.Errorf("match mode = %q, want exact", rules[1].MatchMode)
	}

	// Moving the second rule ahead of the first flips table order.
	if err := store.MoveRule(ctx, second.ID, 0); err != nil {
		t.Fatalf("MoveRule: %v", err)
	}
	rules, err = store.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if rules[0].ID != second.ID {
		t.Errorf("expected moved rule first, got %s", rules[0].ID)
	}
}

func TestRules_Validation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		rule *model.MerchantRule
		want error
		name string
	}{
		{name: "nil rule", rule: nil, want: ErrNilParameter},
		{name: "no names", rule: &model.MerchantRule{AutoCategory: "Food"}, want: model.ErrInvalidRule},
		{name: "no category", rule: &model.MerchantRule{SourceName: "NETTO"}, want: model.ErrInvalidRule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.CreateRule(ctx, tt.rule); !errors.Is(err, tt.want) {
				t.Errorf("CreateRule() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRules_DuplicateAndDelete(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	rule := &model.MerchantRule{ID: "fixed", SourceName: "NETTO", AutoCategory: "Groceries"}
	if err := store.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	dup := &model.MerchantRule{ID: "fixed", SourceName: "FOTEX", AutoCategory: "Groceries"}
	if err := store.CreateRule(ctx, dup); !errors.Is(err, common.ErrDuplicateEntry) {
		t.Errorf("expected ErrDuplicateEntry, got %v", err)
	}

	got, err := store.GetRule(ctx, "fixed")
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if got.SourceName != "NETTO" {
		t.Errorf("SourceName = %q", got.SourceName)
	}

	if err := store.DeleteRule(ctx, "fixed"); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if err := store.DeleteRule(ctx, "fixed"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetRule(ctx, "fixed"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.MoveRule(ctx, "missing", 3); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNoiseFilters(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	for _, p := range []string{"Nota nr.", "DANKORT", "MobilePay"} {
		if _, err := store.AddNoiseFilter(ctx, p); err != nil {
			t.Fatalf("AddNoiseFilter(%q): %v", p, err)
		}
	}
	if _, err := store.AddNoiseFilter(ctx, "dankort"); !errors.Is(err, common.ErrDuplicateEntry) {
		t.Errorf("expected ErrDuplicateEntry for case variant, got %v", err)
	}
	if _, err := store.AddNoiseFilter(ctx, " "); !errors.Is(err, ErrEmptyString) {
		t.Errorf("expected ErrEmptyString, got %v", err)
	}

	filters, err := store.ListNoiseFilters(ctx)
	if err != nil {
		t.Fatalf("ListNoiseFilters: %v", err)
	}
	got := model.FilterPatterns(filters)
	want := []string{"Nota nr.", "DANKORT", "MobilePay"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("filter %d = %q, want %q", i, got[i], want[i])
		}
	}

	if err := store.DeleteNoiseFilter(ctx, "mobilepay"); err != nil {
		t.Fatalf("DeleteNoiseFilter: %v", err)
	}
	if err := store.DeleteNoiseFilter(ctx, "mobilepay"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTransactions_Upsert(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	sub := "Car"
	matched := model.ParsedTransaction{
		Amount:          decimal.RequireFromString("-3126.38"),
		Date:            "2025-01-13",
		RawDescriptor:   "BS TOPDANMARK - EN DEL AF IF FO",
		CleanDescriptor: "TOPDANMARK - EN DEL AF IF FO",
		MerchantName:    "Topdanmark",
		Category:        "Insurance",
		SubCategory:     &sub,
		RuleID:          "r1",
		Confidence:      0.8,
		Matched:         true,
		Source:          "jan.csv",
	}
	pending := model.ParsedTransaction{
		Amount:          decimal.RequireFromString("-89.5"),
		Date:            "2025-01-14",
		RawDescriptor:   "BOGHANDEL",
		CleanDescriptor: "BOGHANDEL",
		MerchantName:    "BOGHANDEL",
		Issues:          []model.Issue{model.IssueUncategorized},
		Suggestion:      &model.Suggestion{Category: "Books", Confidence: 0.6, Source: "enrich"},
	}

	res, err := store.SaveTransactions(ctx, []model.ParsedTransaction{matched, pending})
	if err != nil {
		t.Fatalf("SaveTransactions: %v", err)
	}
	if res.Inserted != 2 || res.Updated != 0 {
		t.Errorf("first save = %+v", res)
	}

	got, err := store.GetTransaction(ctx, matched.GenerateHash())
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if !got.Amount.Equal(matched.Amount) || got.Category != "Insurance" || got.SubCategory == nil || *got.SubCategory != "Car" {
		t.Errorf("matched transaction not round-tripped: %+v", got)
	}
	if got.Issues != nil || got.Suggestion != nil || !got.Matched || got.RuleID != "r1" {
		t.Errorf("unexpected fields: %+v", got)
	}

	total, pendingCount, err := store.CountTransactions(ctx)
	if err != nil {
		t.Fatalf("CountTransactions: %v", err)
	}
	if total != 2 || pendingCount != 1 {
		t.Errorf("counts = %d/%d, want 2/1", total, pendingCount)
	}

	list, err := store.ListPending(ctx, 0)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(list) != 1 || list[0].RawDescriptor != "BOGHANDEL" {
		t.Fatalf("pending = %+v", list)
	}
	if list[0].Suggestion == nil || list[0].Suggestion.Category != "Books" || list[0].Suggestion.Source != "enrich" {
		t.Errorf("suggestion not round-tripped: %+v", list[0].Suggestion)
	}
	if len(list[0].Issues) != 1 || list[0].Issues[0] != model.IssueUncategorized {
		t.Errorf("issues not round-tripped: %v", list[0].Issues)
	}

	// Re-importing after a rule was added updates the categorization.
	pending.Category = "Books"
	pending.Matched = true
	pending.Confidence = 1
	pending.Issues = nil
	pending.Suggestion = nil
	res, err = store.SaveTransactions(ctx, []model.ParsedTransaction{pending})
	if err != nil {
		t.Fatalf("SaveTransactions: %v", err)
	}
	if res.Inserted != 0 || res.Updated != 1 {
		t.Errorf("second save = %+v", res)
	}

	total, pendingCount, err = store.CountTransactions(ctx)
	if err != nil {
		t.Fatalf("CountTransactions: %v", err)
	}
	if total != 2 || pendingCount != 0 {
		t.Errorf("counts = %d/%d, want 2/0", total, pendingCount)
	}
}

func TestTransactions_ResolveHash(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	txns := []model.ParsedTransaction{
		{Amount: decimal.RequireFromString("1"), Date: "2025-01-01", RawDescriptor: "A"},
		{Amount: decimal.RequireFromString("2"), Date: "2025-01-01", RawDescriptor: "B"},
	}
	if _, err := store.SaveTransactions(ctx, txns); err != nil {
		t.Fatalf("SaveTransactions: %v", err)
	}
	full := txns[0].GenerateHash()

	got, err := store.ResolveHash(ctx, strings.ToUpper(full[:10]))
	if err != nil {
		t.Fatalf("ResolveHash: %v", err)
	}
	if got != full {
		t.Errorf("ResolveHash = %s, want %s", got, full)
	}

	if _, err := store.ResolveHash(ctx, "zzzz"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.ResolveHash(ctx, " "); !errors.Is(err, ErrEmptyString) {
		t.Errorf("expected ErrEmptyString, got %v", err)
	}

	if got, err := store.ResolveHash(ctx, full); err != nil || got != full {
		t.Errorf("full hash lookup = %q, %v", got, err)
	}
}

func TestTransactions_Validation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	bad := model.ParsedTransaction{RawDescriptor: "X", Confidence: 1.5}
	if _, err := store.SaveTransactions(ctx, []model.ParsedTransaction{bad}); !errors.Is(err, ErrInvalidTransaction) {
		t.Errorf("expected ErrInvalidTransaction, got %v", err)
	}

	if _, err := store.GetTransaction(ctx, "nope"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestKV_BacksRuleCache(t *testing.T) {
	store := createTestStorage(t)

	if _, ok, err := store.Get("missing"); err != nil || ok {
		t.Fatalf("Get(missing) = %v, %v", ok, err)
	}

	cache := rulecache.New(store)
	if _, err := cache.Save([]model.MerchantRule{{ID: "a", SourceName: "NETTO", AutoCategory: "Groceries"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := cache.Save([]model.MerchantRule{{ID: "b", SourceName: "FOTEX", AutoCategory: "Groceries"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	snap := cache.Load()
	if snap == nil || len(snap.Rules) != 1 || snap.Rules[0].ID != "b" {
		t.Fatalf("snapshot = %+v", snap)
	}

	if err := store.Set("", "x"); !errors.Is(err, ErrEmptyString) {
		t.Errorf("expected ErrEmptyString, got %v", err)
	}
}

func TestValidateContext(t *testing.T) {
	store := createTestStorage(t)

	//nolint:staticcheck // testing nil context handling
	if _, err := store.ListRules(nil); !errors.Is(err, ErrNilContext) {
		t.Errorf("expected ErrNilContext, got %v", err)
	}
}
