package builder

import (
	"reflect"
	"testing"
	"time"

	"github.com/mnohosten/laura-query/pkg/cache"
	"github.com/mnohosten/laura-query/pkg/driver"
)

func seedUsers(t *testing.T) *driver.Memory {
	t.Helper()
	m := driver.NewMemory("users")
	docs := []map[string]interface{}{
		{"name": "alice", "age": 30, "city": "prague", "visits": 3},
		{"name": "bob", "age": 25, "city": "brno", "visits": nil},
		{"name": "carol", "age": 35, "city": "prague", "visits": 7},
		{"name": "dave", "age": 25, "city": "ostrava"},
	}
	if _, err := m.InsertMany(docs); err != nil {
		t.Fatalf("InsertMany failed: %v", err)
	}
	return m
}

func names(docs []map[string]interface{}) []string {
	var result []string
	for _, doc := range docs {
		if name, ok := doc["name"].(string); ok {
			result = append(result, name)
		}
	}
	return result
}

func TestGetWhereEquality(t *testing.T) {
	docs, err := New(seedUsers(t)).Where("city", "prague").Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got := names(docs); !reflect.DeepEqual(got, []string{"alice", "carol"}) {
		t.Errorf("Expected alice and carol, got %v", got)
	}
}

func TestGetWhereOperator(t *testing.T) {
	docs, err := New(seedUsers(t)).Where("age", ">=", 30).Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got := names(docs); !reflect.DeepEqual(got, []string{"alice", "carol"}) {
		t.Errorf("Expected alice and carol, got %v", got)
	}
}

func TestGetOrWhere(t *testing.T) {
	docs, err := New(seedUsers(t)).
		Where("city", "brno").
		OrWhere("age", ">", 30).
		Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got := names(docs); !reflect.DeepEqual(got, []string{"bob", "carol"}) {
		t.Errorf("Expected bob and carol, got %v", got)
	}
}

func TestGetWhereLike(t *testing.T) {
	docs, err := New(seedUsers(t)).Where("name", "like", "a%").Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got := names(docs); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Errorf("Expected alice only, got %v", got)
	}
}

func TestGetWhereIn(t *testing.T) {
	docs, err := New(seedUsers(t)).
		WhereIn("city", []interface{}{"brno", "ostrava"}).
		Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got := names(docs); !reflect.DeepEqual(got, []string{"bob", "dave"}) {
		t.Errorf("Expected bob and dave, got %v", got)
	}
}

func TestGetWhereBetween(t *testing.T) {
	docs, err := New(seedUsers(t)).WhereBetween("age", 26, 34).Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got := names(docs); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Errorf("Expected alice only, got %v", got)
	}
}

func TestGetWhereNotBetweenKeepsBoundaries(t *testing.T) {
	docs, err := New(seedUsers(t)).WhereNotBetween("age", 25, 35).Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	// The negated range is boundary inclusive, so 25 and 35 still match.
	if got := names(docs); !reflect.DeepEqual(got, []string{"bob", "carol", "dave"}) {
		t.Errorf("Expected boundary ages retained, got %v", got)
	}
}

func TestGetWhereNull(t *testing.T) {
	// Null matches both an explicit null and an absent field.
	docs, err := New(seedUsers(t)).WhereNull("visits").Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got := names(docs); !reflect.DeepEqual(got, []string{"bob", "dave"}) {
		t.Errorf("Expected bob and dave, got %v", got)
	}
}

func TestGetWhereNested(t *testing.T) {
	docs, err := New(seedUsers(t)).
		Where("city", "prague").
		WhereNested(func(q *Builder) {
			q.Where("age", "<", 32).OrWhere("visits", ">", 5)
		}).
		Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got := names(docs); !reflect.DeepEqual(got, []string{"alice", "carol"}) {
		t.Errorf("Expected alice and carol, got %v", got)
	}
}

func TestGetSelectOrderLimit(t *testing.T) {
	docs, err := New(seedUsers(t)).
		Select("name").
		OrderBy("age", -1).
		Limit(2).
		Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got := names(docs); !reflect.DeepEqual(got, []string{"carol", "alice"}) {
		t.Errorf("Expected carol then alice, got %v", got)
	}
	if _, ok := docs[0]["age"]; ok {
		t.Errorf("Expected age projected away, got %v", docs[0])
	}
}

func TestFirst(t *testing.T) {
	doc, err := New(seedUsers(t)).Where("city", "prague").OrderBy("age", 1).First()
	if err != nil {
		t.Fatalf("First failed: %v", err)
	}
	if doc == nil || doc["name"] != "alice" {
		t.Errorf("Expected alice, got %v", doc)
	}

	doc, err = New(seedUsers(t)).Where("city", "paris").First()
	if err != nil {
		t.Fatalf("First failed: %v", err)
	}
	if doc != nil {
		t.Errorf("Expected nil for no match, got %v", doc)
	}
}

func TestExists(t *testing.T) {
	exists, err := New(seedUsers(t)).Where("name", "bob").Exists()
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("Expected bob to exist")
	}

	exists, err = New(seedUsers(t)).Where("name", "eve").Exists()
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("Expected eve not to exist")
	}
}

func TestCount(t *testing.T) {
	count, err := New(seedUsers(t)).Where("age", 25).Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2, got %d", count)
	}
}

func TestSumAvgMinMax(t *testing.T) {
	b := seedUsers(t)

	sum, err := New(b).Sum("age")
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}
	if toFloat(sum) != 115 {
		t.Errorf("Expected sum 115, got %v", sum)
	}

	avg, err := New(b).Avg("age")
	if err != nil {
		t.Fatalf("Avg failed: %v", err)
	}
	if toFloat(avg) != 28.75 {
		t.Errorf("Expected avg 28.75, got %v", avg)
	}

	min, err := New(b).Min("age")
	if err != nil {
		t.Fatalf("Min failed: %v", err)
	}
	if toFloat(min) != 25 {
		t.Errorf("Expected min 25, got %v", min)
	}

	max, err := New(b).Max("age")
	if err != nil {
		t.Fatalf("Max failed: %v", err)
	}
	if toFloat(max) != 35 {
		t.Errorf("Expected max 35, got %v", max)
	}
}

func toFloat(v interface{}) float64 {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float64:
		return val
	default:
		return -1
	}
}

func TestGroupBy(t *testing.T) {
	docs, err := New(seedUsers(t)).
		Select("city").
		GroupBy("city").
		Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("Expected 3 groups, got %d", len(docs))
	}
	// Group order follows first appearance.
	if docs[0]["city"] != "prague" || docs[1]["city"] != "brno" {
		t.Errorf("Unexpected group order: %v", docs)
	}
}

func TestDistinctGet(t *testing.T) {
	docs, err := New(seedUsers(t)).Select("city").Distinct().Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	expected := []map[string]interface{}{
		{"city": "prague"},
		{"city": "brno"},
		{"city": "ostrava"},
	}
	if !reflect.DeepEqual(docs, expected) {
		t.Errorf("Expected %v, got %v", expected, docs)
	}
}

func TestPluck(t *testing.T) {
	values, err := New(seedUsers(t)).Where("city", "prague").Pluck("name")
	if err != nil {
		t.Fatalf("Pluck failed: %v", err)
	}
	if !reflect.DeepEqual(values, []interface{}{"alice", "carol"}) {
		t.Errorf("Expected alice and carol, got %v", values)
	}
}

func TestPluckDistinct(t *testing.T) {
	values, err := New(seedUsers(t)).Distinct().Pluck("city")
	if err != nil {
		t.Fatalf("Pluck failed: %v", err)
	}
	if !reflect.DeepEqual(values, []interface{}{"prague", "brno", "ostrava"}) {
		t.Errorf("Expected distinct cities, got %v", values)
	}
}

func TestForPage(t *testing.T) {
	docs, err := New(seedUsers(t)).
		Select("name").
		OrderBy("name", 1).
		ForPage(2, 2).
		Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got := names(docs); !reflect.DeepEqual(got, []string{"carol", "dave"}) {
		t.Errorf("Expected second page, got %v", got)
	}
}

func TestUpdate(t *testing.T) {
	store := seedUsers(t)

	modified, err := New(store).Where("city", "prague").Update(map[string]interface{}{"active": true})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if modified != 2 {
		t.Errorf("Expected 2 modified, got %d", modified)
	}

	count, _ := store.Count(map[string]interface{}{"active": true})
	if count != 2 {
		t.Errorf("Expected 2 active, got %d", count)
	}
}

func TestUpdateOne(t *testing.T) {
	store := seedUsers(t)

	modified, err := New(store).Where("age", 25).UpdateOne(map[string]interface{}{"active": true})
	if err != nil {
		t.Fatalf("UpdateOne failed: %v", err)
	}
	if modified != 1 {
		t.Errorf("Expected 1 modified, got %d", modified)
	}
}

func TestIncrementGuardsNullAndMissing(t *testing.T) {
	store := seedUsers(t)

	// bob holds a null and is skipped; dave has no field and is
	// initialized; alice and carol are incremented.
	modified, err := New(store).Increment("visits", 1, nil)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if modified != 3 {
		t.Errorf("Expected 3 modified, got %d", modified)
	}

	doc, _ := New(store).Where("name", "alice").First()
	if toFloat(doc["visits"]) != 4 {
		t.Errorf("Expected alice at 4 visits, got %v", doc["visits"])
	}

	doc, _ = New(store).Where("name", "bob").First()
	if doc["visits"] != nil {
		t.Errorf("Expected bob's null untouched, got %v", doc["visits"])
	}

	doc, _ = New(store).Where("name", "dave").First()
	if toFloat(doc["visits"]) != 1 {
		t.Errorf("Expected dave initialized to 1, got %v", doc["visits"])
	}
}

func TestDecrement(t *testing.T) {
	store := seedUsers(t)

	if _, err := New(store).Where("name", "carol").Decrement("visits", 2, nil); err != nil {
		t.Fatalf("Decrement failed: %v", err)
	}

	doc, _ := New(store).Where("name", "carol").First()
	if toFloat(doc["visits"]) != 5 {
		t.Errorf("Expected 5 visits, got %v", doc["visits"])
	}
}

func TestPushAndPull(t *testing.T) {
	store := driver.NewMemory("users")
	New(store).Insert(map[string]interface{}{"name": "alice", "tags": []interface{}{"a"}})

	if _, err := New(store).Where("name", "alice").Push("tags", []interface{}{"b", "c"}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	doc, _ := New(store).Where("name", "alice").First()
	if !reflect.DeepEqual(doc["tags"], []interface{}{"a", "b", "c"}) {
		t.Errorf("Expected a,b,c, got %v", doc["tags"])
	}

	if _, err := New(store).Where("name", "alice").AddToSet("tags", "b"); err != nil {
		t.Fatalf("AddToSet failed: %v", err)
	}
	doc, _ = New(store).Where("name", "alice").First()
	if !reflect.DeepEqual(doc["tags"], []interface{}{"a", "b", "c"}) {
		t.Errorf("Expected duplicate skipped, got %v", doc["tags"])
	}

	if _, err := New(store).Where("name", "alice").Pull("tags", "b"); err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	doc, _ = New(store).Where("name", "alice").First()
	if !reflect.DeepEqual(doc["tags"], []interface{}{"a", "c"}) {
		t.Errorf("Expected b removed, got %v", doc["tags"])
	}
}

func TestUnset(t *testing.T) {
	store := seedUsers(t)

	if _, err := New(store).Where("name", "alice").Unset("visits"); err != nil {
		t.Fatalf("Unset failed: %v", err)
	}

	doc, _ := New(store).Where("name", "alice").First()
	if _, ok := doc["visits"]; ok {
		t.Errorf("Expected visits removed, got %v", doc)
	}
}

func TestDelete(t *testing.T) {
	store := seedUsers(t)

	deleted, err := New(store).Where("age", 25).Delete()
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted, got %d", deleted)
	}

	count, _ := store.Count(nil)
	if count != 2 {
		t.Errorf("Expected 2 remaining, got %d", count)
	}
}

func TestInsertReturnsID(t *testing.T) {
	store := driver.NewMemory("users")

	id, err := New(store).Insert(map[string]interface{}{"name": "alice"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if id == "" {
		t.Error("Expected assigned identifier")
	}
}

func TestCachedGet(t *testing.T) {
	store := seedUsers(t)
	c := cache.New(10, time.Minute)
	defer c.Close()

	first, err := New(store).Cached(c).Where("city", "prague").Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	// Mutate behind the cache's back; the same query must replay the
	// cached rows.
	store.DeleteMany(map[string]interface{}{"city": "prague"})

	second, err := New(store).Cached(c).Where("city", "prague").Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(second) != len(first) {
		t.Errorf("Expected cached result replayed, got %v", second)
	}

	// A different query misses the cache.
	third, err := New(store).Cached(c).Where("city", "brno").Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got := names(third); !reflect.DeepEqual(got, []string{"bob"}) {
		t.Errorf("Expected live result for a new query, got %v", got)
	}
}

func TestPlanExposesPipeline(t *testing.T) {
	plan, err := New(seedUsers(t)).
		Where("city", "prague").
		GroupBy("city").
		Plan()
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan.Pipeline) == 0 {
		t.Fatal("Expected an aggregation pipeline")
	}
	if _, ok := plan.Pipeline[0]["$match"]; !ok {
		t.Errorf("Expected $match first, got %v", plan.Pipeline[0])
	}
}
