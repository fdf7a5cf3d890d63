package predicate

// Expr is one node of the typed filter-expression tree built by the
// compiler. Rendering an expression yields the store's native filter
// document form.
type Expr interface {
	// Document renders the expression as a filter document
	Document() map[string]interface{}
}

// Eq is a plain equality test on a column
type Eq struct {
	Column string
	Value  interface{}
}

// Document renders {column: value}
func (e Eq) Document() map[string]interface{} {
	return map[string]interface{}{e.Column: e.Value}
}

// Cond is a column constrained by one or more operators
type Cond struct {
	Column string
	Ops    map[string]interface{}
}

// Document renders {column: {op: value, ...}}
func (c Cond) Document() map[string]interface{} {
	return map[string]interface{}{c.Column: c.Ops}
}

// And is a conjunction of sub-expressions
type And struct {
	Exprs []Expr
}

// Document renders {$and: [...]}
func (a And) Document() map[string]interface{} {
	return map[string]interface{}{"$and": renderAll(a.Exprs)}
}

// Or is a disjunction of sub-expressions
type Or struct {
	Exprs []Expr
}

// Document renders {$or: [...]}
func (o Or) Document() map[string]interface{} {
	return map[string]interface{}{"$or": renderAll(o.Exprs)}
}

// Raw wraps an already-built filter document
type Raw struct {
	Doc map[string]interface{}
}

// Document returns the wrapped document unchanged
func (r Raw) Document() map[string]interface{} {
	return r.Doc
}

func renderAll(exprs []Expr) []interface{} {
	docs := make([]interface{}, len(exprs))
	for i, e := range exprs {
		docs[i] = e.Document()
	}
	return docs
}

// accumulator collects per-predicate expressions. Sibling $and and $or
// branches accumulate instead of overwriting each other; everything
// else merges by key union.
type accumulator struct {
	and    []Expr
	or     []Expr
	fields []Expr
}

func (a *accumulator) add(e Expr) {
	switch v := e.(type) {
	case And:
		a.and = append(a.and, v.Exprs...)
	case Or:
		a.or = append(a.or, v.Exprs...)
	default:
		a.fields = append(a.fields, e)
	}
}

func (a *accumulator) document() map[string]interface{} {
	doc := make(map[string]interface{})
	for _, f := range a.fields {
		doc = mergeDocuments(doc, f.Document())
	}
	if len(a.and) > 0 {
		doc = mergeDocuments(doc, And{Exprs: a.and}.Document())
	}
	if len(a.or) > 0 {
		doc = mergeDocuments(doc, Or{Exprs: a.or}.Document())
	}
	return doc
}

// mergeDocuments merges src into dst. Array values under the same key
// concatenate, sub-documents merge recursively, anything else is
// overwritten by src.
func mergeDocuments(dst, src map[string]interface{}) map[string]interface{} {
	for key, value := range src {
		existing, ok := dst[key]
		if !ok {
			dst[key] = value
			continue
		}

		if existingArr, ok := existing.([]interface{}); ok {
			if valueArr, ok := value.([]interface{}); ok {
				dst[key] = append(existingArr, valueArr...)
				continue
			}
		}

		if existingDoc, ok := existing.(map[string]interface{}); ok {
			if valueDoc, ok := value.(map[string]interface{}); ok {
				dst[key] = mergeDocuments(existingDoc, valueDoc)
				continue
			}
		}

		dst[key] = value
	}
	return dst
}
