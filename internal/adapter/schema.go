package adapter

// Database is the introspected shape of one backend. Tables and
// Relationships are populated for relational backends, Collections for
// document backends; the other side stays nil
type Database struct {
	Name          string         `json:"name"`
	Kind          Kind           `json:"kind"`
	Tables        []Table        `json:"tables,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
	Collections   []Collection   `json:"collections,omitempty"`
}

// Table describes one relational table in the public schema
type Table struct {
	Name     string   `json:"name"`
	RowCount int64    `json:"row_count"`
	Columns  []Column `json:"columns"`
}

// Column describes one table column
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	Default    string `json:"default,omitempty"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
}

// Relationship is one foreign key edge
type Relationship struct {
	Table     string `json:"table"`
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
}

// Collection describes one document collection
type Collection struct {
	Name     string   `json:"name"`
	DocCount int64    `json:"doc_count"`
	Fields   []Field  `json:"fields"`
	Indexes  []string `json:"indexes,omitempty"`
}

// Field is one inferred document field. Type comes from the first
// observation across sampled documents; Examples holds up to three
// short distinct values
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Examples []any  `json:"examples,omitempty"`
}
