// Package history persists summaries of analysed meetings in SQLite and
// retrieves the ones most similar to a new meeting.
//
// Retrieval is two-step. An FTS5 match over the query terms selects lexical
// candidates, topped up with the most recent meetings so a query always sees
// up to k documents once the store holds that many. The candidates are then
// reranked by TF-IDF cosine similarity from internal/textutil; equal scores
// prefer the more recent meeting.
//
// The database carries a schema_version table. A mismatch is reported as
// ErrSchemaMismatch and the file must be removed by the operator.
package history
