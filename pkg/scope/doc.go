// Package scope narrows every data access to the records a principal owns.
//
// The engine walks an entity's ownership hierarchy (company, then factory)
// and asks the resolver which ids the principal may see at each level,
// producing a neutral Filter of IN-clauses and equality predicates. The
// same Filter feeds SQL queries, search engine queries and cache rebuilds,
// so every read path enforces one visibility rule.
//
// An explicit selection (a user picking companies in the UI) only ever
// intersects the accessible set; it can narrow visibility but never widen
// it. Resolution failures, empty levels and anonymous principals all
// collapse to the match-nothing filter.
package scope
