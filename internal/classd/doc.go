// Package classd is a reference implementation of the class session store.
//
// It serves the HTTP API that classapi.Client speaks, keeping sessions and
// observations in SQLite. Snapshot bodies are cached in memory for a short
// TTL and the cache is not invalidated by writes; a request with
// nocache=1 (or Cache-Control: no-cache) always reads the database. Clients
// that need to observe their own writes immediately ask for that.
//
// Unknown sessions answer a snapshot request with an empty body and every
// other request with 404. Refused operations (collection closed, no
// matching point) answer 200 with a message body; malformed requests get
// 400 and a wrong admin token 403.
//
// New sessions start with collection closed and expire after the
// configured session TTL unless extended.
package classd
