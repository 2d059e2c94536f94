// Package store defines the persistence contracts used by the session authority.
//
// Every principal kind gets its own PrincipalStore and SessionStore instance, so
// operator and marketplace identities never share a table or an index.
package store
