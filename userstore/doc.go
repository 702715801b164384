// Package userstore provides tokenguard.UserProvider implementations: an
// in-memory map for tests and demos, and a Postgres table read through sqlx.
//
// Email identifiers are matched case-insensitively; they are stored lowercased.
package userstore
