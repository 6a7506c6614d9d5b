// Package db provides the embedded schemas of the service databases and the
// catalog seed data.
package db

import _ "embed"

// ProductSchema holds the DDL of the product store.
//
//go:embed migrations/products.sql
var ProductSchema string

// UserSchema holds the DDL of the user store.
//
//go:embed migrations/users.sql
var UserSchema string

// OrderSchema holds the DDL of the order store.
//
//go:embed migrations/orders.sql
var OrderSchema string

// SeedProducts is the default product catalog in JSON.
//
//go:embed seed/products.json
var SeedProducts []byte

// SeedUsers is the default set of demo accounts in JSON.
//
//go:embed seed/users.json
var SeedUsers []byte
