// Package application provides application initialization and dependency wiring.
// It validates the package storage backend, creates the account and update
// services, composes the route modules into the api router and builds the
// HTTP server, keeping the main package focused on CLI parsing and
// orchestration.
package application
