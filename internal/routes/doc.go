// Package routes implements the feature route modules mounted by the api
// router: the client-facing update endpoints and the management API used by
// the command line client.
package routes
