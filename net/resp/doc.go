// Package resp writes the JSON bodies returned by the HTTP handlers.
//
// Success responses carry the payload directly; failures use
//
//	{"code": -404, "message": "...", "errors": {...}}
//
// with business codes from the ecode package.
package resp
