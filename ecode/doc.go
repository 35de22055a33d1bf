// Package ecode defines the business codes returned by the HTTP surface and
// their human-readable texts.
//
// Code ranges:
//   - 0: success
//   - -400 to -499: request errors
//   - -500+: server errors
package ecode
