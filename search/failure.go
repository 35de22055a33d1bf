package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/ncobase/placesearch/provider"
)

// Code is a stable machine-readable failure code.
type Code string

const (
	CodeProviderDNS      Code = "PROVIDER_DNS"
	CodeProviderTimeout  Code = "PROVIDER_TIMEOUT"
	CodeProviderNetwork  Code = "PROVIDER_NETWORK"
	CodeProviderUpstream Code = "PROVIDER_UPSTREAM"
	CodeTimeout          Code = "TIMEOUT"
	CodeGateFailed       Code = "GATE_FAILED"
	CodeInternal         Code = "INTERNAL"
	CodeStaleJob         Code = "STALE_JOB"
)

var fallbackMessages = map[Code]string{
	CodeProviderDNS:      "The places service can't be reached right now. Please try again in a moment.",
	CodeProviderTimeout:  "The places service is taking too long to answer. Please try again.",
	CodeProviderNetwork:  "We had trouble connecting to the places service. Please try again.",
	CodeProviderUpstream: "The places service returned an error. Please try again shortly.",
	CodeTimeout:          "Your search took too long to complete. Please try again.",
	CodeGateFailed:       "We couldn't understand that request. Could you rephrase it?",
	CodeInternal:         "Something went wrong while searching. Please try again.",
	CodeStaleJob:         "This search was interrupted. Please search again.",
}

// FallbackMessage returns the user-facing text for code. Raw error text is
// never exposed.
func FallbackMessage(code Code) string {
	if m, ok := fallbackMessages[code]; ok {
		return m
	}
	return fallbackMessages[CodeInternal]
}

// Failure is a classified pipeline failure.
type Failure struct {
	Code  Code
	Stage string
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s at %s: %v", f.Code, f.Stage, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Message returns the user-facing fallback message.
func (f *Failure) Message() string { return FallbackMessage(f.Code) }

// Info converts f to the response error envelope.
func (f *Failure) Info() *ErrorInfo {
	return &ErrorInfo{Code: string(f.Code), Message: f.Message()}
}

// classify maps an error raised at stage to a Failure. runCtx is the
// pipeline context carrying the global deadline; its expiry wins over any
// provider classification.
func classify(runCtx context.Context, stage string, err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return &Failure{Code: CodeTimeout, Stage: stage, Err: err}
	}
	if stage == StageProvider {
		return &Failure{Code: providerCode(provider.Classify(err).Kind), Stage: stage, Err: err}
	}
	if stage == StageGate {
		return &Failure{Code: CodeGateFailed, Stage: stage, Err: err}
	}
	return &Failure{Code: CodeInternal, Stage: stage, Err: err}
}

func providerCode(k provider.Kind) Code {
	switch k {
	case provider.KindDNS:
		return CodeProviderDNS
	case provider.KindTimeout:
		return CodeProviderTimeout
	case provider.KindUpstream:
		return CodeProviderUpstream
	default:
		return CodeProviderNetwork
	}
}
