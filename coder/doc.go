// Package coder is the Qwen3-Coder API client.
//
// A Client exposes three operations, each a single authenticated POST:
//
//	AnalyzeCode   /code/analyze   -> AnalysisResponse
//	GenerateCode  /code/generate  -> generated source
//	RefactorCode  /code/refactor  -> refactored source
//
// Every call first obtains a bearer token from the client's credential gate
// (see package credential), which exchanges the configured API key only when
// no unexpired token is cached. Responses are returned as decoded, without
// validation.
//
// Failures are reported as *AnalysisError, *GenerationError or
// *RefactorError. Each wraps the underlying cause, which can be a
// *credential.AuthenticationError, an *APIError for non-success statuses, a
// transport error, or a decoding error. Nothing is retried.
//
// Example:
//
//	cfg := config.Default()
//	cfg.APIKeyRef = "keyring://qwen/api-key"
//	if err := cfg.ResolveAPIKey(ctx); err != nil {
//		return err
//	}
//	client, err := coder.NewClient(cfg)
//	if err != nil {
//		return err
//	}
//	res, err := client.AnalyzeCode(ctx, coder.AnalysisRequest{Code: src, Language: "go", Task: "review"})
package coder
