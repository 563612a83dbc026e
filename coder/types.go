package coder

// AnalysisRequest is the input to AnalyzeCode.
type AnalysisRequest struct {
	Code     string
	Language string
	Task     string
}

// Severity is the severity the service assigns to an analysis.
// Values outside the known constants are passed through unchanged.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AnalysisResponse is returned by AnalyzeCode exactly as the service sent it.
type AnalysisResponse struct {
	Analysis    string   `json:"analysis"`
	Suggestions []string `json:"suggestions"`
	Severity    Severity `json:"severity"`
}

// Wire bodies. Every field is always sent.

type analyzeBody struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Task     string `json:"task"`
	Model    string `json:"model"`
}

type generateBody struct {
	Prompt   string `json:"prompt"`
	Language string `json:"language"`
	Model    string `json:"model"`
}

type generateResponse struct {
	Code string `json:"code"`
}

type refactorBody struct {
	Code      string `json:"code"`
	Objective string `json:"objective"`
	Model     string `json:"model"`
}

type refactorResponse struct {
	RefactoredCode string `json:"refactored_code"`
}
