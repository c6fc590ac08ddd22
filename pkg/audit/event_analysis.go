package audit

import "fmt"

// AnalysisEvent records the outcome of one uploaded file.
type AnalysisEvent struct {
	Username string
	ClientIP string
	Filename string
	Status   string
	Labels   int
	Success  bool
}

func (e AnalysisEvent) MessageID() string {
	return "analyze"
}

func (e AnalysisEvent) Message() string {
	return fmt.Sprintf("%s uploaded %s: %s", e.Username, e.Filename, e.Status)
}

func (e AnalysisEvent) Severity() Severity {
	if e.Success {
		return SeverityInfo
	}
	return SeverityWarning
}

func (e AnalysisEvent) Facility() int {
	return FacilityAuth
}

func (e AnalysisEvent) StructuredData() map[string]map[string]string {
	return map[string]map[string]string{
		SDIDAnalysis: {
			"filename": e.Filename,
			"status":   e.Status,
			"labels":   fmt.Sprint(e.Labels),
		},
		SDIDSubject: {"user": e.Username},
		SDIDAction:  {"operation": "analyze", "result": result(e.Success)},
		SDIDClient:  {"ip": e.ClientIP},
	}
}
