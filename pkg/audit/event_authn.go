package audit

import "fmt"

// RegisterEvent records an account registration attempt.
type RegisterEvent struct {
	Username     string
	ClientIP     string
	Success      bool
	ErrorMessage string
}

func (e RegisterEvent) MessageID() string {
	return "register"
}

func (e RegisterEvent) Message() string {
	if e.Success {
		return fmt.Sprintf("%s registered", e.Username)
	}
	msg := fmt.Sprintf("%s failed to register", e.Username)
	if e.ErrorMessage != "" {
		msg += ": " + e.ErrorMessage
	}
	return msg
}

func (e RegisterEvent) Severity() Severity {
	if e.Success {
		return SeverityNotice
	}
	return SeverityWarning
}

func (e RegisterEvent) Facility() int {
	return FacilityAuthPriv
}

func (e RegisterEvent) StructuredData() map[string]map[string]string {
	return map[string]map[string]string{
		SDIDSubject: {"user": e.Username},
		SDIDAction:  {"operation": "register", "result": result(e.Success)},
		SDIDClient:  {"ip": e.ClientIP},
	}
}

// LoginEvent records a password authentication attempt.
type LoginEvent struct {
	Username     string
	UserID       int64
	ClientIP     string
	Success      bool
	ErrorMessage string
}

func (e LoginEvent) MessageID() string {
	return "authn"
}

func (e LoginEvent) Message() string {
	if e.Success {
		return fmt.Sprintf("%s successfully authenticated", e.Username)
	}
	msg := fmt.Sprintf("%s failed to authenticate", e.Username)
	if e.ErrorMessage != "" {
		msg += ": " + e.ErrorMessage
	}
	return msg
}

func (e LoginEvent) Severity() Severity {
	if e.Success {
		return SeverityInfo
	}
	return SeverityWarning
}

func (e LoginEvent) Facility() int {
	return FacilityAuthPriv
}

func (e LoginEvent) StructuredData() map[string]map[string]string {
	sd := map[string]map[string]string{
		SDIDAuth: {
			"authenticator": "password",
			"user":          e.Username,
		},
		SDIDAction: {"operation": "authenticate", "result": result(e.Success)},
		SDIDClient: {"ip": e.ClientIP},
	}
	if e.Success {
		sd[SDIDAuth]["user_id"] = fmt.Sprint(e.UserID)
	}
	return sd
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
