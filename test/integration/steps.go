package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/cucumber/godog"
)

// StepsContext holds state shared between step definitions
type StepsContext struct {
	tc           *TestContext
	response     *http.Response
	responseBody []byte
	authToken    string
	lastUpload   []json.RawMessage
}

// NewStepsContext creates a new steps context
func NewStepsContext(tc *TestContext) *StepsContext {
	return &StepsContext{tc: tc}
}

// RegisterSteps registers all step definitions
func (s *StepsContext) RegisterSteps(sc *godog.ScenarioContext) {
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		return ctx, s.tc.Reset()
	})

	// Background steps
	sc.Step(`^the rekognition server is running$`, s.theServerIsRunning)
	sc.Step(`^a user "([^"]*)" with password "([^"]*)" exists$`, s.aUserExists)
	sc.Step(`^I am logged in as "([^"]*)" with password "([^"]*)"$`, s.iAmLoggedInAs)

	// Authentication steps
	sc.Step(`^I register with username "([^"]*)" and password "([^"]*)"$`, s.iRegister)
	sc.Step(`^I log in with username "([^"]*)" and password "([^"]*)"$`, s.iLogIn)
	sc.Step(`^I request "([^"]*)" without a token$`, s.iRequestWithoutToken)
	sc.Step(`^I request "([^"]*)"$`, s.iRequest)
	sc.Step(`^I should receive an access token$`, s.iShouldReceiveAnAccessToken)
	sc.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, s.theResponseFieldShouldBe)

	// Response steps
	sc.Step(`^the response status should be (\d+)$`, s.theResponseStatusShouldBe)
	sc.Step(`^the response message should be "([^"]*)"$`, s.theResponseMessageShouldBe)

	// Image steps
	sc.Step(`^I upload the following images:$`, s.iUploadImages)
	sc.Step(`^the file "([^"]*)" should have status "([^"]*)"$`, s.theFileShouldHaveStatus)
	sc.Step(`^I look for (\d+) "([^"]*)" in the last upload$`, s.iLookForObject)
	sc.Step(`^the object should be found (\d+) times?$`, s.theObjectShouldBeFound)
	sc.Step(`^the object should not be found$`, s.theObjectShouldNotBeFound)
	sc.Step(`^the detector should have been called (\d+) times?$`, s.theDetectorShouldHaveBeenCalled)
	sc.Step(`^(\d+) "([^"]*)" audit messages? should be recorded$`, s.auditMessagesShouldBeRecorded)
	sc.Step(`^(\d+) analysis results? should be stored$`, s.analysisResultsShouldBeStored)
}

// Background steps

func (s *StepsContext) theServerIsRunning() error {
	// Server is already running via TestContext
	return nil
}

func (s *StepsContext) aUserExists(username, password string) error {
	if err := s.iRegister(username, password); err != nil {
		return err
	}
	return s.theResponseStatusShouldBe(http.StatusCreated)
}

func (s *StepsContext) iAmLoggedInAs(username, password string) error {
	if err := s.iLogIn(username, password); err != nil {
		return err
	}
	return s.iShouldReceiveAnAccessToken()
}

// Authentication steps

func (s *StepsContext) iRegister(username, password string) error {
	return s.postJSON("/auth/register", map[string]string{
		"username": username,
		"password": password,
	})
}

func (s *StepsContext) iLogIn(username, password string) error {
	if err := s.postJSON("/auth/login", map[string]string{
		"username": username,
		"password": password,
	}); err != nil {
		return err
	}

	if s.response.StatusCode == http.StatusOK {
		var body struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.Unmarshal(s.responseBody, &body); err == nil {
			s.authToken = body.AccessToken
		}
	}
	return nil
}

func (s *StepsContext) iRequest(path string) error {
	req, err := http.NewRequest(http.MethodGet, s.tc.ServerURL+path, nil)
	if err != nil {
		return err
	}
	return s.do(req)
}

func (s *StepsContext) iRequestWithoutToken(path string) error {
	s.authToken = ""
	return s.iRequest(path)
}

func (s *StepsContext) iShouldReceiveAnAccessToken() error {
	if s.authToken == "" {
		return fmt.Errorf("no access token in response: %s", string(s.responseBody))
	}
	// header.payload.signature
	if parts := strings.Split(s.authToken, "."); len(parts) != 3 {
		return fmt.Errorf("access token is not a JWT: %s", s.authToken)
	}
	return nil
}

func (s *StepsContext) theResponseFieldShouldBe(field, expected string) error {
	var body map[string]interface{}
	if err := json.Unmarshal(s.responseBody, &body); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if actual := fmt.Sprint(body[field]); actual != expected {
		return fmt.Errorf("expected %s %q, got %q", field, expected, actual)
	}
	return nil
}

// Response steps

func (s *StepsContext) theResponseStatusShouldBe(expected int) error {
	if s.response == nil {
		return fmt.Errorf("no response received")
	}
	if s.response.StatusCode != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, s.response.StatusCode, string(s.responseBody))
	}
	return nil
}

func (s *StepsContext) theResponseMessageShouldBe(expected string) error {
	return s.theResponseFieldShouldBe("message", expected)
}

// Image steps

func (s *StepsContext) iUploadImages(table *godog.Table) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for i, row := range table.Rows {
		if i == 0 {
			continue // header
		}
		if len(row.Cells) < 2 {
			return fmt.Errorf("row %d: expected filename and content", i)
		}
		part, err := mw.CreateFormFile("files", row.Cells[0].Value)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(part, row.Cells[1].Value); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, s.tc.ServerURL+"/images/upload-and-analyze", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := s.do(req); err != nil {
		return err
	}

	s.lastUpload = nil
	if s.response.StatusCode == http.StatusOK {
		if err := json.Unmarshal(s.responseBody, &s.lastUpload); err != nil {
			return fmt.Errorf("failed to parse upload response: %w", err)
		}
	}
	return nil
}

func (s *StepsContext) theFileShouldHaveStatus(filename, status string) error {
	for _, raw := range s.lastUpload {
		var result struct {
			Filename string `json:"filename"`
			Status   string `json:"status"`
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			return err
		}
		if result.Filename == filename {
			if result.Status != status {
				return fmt.Errorf("file %q: expected status %q, got %q", filename, status, result.Status)
			}
			return nil
		}
	}
	return fmt.Errorf("file %q not in upload response: %s", filename, string(s.responseBody))
}

func (s *StepsContext) iLookForObject(count int, object string) error {
	return s.postJSON("/images/find-object", map[string]interface{}{
		"data":   s.lastUpload,
		"object": object,
		"count":  count,
	})
}

func (s *StepsContext) theObjectShouldBeFound(count int) error {
	if err := s.theResponseFieldShouldBe("found", "true"); err != nil {
		return err
	}
	return s.theResponseFieldShouldBe("number_of_objects_found", fmt.Sprint(count))
}

func (s *StepsContext) theObjectShouldNotBeFound() error {
	return s.theResponseFieldShouldBe("found", "false")
}

func (s *StepsContext) theDetectorShouldHaveBeenCalled(expected int) error {
	if actual := s.tc.Detector.Calls(); actual != expected {
		return fmt.Errorf("expected %d detector calls, got %d", expected, actual)
	}
	return nil
}

func (s *StepsContext) auditMessagesShouldBeRecorded(expected int, msgID string) error {
	var count int64
	if err := s.tc.DB.Raw(`SELECT COUNT(*) FROM audit_messages WHERE msgid = ?`, msgID).Scan(&count).Error; err != nil {
		return err
	}
	if count != int64(expected) {
		return fmt.Errorf("expected %d %q audit messages, got %d", expected, msgID, count)
	}
	return nil
}

func (s *StepsContext) analysisResultsShouldBeStored(expected int) error {
	var count int64
	if err := s.tc.DB.Raw(`SELECT COUNT(*) FROM analysis_results`).Scan(&count).Error; err != nil {
		return err
	}
	if count != int64(expected) {
		return fmt.Errorf("expected %d stored results, got %d", expected, count)
	}
	return nil
}

// Helpers

func (s *StepsContext) postJSON(path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, s.tc.ServerURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func (s *StepsContext) do(req *http.Request) error {
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	var err error
	s.response, err = s.tc.HTTPClient.Do(req)
	if err != nil {
		return err
	}

	s.responseBody, err = io.ReadAll(s.response.Body)
	_ = s.response.Body.Close()
	return err
}
