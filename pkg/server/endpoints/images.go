package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/objectrekognition/rekognition-server/pkg/analysis"
	"github.com/objectrekognition/rekognition-server/pkg/audit"
	"github.com/objectrekognition/rekognition-server/pkg/config"
	"github.com/objectrekognition/rekognition-server/pkg/identity"
	"github.com/objectrekognition/rekognition-server/pkg/model"
	"github.com/objectrekognition/rekognition-server/pkg/presence"
	"github.com/objectrekognition/rekognition-server/pkg/server"
	"github.com/objectrekognition/rekognition-server/pkg/server/middleware"
)

// uploadField is the multipart field carrying the images.
const uploadField = "files"

// uploadWriteMargin is added to the worst-case detection time of a batch
// when extending the response write deadline.
const uploadWriteMargin = 30 * time.Second

var errNoFiles = errors.New("no files part in the request")

type findObjectRequest struct {
	Data         []json.RawMessage `json:"data"`
	Object       string            `json:"object"`
	TargetObject string            `json:"targetObject"`
	Count        json.RawMessage   `json:"count"`
}

// RegisterImagesEndpoints registers the upload and query endpoints. Both
// require an access token.
func RegisterImagesEndpoints(s *server.Server) {
	images := s.Protected("/images")

	images.HandleFunc("/upload-and-analyze", handleUploadAndAnalyze(s)).Methods("POST")
	images.HandleFunc("/find-object", handleFindObject()).Methods("POST")
}

func handleUploadAndAnalyze(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if limit := s.Config.MaxUploadBytes; limit > 0 {
			if r.ContentLength > limit {
				respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d bytes", limit))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}

		uploads, err := readUploads(r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				respondWithError(w, http.StatusRequestEntityTooLarge,
					fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit))
			case errors.Is(err, errNoFiles):
				respondWithError(w, http.StatusBadRequest, "No files part in the request")
			default:
				respondWithError(w, http.StatusBadRequest, "Malformed multipart request: "+err.Error())
			}
			return
		}

		extendWriteDeadline(w, s.Config, len(uploads))
		results := s.Workflow.Process(r.Context(), uploads)

		var username string
		if id, ok := identity.Get(r.Context()); ok {
			username = id.Username
		}
		ip := clientIP(s, r)
		for _, res := range results {
			s.Audit.Log(audit.AnalysisEvent{
				Username: username,
				ClientIP: ip,
				Filename: res.Filename,
				Status:   string(res.Status),
				Labels:   len(res.Labels),
				Success:  res.Status != analysis.StatusError,
			})
		}

		middleware.Logger(s.Log, r).WithField("files", len(results)).Debug("processed upload")
		respondWithJSON(w, http.StatusOK, results)
	}
}

// extendWriteDeadline moves the write deadline past the longest time the
// workflow can spend on files uploads: one detection timeout per round of
// analysis_concurrency files.
func extendWriteDeadline(w http.ResponseWriter, cfg *config.Config, files int) {
	concurrency := cfg.AnalysisConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	rounds := (files + concurrency - 1) / concurrency

	budget := time.Duration(rounds)*cfg.DetectionTimeoutDuration() + uploadWriteMargin
	if budget < server.DefaultWriteTimeout {
		budget = server.DefaultWriteTimeout
	}
	// Recorders and wrapped writers may not support deadlines.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(budget))
}

// readUploads streams the multipart body so files keep their order. Parts
// sent under the files field without a filename become empty-name uploads.
func readUploads(r *http.Request) ([]analysis.Upload, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, errNoFiles
		}
		return nil, err
	}

	var uploads []analysis.Upload
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}

		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, analysis.Upload{Filename: part.FileName(), Data: data})
	}

	if len(uploads) == 0 {
		return nil, errNoFiles
	}
	return uploads, nil
}

func handleFindObject() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req findObjectRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Request body must be a JSON object")
			return
		}

		target := strings.TrimSpace(req.Object)
		if target == "" {
			target = strings.TrimSpace(req.TargetObject)
		}
		if target == "" {
			respondWithError(w, http.StatusBadRequest, "Missing object")
			return
		}

		if len(req.Count) == 0 {
			respondWithError(w, http.StatusBadRequest, "Missing count")
			return
		}
		minCount, err := presence.ParseCount(req.Count)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid count: "+err.Error())
			return
		}

		labels, err := collectLabels(req.Data)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		respondWithJSON(w, http.StatusOK, presence.Evaluate(labels, target, minCount))
	}
}

// collectLabels combines the labels of every data entry. An entry is either
// a per-file upload result carrying a labels array or a bare label.
func collectLabels(data []json.RawMessage) (model.LabelSet, error) {
	var labels model.LabelSet
	for i, raw := range data {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			return nil, fmt.Errorf("data[%d] must be an object", i)
		}

		if rawLabels, ok := fields["labels"]; ok {
			var set model.LabelSet
			if err := json.Unmarshal(rawLabels, &set); err != nil {
				return nil, fmt.Errorf("data[%d].labels must be a list of labels", i)
			}
			labels = append(labels, set...)
			continue
		}

		if _, ok := fields["name"]; ok {
			var label model.Label
			if err := json.Unmarshal(raw, &label); err != nil {
				return nil, fmt.Errorf("data[%d] is not a valid label", i)
			}
			labels = append(labels, label)
		}
	}
	return labels, nil
}
