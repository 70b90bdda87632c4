// Package control starts and stops emulation runs on the backend.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/iafilius/Chip8Dashboard/src/httpapi"
	"github.com/iafilius/Chip8Dashboard/src/logging"
	"github.com/iafilius/Chip8Dashboard/src/telemetry"
)

// DefaultConfigPath is sent when an upload does not name a config file.
const DefaultConfigPath = "config.json"

// RequestError is returned for failed or non-2xx control requests.
type RequestError = httpapi.RequestError

// ValidationError blocks a request before anything is sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Reason }

// StartRequest starts a run from files already present on the backend host.
type StartRequest struct {
	ROMPath    string            `json:"romPath"`
	ModelPaths map[string]string `json:"modelPaths"`
	ConfigPath string            `json:"configPath"`
}

// File is an uploaded file.
type File struct {
	Name string
	Data []byte
}

// ReadFile loads a local file for upload.
func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return File{Name: filepath.Base(path), Data: data}, nil
}

// UploadRequest starts a run from a ROM and a model uploaded with the request.
// SyncInterval is the number of frames between AI resyncs; 0 disables syncing.
type UploadRequest struct {
	ROM          File
	Model        File
	ConfigPath   string
	SyncInterval int
}

// Client sends run-control commands.
type Client struct {
	BaseURL   string
	HTTP      *http.Client
	Telemetry *telemetry.Collector
	log       logging.Logger
}

// NewClient builds a client; timeout 0 means no client-side limit.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		log:     logging.Prefixed("control"),
	}
}

func (r StartRequest) validate() error {
	if strings.TrimSpace(r.ROMPath) == "" {
		return &ValidationError{Field: "romPath", Reason: "a ROM is required"}
	}
	if len(r.ModelPaths) == 0 {
		return &ValidationError{Field: "modelPaths", Reason: "at least one model is required"}
	}
	for label, p := range r.ModelPaths {
		if strings.TrimSpace(p) == "" {
			return &ValidationError{Field: "modelPaths", Reason: fmt.Sprintf("model %q has an empty path", label)}
		}
	}
	return nil
}

func (r UploadRequest) validate() error {
	if len(r.ROM.Data) == 0 {
		return &ValidationError{Field: "rom", Reason: "a ROM file is required"}
	}
	if len(r.Model.Data) == 0 {
		return &ValidationError{Field: "model", Reason: "a model file is required"}
	}
	if r.SyncInterval < 0 {
		return &ValidationError{Field: "sync_interval", Reason: "must not be negative"}
	}
	return nil
}

// Start posts a JSON start command and returns the server's message.
func (c *Client) Start(ctx context.Context, r StartRequest) (string, error) {
	if err := r.validate(); err != nil {
		return "", err
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/start", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(ctx, req, "start")
}

// Upload posts the ROM and model as multipart form data.
func (c *Client) Upload(ctx context.Context, r UploadRequest) (string, error) {
	if err := r.validate(); err != nil {
		return "", err
	}
	if r.ConfigPath == "" {
		r.ConfigPath = DefaultConfigPath
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, part := range []struct {
		field string
		file  File
	}{{"rom", r.ROM}, {"model", r.Model}} {
		fw, err := mw.CreateFormFile(part.field, part.file.Name)
		if err != nil {
			return "", err
		}
		if _, err := fw.Write(part.file.Data); err != nil {
			return "", err
		}
	}
	if err := mw.WriteField("config_path", r.ConfigPath); err != nil {
		return "", err
	}
	if err := mw.WriteField("sync_interval", strconv.Itoa(r.SyncInterval)); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(ctx, req, "upload")
}

// Stop asks the backend to stop the current run.
func (c *Client) Stop(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/stop", nil)
	if err != nil {
		return "", err
	}
	return c.send(ctx, req, "stop")
}

func (c *Client) send(ctx context.Context, req *http.Request, op string) (string, error) {
	body, err := httpapi.Do(ctx, c.HTTP, req, op, c.Telemetry)
	if err != nil {
		c.log.Errorf("%v", err)
		return "", err
	}
	msg := httpapi.Message(body)
	c.log.Infof("%s: %s", op, msg)
	return msg, nil
}
