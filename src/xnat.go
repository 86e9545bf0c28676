package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SubjectEntry is one subject as known by the remote repository,
// the label is the human readable id (like "1001"), the ID is the
// accession number assigned by the server (like "XNAT_S00006").
type SubjectEntry struct {
	Label string
	ID    string
}

// ProjectInfo carries the pieces of a project we need for the
// soft ownership check during upload.
type ProjectInfo struct {
	Owners     []string
	PILastName string
}

// ExperimentHandle identifies one imaging session on the server.
type ExperimentHandle struct {
	Project   string
	SubjectID string
	Label     string
}

// Repository is the narrow interface the upload workflow needs from the
// research data server. The http implementation below talks to an
// XNAT-style REST interface, tests use a fake.
type Repository interface {
	ListProjects() ([]string, error)
	ListSubjects(project string) ([]SubjectEntry, error)
	GetSubject(project string, id string) (*SubjectEntry, error)
	GetProject(project string) (ProjectInfo, error)
	CreateExperiment(project string, subjectID string, label string) (ExperimentHandle, error)
	ListExperiments(project string, subjectID string, typeFilter string) ([]string, error)
	DeleteExperiment(exp ExperimentHandle) error
	CreateScan(exp ExperimentHandle, scanID string, schema string) error
	UploadScanFiles(exp ExperimentHandle, scanID string, resource string, files []string, overwrite bool) error
	TriggerHeaderExtraction(exp ExperimentHandle) error
	TriggerScanTypeFix(exp ExperimentHandle) error
	TriggerPipelines(exp ExperimentHandle) error
}

// xnatClient manages communication with the XNAT REST interface.
type xnatClient struct {
	baseURL    string
	user       string
	pass       string
	httpClient *http.Client
}

func newXNATClient(site SiteConfig, timeout time.Duration) *xnatClient {
	return &xnatClient{
		baseURL:    strings.TrimRight(site.URL, "/"),
		user:       site.User,
		pass:       site.Pass,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// resultSet is the envelope XNAT wraps around all listing responses.
type resultSet struct {
	ResultSet struct {
		Result []map[string]string `json:"Result"`
	} `json:"ResultSet"`
}

func (c *xnatClient) do(method string, targetURL string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, targetURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request to %s: %w", targetURL, err)
	}
	req.SetBasicAuth(c.user, c.pass)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed request to %s: %w", targetURL, err)
	}
	return resp, nil
}

// getRows runs a GET and decodes the XNAT ResultSet rows.
func (c *xnatClient) getRows(targetURL string) ([]map[string]string, error) {
	resp, err := c.do("GET", targetURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("received non-OK status code %d from %s: %s", resp.StatusCode, targetURL, string(bodyBytes))
	}
	var rs resultSet
	if err := json.NewDecoder(resp.Body).Decode(&rs); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", targetURL, err)
	}
	return rs.ResultSet.Result, nil
}

// expectOK runs a request where we only care about the status code.
func (c *xnatClient) expectOK(method string, targetURL string, body io.Reader) error {
	resp, err := c.do(method, targetURL, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("received non-OK status code %d from %s: %s", resp.StatusCode, targetURL, string(bodyBytes))
	}
	return nil
}

func (c *xnatClient) ListProjects() ([]string, error) {
	rows, err := c.getRows(fmt.Sprintf("%s/data/projects?format=json&columns=ID", c.baseURL))
	if err != nil {
		return nil, err
	}
	var projects []string
	for _, row := range rows {
		if id := row["ID"]; id != "" {
			projects = append(projects, id)
		}
	}
	return projects, nil
}

func (c *xnatClient) ListSubjects(project string) ([]SubjectEntry, error) {
	rows, err := c.getRows(fmt.Sprintf("%s/data/projects/%s/subjects?format=json&columns=ID,label", c.baseURL, url.PathEscape(project)))
	if err != nil {
		return nil, err
	}
	var subjects []SubjectEntry
	for _, row := range rows {
		subjects = append(subjects, SubjectEntry{Label: row["label"], ID: row["ID"]})
	}
	return subjects, nil
}

// GetSubject re-fetches one subject by its accession number. A missing
// subject is not an error, we return nil in that case.
func (c *xnatClient) GetSubject(project string, id string) (*SubjectEntry, error) {
	targetURL := fmt.Sprintf("%s/data/projects/%s/subjects?format=json&columns=ID,label", c.baseURL, url.PathEscape(project))
	rows, err := c.getRows(targetURL)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row["ID"] == id {
			return &SubjectEntry{Label: row["label"], ID: row["ID"]}, nil
		}
	}
	return nil, nil
}

func (c *xnatClient) GetProject(project string) (ProjectInfo, error) {
	var info ProjectInfo
	// the PI surname is a column of the project listing
	rows, err := c.getRows(fmt.Sprintf("%s/data/projects?format=json&columns=ID,pi_lastname", c.baseURL))
	if err != nil {
		return info, err
	}
	found := false
	for _, row := range rows {
		if row["ID"] == project {
			info.PILastName = row["pi_lastname"]
			found = true
			break
		}
	}
	if !found {
		return info, fmt.Errorf("project %s not found on %s", project, c.baseURL)
	}
	// owners are the users in the Owners group of the project
	rows, err = c.getRows(fmt.Sprintf("%s/data/projects/%s/users?format=json", c.baseURL, url.PathEscape(project)))
	if err != nil {
		return info, err
	}
	for _, row := range rows {
		group := row["GROUP_ID"]
		if group != "" && !strings.EqualFold(group, "owners") {
			continue
		}
		if login := row["login"]; login != "" {
			info.Owners = append(info.Owners, login)
		}
	}
	return info, nil
}

func (c *xnatClient) experimentURL(exp ExperimentHandle) string {
	return fmt.Sprintf("%s/data/projects/%s/subjects/%s/experiments/%s",
		c.baseURL, url.PathEscape(exp.Project), url.PathEscape(exp.SubjectID), url.PathEscape(exp.Label))
}

func (c *xnatClient) CreateExperiment(project string, subjectID string, label string) (ExperimentHandle, error) {
	exp := ExperimentHandle{Project: project, SubjectID: subjectID, Label: label}
	targetURL := c.experimentURL(exp) + "?xsiType=xnat:mrSessionData"
	if err := c.expectOK("PUT", targetURL, nil); err != nil {
		return ExperimentHandle{}, fmt.Errorf("failed to create experiment %s: %w", label, err)
	}
	return exp, nil
}

func (c *xnatClient) ListExperiments(project string, subjectID string, typeFilter string) ([]string, error) {
	targetURL := fmt.Sprintf("%s/data/projects/%s/subjects/%s/experiments?format=json&columns=ID,label",
		c.baseURL, url.PathEscape(project), url.PathEscape(subjectID))
	if typeFilter != "" {
		targetURL += "&xsiType=" + url.QueryEscape(typeFilter)
	}
	rows, err := c.getRows(targetURL)
	if err != nil {
		return nil, err
	}
	var labels []string
	for _, row := range rows {
		if l := row["label"]; l != "" {
			labels = append(labels, l)
		}
	}
	return labels, nil
}

func (c *xnatClient) DeleteExperiment(exp ExperimentHandle) error {
	if err := c.expectOK("DELETE", c.experimentURL(exp)+"?removeFiles=true", nil); err != nil {
		return fmt.Errorf("failed to delete experiment %s: %w", exp.Label, err)
	}
	return nil
}

func (c *xnatClient) CreateScan(exp ExperimentHandle, scanID string, schema string) error {
	targetURL := fmt.Sprintf("%s/scans/%s?xsiType=%s", c.experimentURL(exp), url.PathEscape(scanID), url.QueryEscape(schema))
	if err := c.expectOK("PUT", targetURL, nil); err != nil {
		return fmt.Errorf("failed to create scan %s: %w", scanID, err)
	}
	return nil
}

// UploadScanFiles pushes each file of a scan directory into the named
// resource of the scan (the DICOM resource is what makes the server show
// headers). The files end up as a flat set under their base names.
func (c *xnatClient) UploadScanFiles(exp ExperimentHandle, scanID string, resource string, files []string, overwrite bool) error {
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("could not read %s: %w", f, err)
		}
		targetURL := fmt.Sprintf("%s/scans/%s/resources/%s/files/%s?inbody=true&overwrite=%t",
			c.experimentURL(exp), url.PathEscape(scanID), url.PathEscape(resource), url.PathEscape(filepath.Base(f)), overwrite)
		if err := c.expectOK("PUT", targetURL, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("failed to upload %s: %w", f, err)
		}
	}
	return nil
}

func (c *xnatClient) TriggerHeaderExtraction(exp ExperimentHandle) error {
	return c.expectOK("PUT", c.experimentURL(exp)+"?pullDataFromHeaders=true", nil)
}

func (c *xnatClient) TriggerScanTypeFix(exp ExperimentHandle) error {
	return c.expectOK("PUT", c.experimentURL(exp)+"?fixScanTypes=true", nil)
}

func (c *xnatClient) TriggerPipelines(exp ExperimentHandle) error {
	return c.expectOK("PUT", c.experimentURL(exp)+"?triggerPipelines=true", nil)
}
