package main

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testClient(url string) *xnatClient {
	return newXNATClient(SiteConfig{URL: url, User: "admin", Pass: "secret"}, 5*time.Second)
}

func Test_xnatClient_ListSubjects(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the client has to send basic auth with every request
		if user, pass, ok := r.BasicAuth(); !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/data/projects/QBICC/subjects" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"ResultSet":{"Result":[{"ID":"XNAT_S1","label":"1001"},{"ID":"XNAT_S2","label":"1002"}]}}`)
	}))
	defer ts.Close()

	c := testClient(ts.URL)
	subjects, err := c.ListSubjects("QBICC")
	if err != nil {
		t.Fatalf("ListSubjects() error = %v", err)
	}
	if len(subjects) != 2 {
		t.Fatalf("ListSubjects() = %v, want 2 entries", subjects)
	}
	if subjects[0].Label != "1001" || subjects[0].ID != "XNAT_S1" {
		t.Errorf("first subject = %+v", subjects[0])
	}
}

func Test_xnatClient_GetSubject(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ResultSet":{"Result":[{"ID":"XNAT_S1","label":"1001"}]}}`)
	}))
	defer ts.Close()

	c := testClient(ts.URL)
	s, err := c.GetSubject("QBICC", "XNAT_S1")
	if err != nil || s == nil {
		t.Fatalf("GetSubject() = %v, %v", s, err)
	}
	if s.Label != "1001" {
		t.Errorf("GetSubject().Label = %s, want 1001", s.Label)
	}
	// an id that is not in the listing is not an error, just absent
	s, err = c.GetSubject("QBICC", "XNAT_S9")
	if err != nil {
		t.Fatalf("GetSubject() error = %v", err)
	}
	if s != nil {
		t.Errorf("GetSubject() = %+v, want nil", s)
	}
}

func Test_xnatClient_GetProject(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data/projects":
			fmt.Fprint(w, `{"ResultSet":{"Result":[{"ID":"QBICC","pi_lastname":"Cooper"}]}}`)
		case "/data/projects/QBICC/users":
			fmt.Fprint(w, `{"ResultSet":{"Result":[{"login":"ccadmin","GROUP_ID":"Owners"},{"login":"guest","GROUP_ID":"Members"}]}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	c := testClient(ts.URL)
	info, err := c.GetProject("QBICC")
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if info.PILastName != "Cooper" {
		t.Errorf("PILastName = %s, want Cooper", info.PILastName)
	}
	if len(info.Owners) != 1 || info.Owners[0] != "ccadmin" {
		t.Errorf("Owners = %v, want [ccadmin]", info.Owners)
	}

	// an unknown project code is an error
	if _, err := c.GetProject("NOPE"); err == nil {
		t.Errorf("GetProject(NOPE) expected an error")
	}
}

func Test_xnatClient_CreateScan(t *testing.T) {
	var gotMethod, gotPath, gotType string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotType = r.URL.Query().Get("xsiType")
	}))
	defer ts.Close()

	c := testClient(ts.URL)
	exp := ExperimentHandle{Project: "QBICC", SubjectID: "XNAT_S1", Label: "MR_1001_1"}
	if err := c.CreateScan(exp, "3", "xnat:mrScanData"); err != nil {
		t.Fatalf("CreateScan() error = %v", err)
	}
	if gotMethod != "PUT" {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if want := "/data/projects/QBICC/subjects/XNAT_S1/experiments/MR_1001_1/scans/3"; gotPath != want {
		t.Errorf("path = %s, want %s", gotPath, want)
	}
	if gotType != "xnat:mrScanData" {
		t.Errorf("xsiType = %s, want xnat:mrScanData", gotType)
	}
}

func Test_xnatClient_UploadScanFiles(t *testing.T) {
	type upload struct {
		path string
		body string
	}
	var uploads []upload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PUT" {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if r.URL.Query().Get("inbody") != "true" || r.URL.Query().Get("overwrite") != "true" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		body, _ := io.ReadAll(r.Body)
		uploads = append(uploads, upload{path: r.URL.Path, body: string(body)})
	}))
	defer ts.Close()

	dir := t.TempDir()
	var files []string
	for i := 0; i < 2; i++ {
		f := filepath.Join(dir, fmt.Sprintf("%06d.dcm", i))
		if err := os.WriteFile(f, []byte(fmt.Sprintf("content %d", i)), 0644); err != nil {
			t.Fatal(err)
		}
		files = append(files, f)
	}

	c := testClient(ts.URL)
	exp := ExperimentHandle{Project: "QBICC", SubjectID: "XNAT_S1", Label: "MR_1001_1"}
	if err := c.UploadScanFiles(exp, "3", "DICOM", files, true); err != nil {
		t.Fatalf("UploadScanFiles() error = %v", err)
	}
	if len(uploads) != 2 {
		t.Fatalf("got %d uploads, want 2", len(uploads))
	}
	if want := "/data/projects/QBICC/subjects/XNAT_S1/experiments/MR_1001_1/scans/3/resources/DICOM/files/000000.dcm"; uploads[0].path != want {
		t.Errorf("path = %s, want %s", uploads[0].path, want)
	}
	if uploads[0].body != "content 0" || uploads[1].body != "content 1" {
		t.Errorf("bodies = %v", uploads)
	}
}

func Test_xnatClient_Triggers(t *testing.T) {
	var queries []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
	}))
	defer ts.Close()

	c := testClient(ts.URL)
	exp := ExperimentHandle{Project: "QBICC", SubjectID: "XNAT_S1", Label: "MR_1001_1"}
	check := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	check(c.TriggerHeaderExtraction(exp))
	check(c.TriggerScanTypeFix(exp))
	check(c.TriggerPipelines(exp))
	want := []string{"pullDataFromHeaders=true", "fixScanTypes=true", "triggerPipelines=true"}
	for i := range want {
		if i >= len(queries) || queries[i] != want[i] {
			t.Fatalf("queries = %v, want %v", queries, want)
		}
	}
}

func Test_xnatClient_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such project", http.StatusNotFound)
	}))
	defer ts.Close()

	c := testClient(ts.URL)
	if _, err := c.ListSubjects("NOPE"); err == nil {
		t.Errorf("ListSubjects() expected an error for a 404")
	}
	exp := ExperimentHandle{Project: "NOPE", SubjectID: "X", Label: "Y"}
	if _, err := c.CreateExperiment("NOPE", "X", "Y"); err == nil {
		t.Errorf("CreateExperiment() expected an error for a 404")
	}
	if err := c.CreateScan(exp, "3", "xnat:mrScanData"); err == nil {
		t.Errorf("CreateScan() expected an error for a 404")
	}
}
