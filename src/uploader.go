// Code written 2021 by Hauke Bartsch.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Uploader drives the upload of one project's worth of scan directories
// into the research data server. The caller provides an authenticated
// Repository, connection lifecycle is not our business here.
type Uploader struct {
	repo Repository

	// skipOwnerCheck bypasses the soft ownership check, a debug escape
	// hatch and not a security boundary
	skipOwnerCheck bool
	// deleteEmpty removes an experiment again if all of its scans were
	// skipped, default is to leave it on the server
	deleteEmpty bool
	// showPreview prints the first slice of each scan on the terminal
	showPreview bool

	// readMeta can be replaced in tests, by default we parse the DICOM file
	readMeta func(path string) (ScanMeta, error)
}

func NewUploader(repo Repository) *Uploader {
	return &Uploader{repo: repo, readMeta: readTags}
}

// listDirs returns the names of the immediate sub-directories, sorted so
// runs are deterministic regardless of the filesystem.
func listDirs(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// listFiles returns the full paths of the regular files in a directory, sorted.
func listFiles(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// nextUniqueLabel makes sure the experiment label does not collide with
// an existing session of the subject. If the candidate is taken we use
// one more than the highest numeric suffix among the sessions that share
// the prefix.
func nextUniqueLabel(existing []string, label string) string {
	idx := strings.LastIndex(label, "_")
	if idx < 0 {
		return label
	}
	prefix := label[:idx]
	taken := false
	maxSuffix := 0
	for _, e := range existing {
		if !strings.HasPrefix(e, prefix+"_") {
			continue
		}
		if e == label {
			taken = true
		}
		if n, err := strconv.Atoi(e[strings.LastIndex(e, "_")+1:]); err == nil && n > maxSuffix {
			maxSuffix = n
		}
	}
	if !taken {
		return label
	}
	return fmt.Sprintf("%s_%d", prefix, maxSuffix+1)
}

// ownerMatches is the soft ownership check. The scan carries the name of
// the requesting researcher in its header, we accept the scan if that
// field mentions the PI surname or one of the project owners.
func ownerMatches(scanOwner string, proj ProjectInfo) bool {
	if scanOwner == "" {
		return false
	}
	if proj.PILastName != "" && strings.Contains(scanOwner, proj.PILastName) {
		return true
	}
	for _, o := range proj.Owners {
		if o != "" && strings.Contains(scanOwner, o) {
			return true
		}
	}
	return false
}

// uploadScans uploads the MRI scans found under scandir to the project.
// The data is organized by DICOM series as
// scandir/subject_label/scans/series_number/*.dcm. Subject directories
// that were processed successfully move to a sibling "done" folder so a
// re-run only looks at the remainder. It returns the number of subjects
// for which a session was created and populated.
func (up *Uploader) uploadScans(projectcode string, scandir string) (int, error) {
	subjectDirs, err := listDirs(scandir)
	if err != nil {
		return 0, fmt.Errorf("could not list the scan directory %s: %w", scandir, err)
	}
	if len(subjectDirs) == 0 {
		return 0, nil
	}

	// the done folder sits next to the scan directory, creating it has to
	// work before we touch anything on the server
	donepath := filepath.Join(filepath.Dir(filepath.Clean(scandir)), "done")
	if info, err := os.Stat(donepath); err == nil {
		if !info.IsDir() {
			return 0, fmt.Errorf("the done path %s is not a directory", donepath)
		}
	} else if !os.IsNotExist(err) {
		return 0, fmt.Errorf("could not check the done directory %s: %w", donepath, err)
	} else if err := os.Mkdir(donepath, 0755); err != nil {
		return 0, fmt.Errorf("could not create the done directory %s: %w", donepath, err)
	}

	proj, err := up.repo.GetProject(projectcode)
	if err != nil {
		return 0, fmt.Errorf("could not get project %s: %w", projectcode, err)
	}
	subjects, err := up.repo.ListSubjects(projectcode)
	if err != nil {
		return 0, fmt.Errorf("could not list subjects of %s: %w", projectcode, err)
	}
	byLabel := make(map[string]string)
	for _, s := range subjects {
		byLabel[s.Label] = s.ID
	}

	ctr := 0     // runs over all subjects we touch, seeds the session label
	success := 0 // subjects with at least one uploaded scan
	for _, slabel := range subjectDirs {
		sid, ok := byLabel[slabel]
		if !ok {
			log.Printf("Warning: subject doesn't exist - skipping %s", slabel)
			continue
		}
		// re-fetch by accession number, the listing might be stale
		subject, err := up.repo.GetSubject(projectcode, sid)
		if err != nil || subject == nil {
			log.Printf("Warning: subject doesn't exist in this project: %s %s", projectcode, sid)
			continue
		}
		ctr = ctr + 1

		elabel := fmt.Sprintf("MR_%s_%d", slabel, ctr)
		existing, err := up.repo.ListExperiments(projectcode, sid, "xnat:mrSessionData")
		if err != nil {
			log.Printf("Warning: could not list experiments for %s: %v", slabel, err)
			continue
		}
		elabel = nextUniqueLabel(existing, elabel)
		fmt.Printf("Uploading scans for %s: %s with expt=%s\n", sid, slabel, elabel)
		expt, err := up.repo.CreateExperiment(projectcode, sid, elabel)
		if err != nil {
			log.Printf("Warning: could not create experiment %s: %v", elabel, err)
			continue
		}

		numScans := up.uploadSubject(expt, proj, filepath.Join(scandir, slabel, "scans"))
		if numScans == 0 {
			if up.deleteEmpty {
				if err := up.repo.DeleteExperiment(expt); err != nil {
					log.Printf("Warning: could not delete the empty experiment %s: %v", elabel, err)
				}
			}
			continue
		}

		// update headers after the files are uploaded (mrScan only)
		if err := up.repo.TriggerHeaderExtraction(expt); err != nil {
			log.Printf("Warning: unable to extract header data for %s: %v", elabel, err)
		}
		if err := up.repo.TriggerScanTypeFix(expt); err != nil {
			log.Printf("Warning: unable to fix scan types for %s: %v", elabel, err)
		}
		if err := up.repo.TriggerPipelines(expt); err != nil {
			log.Printf("Warning: unable to trigger pipelines for %s: %v", elabel, err)
		}

		// mark the folder as done by moving it next to the scan directory
		if err := os.Rename(filepath.Join(scandir, slabel), filepath.Join(donepath, slabel)); err != nil {
			log.Printf("Warning: error in moving uploaded scans to %s: %v", donepath, err)
		} else {
			fmt.Printf("Uploaded scans moved to %s\n", donepath)
		}
		success = success + 1
	}

	langFmt := message.NewPrinter(language.English)
	langFmt.Printf("Uploaded %d of %d session(s) for project %s\n", success, ctr, projectcode)
	return success, nil
}

// uploadSubject walks the scan sub-directories of one subject and pushes
// each classifiable series to the experiment. It returns the number of
// scans that made it to the server, problems with a single series only
// skip that series.
func (up *Uploader) uploadSubject(expt ExperimentHandle, proj ProjectInfo, uploaddir string) int {
	subdirs, err := listDirs(uploaddir)
	if err != nil {
		log.Printf("Warning: could not list the scans directory %s: %v", uploaddir, err)
		return 0
	}
	numScans := 0
	for _, subdr := range subdirs {
		dcmPath := filepath.Join(uploaddir, subdr)
		scanFiles, err := listFiles(dcmPath)
		if err != nil || len(scanFiles) == 0 {
			log.Printf("Warning: file directory doesn't contain dcm files: %s", dcmPath)
			continue
		}
		meta, err := up.readMeta(scanFiles[0])
		if err != nil {
			log.Printf("Warning: could not read DICOM tags in %s: %v", dcmPath, err)
			continue
		}
		scanID := meta.SeriesNumber
		if scanID == "" {
			scanID = subdr
		}

		if up.skipOwnerCheck || ownerMatches(meta.RequestedProcedureDescription, proj) {
			fmt.Printf("Owner verified: scan=%s project PI=%s\n", meta.RequestedProcedureDescription, proj.PILastName)
		} else {
			log.Printf("Warning: owner does not match - skipping upload: scan=%s project PI=%s", meta.RequestedProcedureDescription, proj.PILastName)
			continue
		}

		st := classifyScan(meta)
		if st == scanTypeUnknown {
			log.Printf("Warning: unknown scan type %q modality %q - skipping %s", meta.SOPClassUID, meta.Modality, dcmPath)
			continue
		}
		fmt.Println("Scan ID:", scanID, "Scan type=", st)
		if up.showPreview {
			showFirstImage(scanFiles[0])
		}

		if err := up.repo.CreateScan(expt, scanID, st.schema()); err != nil {
			log.Printf("Warning: could not create scan %s: %v", scanID, err)
			continue
		}
		// the DICOM resource is crucial for the display of DICOM headers
		if err := up.repo.UploadScanFiles(expt, scanID, "DICOM", scanFiles, true); err != nil {
			log.Printf("Warning: could not upload the files of scan %s: %v", scanID, err)
			continue
		}
		numScans = numScans + 1
	}
	return numScans
}
