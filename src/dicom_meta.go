package main

import (
	"fmt"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// ScanMeta is the fixed set of header fields the upload workflow reads
// from the first file of each scan directory.
type ScanMeta struct {
	SOPClassUID                   string
	SeriesNumber                  string
	Modality                      string
	RequestedProcedureDescription string // used for the soft ownership check
	SeriesDate                    string
	SeriesTime                    string
}

// stringTag pulls a single string value out of the dataset, an empty
// string if the tag is missing. Most of these tags are optional so a
// missing element is not an error here.
func stringTag(dataset dicom.Dataset, t tag.Tag) string {
	val, err := dataset.FindElementByTag(t)
	if err != nil {
		return ""
	}
	values := dicom.MustGetStrings(val.Value)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// readTags parses one DICOM file and returns the header fields we care
// about during upload.
func readTags(path string) (ScanMeta, error) {
	dataset, err := dicom.ParseFile(path, nil) // See also: dicom.Parse which has a generic io.Reader API.
	if err != nil {
		return ScanMeta{}, fmt.Errorf("could not parse %s: %w", path, err)
	}
	var meta ScanMeta
	meta.SOPClassUID = stringTag(dataset, tag.SOPClassUID)
	meta.SeriesNumber = stringTag(dataset, tag.SeriesNumber)
	meta.Modality = stringTag(dataset, tag.Modality)
	meta.RequestedProcedureDescription = stringTag(dataset, tag.RequestedProcedureDescription)
	meta.SeriesDate = stringTag(dataset, tag.SeriesDate)
	meta.SeriesTime = stringTag(dataset, tag.SeriesTime)
	return meta, nil
}
