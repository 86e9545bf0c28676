package main

// SOP class UIDs we know how to map to a scan schema on the server.
// Older exports carry the spelled out names instead of the UIDs so we
// accept both forms.
const (
	uidMRImageStorage          = "1.2.840.10008.5.1.4.1.1.4"
	uidSecondaryCaptureStorage = "1.2.840.10008.5.1.4.1.1.7"

	nameMRImageStorage          = "MR Image Storage"
	nameSecondaryCaptureStorage = "Secondary Capture Image Storage"
)

type scanType int

const (
	scanTypeUnknown scanType = iota
	scanTypeMR
	scanTypeSecondaryCapture
	scanTypeOtherMR
)

func (t scanType) String() string {
	switch t {
	case scanTypeMR:
		return nameMRImageStorage
	case scanTypeSecondaryCapture:
		return nameSecondaryCaptureStorage
	case scanTypeOtherMR:
		return "Other DICOM (MR)"
	}
	return "unknown"
}

// schema returns the type specific schema the scan has to be created
// with before any file is uploaded. The empty string marks a scan we
// should not create.
func (t scanType) schema() string {
	switch t {
	case scanTypeMR:
		return "xnat:mrScanData"
	case scanTypeSecondaryCapture:
		return "xnat:scScanData"
	case scanTypeOtherMR:
		return "xnat:otherDicomScanData"
	}
	return ""
}

// classifyScan maps the SOP class of a scan to the schema variant used on
// the server. Anything that is not MR or secondary capture is resolved by
// the modality, a modality of MR still gets a generic DICOM scan type.
func classifyScan(meta ScanMeta) scanType {
	switch meta.SOPClassUID {
	case uidMRImageStorage, nameMRImageStorage:
		return scanTypeMR
	case uidSecondaryCaptureStorage, nameSecondaryCaptureStorage:
		return scanTypeSecondaryCapture
	}
	if meta.Modality == "MR" {
		return scanTypeOtherMR
	}
	return scanTypeUnknown
}
