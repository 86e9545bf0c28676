package main

import "testing"

func Test_classifyScan(t *testing.T) {
	tests := []struct {
		name string
		meta ScanMeta
		want scanType
	}{
		{"MR image storage by name", ScanMeta{SOPClassUID: "MR Image Storage"}, scanTypeMR},
		{"MR image storage by uid", ScanMeta{SOPClassUID: "1.2.840.10008.5.1.4.1.1.4"}, scanTypeMR},
		{"Secondary capture by name", ScanMeta{SOPClassUID: "Secondary Capture Image Storage"}, scanTypeSecondaryCapture},
		{"Secondary capture by uid", ScanMeta{SOPClassUID: "1.2.840.10008.5.1.4.1.1.7"}, scanTypeSecondaryCapture},
		{"Unknown class with MR modality", ScanMeta{SOPClassUID: "1.2.840.10008.5.1.4.1.1.4.1", Modality: "MR"}, scanTypeOtherMR},
		{"Unknown class with CT modality", ScanMeta{SOPClassUID: "1.2.840.10008.5.1.4.1.1.2", Modality: "CT"}, scanTypeUnknown},
		{"Nothing set", ScanMeta{}, scanTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyScan(tt.meta); got != tt.want {
				t.Errorf("classifyScan(%+v) = %v, want %v", tt.meta, got, tt.want)
			}
		})
	}
}

func Test_scanTypeSchema(t *testing.T) {
	tests := []struct {
		st   scanType
		want string
	}{
		{scanTypeMR, "xnat:mrScanData"},
		{scanTypeSecondaryCapture, "xnat:scScanData"},
		{scanTypeOtherMR, "xnat:otherDicomScanData"},
		{scanTypeUnknown, ""},
	}
	for _, tt := range tests {
		if got := tt.st.schema(); got != tt.want {
			t.Errorf("schema(%v) = %q, want %q", tt.st, got, tt.want)
		}
	}
}
