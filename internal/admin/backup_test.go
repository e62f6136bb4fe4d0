package admin

import "testing"

func TestRestoreDumpPath(t *testing.T) {
	tests := []struct {
		desc    string
		arg     string
		want    string
		wantErr bool
	}{
		{"plain dump name", "autobackup_20250101_030000.dump", "backups/autobackup_20250101_030000.dump", false},
		{"surrounding spaces", "  autobackup_20250101_030000.dump ", "backups/autobackup_20250101_030000.dump", false},
		{"path traversal reduced to base name", "../../etc/secret.dump", "backups/secret.dump", false},
		{"not a dump file", "notes.txt", "", true},
		{"empty argument", "   ", "", true},
		{"bare directory", "..", "", true},
	}
	for _, tt := range tests {
		got, err := restoreDumpPath("backups", tt.arg)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error, got %q", tt.desc, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.desc, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.desc, got, tt.want)
		}
	}
}
