// Package report defines the JSON-serializable outcome of one offline
// registry edit operation. Nothing is raised across the edit boundary:
// callers inspect this structure instead of catching errors.
package report

import "fmt"

// Transfer records the upload round-trip proof for one hive touch.
// SHA256Before is the hash of the hive as downloaded (pre-edit);
// SHA256After is the hash of the re-downloaded hive after upload.
// Changed=false after a successful commit is a signal worth surfacing,
// not an error.
type Transfer struct {
	RemotePath   string `json:"remote_path"`
	LocalPath    string `json:"local_path"`
	SHA256Before string `json:"sha256_before"`
	SHA256After  string `json:"sha256_after"`
	Changed      bool   `json:"changed"`
}

// Report accumulates the outcome of one logical edit operation.
type Report struct {
	Success  bool   `json:"success"`
	DryRun   bool   `json:"dry_run"`
	HivePath string `json:"hive_path"`
	Modified bool   `json:"modified"`

	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Notes    []string `json:"notes"`

	Services             []string `json:"services"`
	CriticalDevices      []string `json:"cdd"`
	StartOverrideRemoved []string `json:"startoverride_removed"`

	VerifiedServices   []string  `json:"verified_services"`
	VerificationErrors []string  `json:"verification_errors"`
	Verification       *Transfer `json:"verification,omitempty"`
}

// New creates a report for one hive operation. Every list field starts
// non-nil so the report marshals with arrays, never null.
func New(hivePath string, dryRun bool) *Report {
	return &Report{
		HivePath:             hivePath,
		DryRun:               dryRun,
		Errors:               []string{},
		Warnings:             []string{},
		Notes:                []string{},
		Services:             []string{},
		CriticalDevices:      []string{},
		StartOverrideRemoved: []string{},
		VerifiedServices:     []string{},
		VerificationErrors:   []string{},
	}
}

// Errorf records a failure. Success is derived from the error list at
// Finish time, so one recorded error fails the whole operation.
func (r *Report) Errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Warnf records a non-fatal observation.
func (r *Report) Warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Notef records an informational message (dry-run deltas, skipped steps).
func (r *Report) Notef(format string, args ...any) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}

// Finish derives the final success flag and returns the report.
func (r *Report) Finish() *Report {
	r.Success = len(r.Errors) == 0
	return r
}
