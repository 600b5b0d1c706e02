package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/virtshift/virtshift/internal/archive"
	"github.com/virtshift/virtshift/internal/audit"
	"github.com/virtshift/virtshift/internal/config"
	"github.com/virtshift/virtshift/internal/drivers"
	"github.com/virtshift/virtshift/internal/gueststore"
	"github.com/virtshift/virtshift/internal/hivestore"
	"github.com/virtshift/virtshift/internal/logging"
	"github.com/virtshift/virtshift/internal/regedit"
	"github.com/virtshift/virtshift/internal/workerpool"
	"github.com/virtshift/virtshift/pkg/report"
)

var (
	version   = "0.1.0"
	cfgFile   string
	image     string
	dryRun    bool
	guestRoot string

	manifestPath   string
	devicePath     string
	runOnceName    string
	runOnceCommand string
	keyPath        []string
	valueName      string
	valueData      uint32
	serviceNames   []string
	parallel       int
	pruneOlderDays int
)

var rootCmd = &cobra.Command{
	Use:   "virtshift",
	Short: "Offline Windows registry reconfiguration for VM disk images",
	Long: `Virtshift edits the registry hives of an un-booted Windows guest so the
image boots under new virtual hardware: driver services, critical device
entries, and first-boot hooks, committed and verified without ever running
the guest.`,
}

var fixBootCmd = &cobra.Command{
	Use:   "fix-boot",
	Short: "Configure driver services in the SYSTEM hive",
	Run: func(cmd *cobra.Command, args []string) {
		runFixBoot()
	},
}

var fixSoftwareCmd = &cobra.Command{
	Use:   "fix-software",
	Short: "Edit the SOFTWARE hive's DevicePath and first-boot commands",
	Run: func(cmd *cobra.Command, args []string) {
		runFixSoftware()
	},
}

var setValueCmd = &cobra.Command{
	Use:   "set-value",
	Short: "Write one DWORD under the current control set of the SYSTEM hive",
	Run: func(cmd *cobra.Command, args []string) {
		runSetValue()
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Report the control set and service state without modifying anything",
	Run: func(cmd *cobra.Command, args []string) {
		runInspect()
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert [image]...",
	Short: "Run the full SYSTEM and SOFTWARE reconfiguration on one or more images",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runConvert(args)
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "audit-verify [trail-file]",
	Short: "Verify the hash chain of an audit trail",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		trail := filepath.Join(config.GetDataDir(), "audit.jsonl")
		if len(args) == 1 {
			trail = args[0]
		}
		n, err := audit.VerifyChain(trail)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Audit trail verification failed after %d entries: %v\n", n, err)
			os.Exit(1)
		}
		fmt.Printf("Audit trail intact: %d entries verified\n", n)
	},
}

var archivePruneCmd = &cobra.Command{
	Use:   "archive-prune",
	Short: "Delete archived pre-edit hives older than the retention window",
	Run: func(cmd *cobra.Command, args []string) {
		a := setup()
		defer a.close()
		n, err := a.arch.Prune(time.Duration(pruneOlderDays) * 24 * time.Hour)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Prune failed after removing %d entries: %v\n", n, err)
			os.Exit(1)
		}
		fmt.Printf("Pruned %d archived hives\n", n)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("virtshift v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/virtshift/virtshift.yaml)")
	rootCmd.PersistentFlags().StringVar(&image, "image", "", "guest disk image to operate on")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "compute and report changes without writing anything")
	rootCmd.PersistentFlags().StringVar(&guestRoot, "root", "", "guest OS root to select when the image holds several (default: first inspected)")

	fixBootCmd.Flags().StringVar(&manifestPath, "manifest", "", "driver manifest YAML (default from config)")
	convertCmd.Flags().StringVar(&manifestPath, "manifest", "", "driver manifest YAML (default from config)")
	convertCmd.Flags().StringVar(&devicePath, "device-path", "", "entry to append to DevicePath")
	convertCmd.Flags().StringVar(&runOnceName, "runonce-name", "virtshift-firstboot", "name of the RunOnce value")
	convertCmd.Flags().StringVar(&runOnceCommand, "runonce-command", "", "first-boot command to install")
	convertCmd.Flags().IntVar(&parallel, "parallel", 2, "images converted concurrently")

	fixSoftwareCmd.Flags().StringVar(&devicePath, "device-path", "", "entry to append to DevicePath")
	fixSoftwareCmd.Flags().StringVar(&runOnceName, "runonce-name", "virtshift-firstboot", "name of the RunOnce value")
	fixSoftwareCmd.Flags().StringVar(&runOnceCommand, "runonce-command", "", "first-boot command to install")

	setValueCmd.Flags().StringSliceVar(&keyPath, "key", nil, "key path under the control set (repeatable)")
	setValueCmd.Flags().StringVar(&valueName, "name", "", "value name")
	setValueCmd.Flags().Uint32Var(&valueData, "value", 0, "DWORD value to write")

	inspectCmd.Flags().StringSliceVar(&serviceNames, "service", nil, "service names to inspect (repeatable)")

	archivePruneCmd.Flags().IntVar(&pruneOlderDays, "older-than-days", 30, "delete archived hives older than this many days")

	rootCmd.AddCommand(fixBootCmd)
	rootCmd.AddCommand(fixSoftwareCmd)
	rootCmd.AddCommand(setValueCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(auditVerifyCmd)
	rootCmd.AddCommand(archivePruneCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the process-wide collaborators shared by all sessions.
type app struct {
	cfg   *config.Config
	trail *audit.Logger
	arch  *archive.Manager
}

func setup() *app {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if dryRun {
		cfg.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	initLogging(cfg)

	a := &app{cfg: cfg}

	if cfg.Audit.Enabled && !cfg.DryRun {
		trail, err := audit.NewLogger(cfg.Audit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open audit trail: %v\n", err)
			os.Exit(1)
		}
		a.trail = trail
	}

	arch, err := archive.NewManager(cfg.Archive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure archive provider: %v\n", err)
		os.Exit(1)
	}
	a.arch = arch

	return a
}

func (a *app) close() {
	if err := a.trail.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Closing audit trail: %v\n", err)
	}
}

func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stderr
	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		output = logging.TeeWriter(os.Stderr, rw)
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
}

// newSession attaches to one guest image. The returned cleanup detaches the
// appliance and removes the session's working directory.
func (a *app) newSession(imagePath string) (*regedit.Session, func(), error) {
	if imagePath == "" {
		return nil, nil, fmt.Errorf("an --image is required")
	}

	if err := os.MkdirAll(a.cfg.WorkDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating work dir: %w", err)
	}
	workDir, err := os.MkdirTemp(a.cfg.WorkDir, "session-*")
	if err != nil {
		return nil, nil, fmt.Errorf("creating session work dir: %w", err)
	}

	guest, err := gueststore.Connect(imagePath, !a.cfg.DryRun)
	if err != nil {
		os.RemoveAll(workDir)
		return nil, nil, fmt.Errorf("attaching %s: %w", imagePath, err)
	}

	rootHint := guestRoot
	if rootHint == "" {
		rootHint = a.cfg.GuestRoot
	}

	sess := regedit.NewSession(regedit.SessionConfig{
		Guest:     guest,
		Open:      hivestore.Open,
		WorkDir:   workDir,
		DryRun:    a.cfg.DryRun,
		BootStart: uint32(a.cfg.BootStartValue),
		MinFreeMB: a.cfg.MinFreeMB,
		RootHint:  rootHint,
		Trail:     a.trail,
		Archive:   a.arch,
	})

	cleanup := func() {
		if err := guest.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Detaching %s: %v\n", imagePath, err)
		}
		os.RemoveAll(workDir)
	}
	return sess, cleanup, nil
}

func (a *app) loadDrivers() []drivers.Descriptor {
	path := manifestPath
	if path == "" {
		path = a.cfg.DriverManifest
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "A driver manifest is required. Use --manifest or set driver_manifest in config.")
		os.Exit(1)
	}
	ds, err := drivers.LoadManifest(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return ds
}

func printReport(rpt *report.Report) {
	data, err := json.MarshalIndent(rpt, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render report: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
	if !rpt.Success {
		os.Exit(1)
	}
}

func runFixBoot() {
	a := setup()
	defer a.close()
	ds := a.loadDrivers()

	sess, cleanup, err := a.newSession(image)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	printReport(sess.FixBoot(ds))
}

func runFixSoftware() {
	a := setup()
	defer a.close()

	if devicePath == "" && runOnceCommand == "" {
		fmt.Fprintln(os.Stderr, "Nothing to do: provide --device-path and/or --runonce-command.")
		os.Exit(1)
	}

	sess, cleanup, err := a.newSession(image)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	printReport(sess.FixSoftware(devicePath, runOnceName, runOnceCommand))
}

func runSetValue() {
	a := setup()
	defer a.close()

	if len(keyPath) == 0 || valueName == "" {
		fmt.Fprintln(os.Stderr, "Both --key and --name are required.")
		os.Exit(1)
	}

	sess, cleanup, err := a.newSession(image)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	printReport(sess.SetValue(keyPath, valueName, valueData))
}

func runInspect() {
	a := setup()
	defer a.close()

	sess, cleanup, err := a.newSession(image)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	printReport(sess.Inspect(serviceNames))
}

// runConvert reconfigures each image end to end. Images run concurrently;
// the two hives of one image run serially inside their job, since they
// share one guest appliance.
func runConvert(images []string) {
	a := setup()
	defer a.close()
	ds := a.loadDrivers()

	jobs := make([]workerpool.Job, len(images))
	for i, img := range images {
		img := img
		jobs[i] = workerpool.Job{
			Name: img,
			Run: func(ctx context.Context) *report.Report {
				ctx = logging.NewContext(ctx, logging.L("convert").With(logging.KeyImage, img))
				return a.convertOne(ctx, img, ds)
			},
		}
	}

	results := workerpool.Run(context.Background(), parallel, jobs)

	failed := false
	for _, res := range results {
		fmt.Printf("== %s ==\n", res.Name)
		data, err := json.MarshalIndent(res.Report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render report: %v\n", err)
			failed = true
			continue
		}
		fmt.Println(string(data))
		if !res.Report.Success {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

// convertOne runs the SYSTEM edit and, when requested, the SOFTWARE edit on
// one image, merging both outcomes into a single report.
func (a *app) convertOne(ctx context.Context, imagePath string, ds []drivers.Descriptor) *report.Report {
	logger := logging.FromContext(ctx)
	start := time.Now()
	rpt := a.convertImage(imagePath, ds)
	logger.Info("image conversion finished",
		"success", rpt.Success,
		"modified", rpt.Modified,
		logging.KeyDurationMs, time.Since(start).Milliseconds())
	return rpt
}

func (a *app) convertImage(imagePath string, ds []drivers.Descriptor) *report.Report {
	sess, cleanup, err := a.newSession(imagePath)
	if err != nil {
		rpt := report.New(imagePath, a.cfg.DryRun)
		rpt.Errorf("%v", err)
		return rpt.Finish()
	}
	defer cleanup()

	rpt := sess.FixBoot(ds)
	if devicePath == "" && runOnceCommand == "" {
		return rpt
	}

	soft := sess.FixSoftware(devicePath, runOnceName, runOnceCommand)
	rpt.Errors = append(rpt.Errors, soft.Errors...)
	rpt.Warnings = append(rpt.Warnings, soft.Warnings...)
	rpt.Notes = append(rpt.Notes, soft.Notes...)
	rpt.Modified = rpt.Modified || soft.Modified
	return rpt.Finish()
}
