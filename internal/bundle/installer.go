package bundle

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/akvo/akvo-flow-mobile-sub002/internal/db"
	apperrors "github.com/akvo/akvo-flow-mobile-sub002/internal/errors"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/logging"
)

const (
	processedSuffix = ".processed"
	errorSuffix     = ".error"
)

// Config holds installer configuration.
type Config struct {
	// InboxDir is scanned for bundle archives.
	InboxDir string
	// ResourceDir receives top-level reference data entries.
	ResourceDir string
	// FormsDir receives per-form definition and media files, one
	// subdirectory per form id.
	FormsDir string
	// TenantID is the application id bundles must declare.
	TenantID string
}

// Installer applies content bundles to the local store and the
// on-disk resource layout.
type Installer struct {
	store *db.Store
	cfg   Config
}

// NewInstaller creates a bundle Installer.
func NewInstaller(store *db.Store, cfg Config) *Installer {
	return &Installer{store: store, cfg: cfg}
}

// InstallAll processes every pending bundle in the inbox in
// lexicographic filename order. Later bundles may depend on earlier
// ones, so the first failure stops the run; the failed bundle is
// marked with an error suffix and is never retried automatically.
func (i *Installer) InstallAll(ctx context.Context) (int, error) {
	pending, err := i.pendingBundles()
	if err != nil {
		return 0, err
	}

	installed := 0
	for _, name := range pending {
		if err := ctx.Err(); err != nil {
			return installed, err
		}
		full := filepath.Join(i.cfg.InboxDir, name)
		if err := i.Install(full); err != nil {
			i.mark(full, errorSuffix)
			logging.WithFields(logging.Fields{"bundle": name}).
				WithError(err).Error("bundle installation failed, stopping run")
			return installed, err
		}
		i.mark(full, processedSuffix)
		logging.WithFields(logging.Fields{"bundle": name}).Info("bundle installed")
		installed++
	}
	return installed, nil
}

// pendingBundles lists unmarked, non-hidden bundle files in
// deterministic order. An interrupted run leaves unmarked bundles
// behind, so they are simply picked up again.
func (i *Installer) pendingBundles() ([]string, error) {
	entries, err := os.ReadDir(i.cfg.InboxDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read bundle inbox", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if strings.HasSuffix(name, processedSuffix) || strings.HasSuffix(name, errorSuffix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Install applies a single bundle. The bundle is read twice: first
// every form definition is parsed and tenant-checked, then entries
// are extracted and rows upserted. A tenant mismatch or a corrupt
// definition therefore rejects the bundle before any effect lands.
// Extraction itself is overwrite-safe, so a crash mid-apply is
// repaired by re-running the still-unmarked bundle.
func (i *Installer) Install(bundlePath string) error {
	zr, err := zip.OpenReader(bundlePath)
	if err != nil {
		if zr != nil {
			zr.Close()
		}
		return apperrors.Wrap(apperrors.ErrCorruptBundle,
			fmt.Sprintf("failed to open bundle %s", filepath.Base(bundlePath)), err)
	}
	defer zr.Close()

	defs, err := i.verify(&zr.Reader)
	if err != nil {
		return err
	}
	return i.apply(&zr.Reader, defs)
}

// verify parses all form definitions in the bundle and gates on the
// declared tenant before anything is written.
func (i *Installer) verify(zr *zip.Reader) (map[string]*Definition, error) {
	defs := make(map[string]*Definition)
	for _, f := range zr.File {
		name, skip, err := entryName(f.Name)
		if err != nil {
			return nil, err
		}
		if skip || !isFormDefinition(name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCorruptBundle,
				fmt.Sprintf("failed to read bundle entry %s", name), err)
		}
		def, err := ParseDefinition(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		if def.App != "" && def.App != i.cfg.TenantID {
			return nil, apperrors.New(apperrors.ErrPermission,
				fmt.Sprintf("form %s belongs to application %q, device is configured for %q",
					def.FormID, def.App, i.cfg.TenantID))
		}
		defs[path.Dir(name)] = def
	}
	return defs, nil
}

func (i *Installer) apply(zr *zip.Reader, defs map[string]*Definition) error {
	referenceData := false
	for _, f := range zr.File {
		name, skip, err := entryName(f.Name)
		if err != nil {
			return err
		}
		if skip {
			continue
		}

		var dst string
		switch {
		case !strings.Contains(name, "/"):
			// top-level entry: shared reference data
			dst = filepath.Join(i.cfg.ResourceDir, name)
			referenceData = true
		default:
			// {formId}/{file}: definition or help/media
			dst = filepath.Join(i.cfg.FormsDir, filepath.FromSlash(name))
		}
		if err := extractEntry(f, dst); err != nil {
			return err
		}
	}

	for dir, def := range defs {
		if err := i.store.UpsertFormGroup(def.Group()); err != nil {
			return err
		}
		form := def.Form(filepath.Join(i.cfg.FormsDir, dir))
		form.ReferenceDataInstalled = referenceData
		if err := i.store.UpsertForm(form); err != nil {
			return err
		}
		logging.WithFields(logging.Fields{
			"form":    form.FormID,
			"version": form.Version,
			"group":   form.GroupID,
		}).Info("form definition installed")
	}
	return nil
}

// entryName normalizes a zip entry name and reports whether the
// entry should be skipped. Hidden entries and directories are
// skipped; path traversal rejects the bundle.
func entryName(raw string) (name string, skip bool, err error) {
	name = strings.TrimPrefix(path.Clean(raw), "./")
	if name == "." || strings.HasSuffix(raw, "/") {
		return "", true, nil
	}
	if strings.HasPrefix(path.Base(name), ".") {
		return "", true, nil
	}
	if strings.HasPrefix(name, "..") || strings.Contains(name, "/../") {
		return "", false, apperrors.New(apperrors.ErrCorruptBundle,
			fmt.Sprintf("bundle entry %q escapes its extraction root", raw))
	}
	return name, false, nil
}

func isFormDefinition(name string) bool {
	return strings.Contains(name, "/") && strings.HasSuffix(name, ".xml")
}

func extractEntry(f *zip.File, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to create resource directory", err)
	}
	rc, err := f.Open()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCorruptBundle,
			fmt.Sprintf("failed to read bundle entry %s", f.Name), err)
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage,
			fmt.Sprintf("failed to create %s", dst), err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return apperrors.Wrap(apperrors.ErrStorage,
			fmt.Sprintf("failed to extract %s", f.Name), err)
	}
	return out.Close()
}

// mark renames the bundle with a terminal marker. A rename failure
// is logged but not fatal: a missed marker only means the bundle is
// seen again on the next scan, and entry processing is
// overwrite-safe.
func (i *Installer) mark(bundlePath, suffix string) {
	if err := os.Rename(bundlePath, bundlePath+suffix); err != nil {
		logging.WithFields(logging.Fields{"bundle": filepath.Base(bundlePath)}).
			WithError(err).Warn("failed to mark bundle")
	}
}
